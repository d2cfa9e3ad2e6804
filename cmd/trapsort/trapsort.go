package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trapsort/pkg/httporacle"
	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/trapsort/pkg/onnx"
	"github.com/cyclopcam/trapsort/pkg/species"
	"github.com/cyclopcam/trapsort/pkg/tracker"
	"github.com/cyclopcam/trapsort/pkg/videoio"
	"github.com/cyclopcam/trapsort/server/config"
	"github.com/cyclopcam/trapsort/server/recorddb"
	"github.com/cyclopcam/trapsort/server/sorter"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// Load the detector and classifier. The classifier is nil if the filter doesn't need one.
func loadOracles(log logs.Log, cfg *config.Config) (nn.ObjectDetector, nn.SpeciesClassifier, error) {
	needClassifier := cfg.Filter().ClassifiesSpecies()
	o := cfg.Oracle

	if o.Backend == config.OracleHTTP {
		client := httporacle.NewClient(o.URL)
		log.Infof("Using inference server at %v", o.URL)
		if needClassifier {
			return client, client, nil
		}
		return client, nil, nil
	}

	if err := onnx.Initialize(o.OnnxLibrary); err != nil {
		return nil, nil, err
	}
	detConfig, err := nn.LoadModelConfig(config.ModelConfigPath(o.DetectorModel, o.DetectorConfig))
	if err != nil {
		return nil, nil, err
	}
	detector, err := onnx.NewDetector(o.DetectorModel, detConfig, o.Threads)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("Loaded detector %v (%v %vx%v)", o.DetectorModel, detConfig.Architecture, detConfig.Width, detConfig.Height)
	if !needClassifier {
		return detector, nil, nil
	}

	clsConfig, err := nn.LoadModelConfig(config.ModelConfigPath(o.ClassifierModel, o.ClassifierConfig))
	if err != nil {
		detector.Close()
		return nil, nil, err
	}
	labels := clsConfig.Classes
	if o.ClassifierLabels != "" {
		if labels, err = nn.LoadClassFile(o.ClassifierLabels); err != nil {
			detector.Close()
			return nil, nil, err
		}
	}
	classifier, err := onnx.NewClassifier(o.ClassifierModel, clsConfig, labels, o.Threads)
	if err != nil {
		detector.Close()
		return nil, nil, err
	}
	log.Infof("Loaded classifier %v (%v labels)", o.ClassifierModel, len(labels))
	return detector, classifier, nil
}

func sorterOptions(cfg *config.Config) (sorter.Options, error) {
	opts := sorter.DefaultOptions()
	opts.OutputDir = cfg.OutputDir
	opts.Filter = cfg.Filter()
	opts.DetectorInterval = cfg.DetectorInterval
	opts.DetectorWidth = cfg.DetectorWidth
	opts.MinBoxSize = cfg.MinBoxSize
	opts.Tracker = tracker.Params{
		IoUThreshold: cfg.IoUThreshold,
		MaxAge:       cfg.MaxAge,
	}
	opts.Detection.ProbabilityThreshold = cfg.ProbabilityThreshold
	opts.Detection.NmsIouThreshold = cfg.NmsIouThreshold
	opts.TiledImages = cfg.TiledImages
	if cfg.ErrorPolicy == config.ErrorPolicySkip {
		opts.ErrorPolicy = sorter.ErrorPolicySkip
	}
	if cfg.SynonymsFile != "" {
		syn, err := species.LoadSynonyms(cfg.SynonymsFile)
		if err != nil {
			return opts, err
		}
		opts.Synonyms = syn
	}
	return opts, nil
}

func main() {
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	parser := argparse.NewParser("trapsort", "Sort camera trap images and videos by what they contain")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file (default trapsort.json, if it exists)"})
	envFile := parser.String("", "env", &argparse.Options{Help: "Environment file", Default: ".env"})
	input := parser.String("i", "input", &argparse.Options{Help: "Directory of images and videos"})
	output := parser.String("o", "output", &argparse.Options{Help: "Directory for kept files and the report"})
	mode := parser.String("m", "mode", &argparse.Options{Help: "Detection mode: human or animal (default: any detection)"})
	targets := parser.String("t", "targets", &argparse.Options{Help: "Comma separated list of species to keep, or 'Animal (All)'"})
	interval := parser.Int("", "interval", &argparse.Options{Help: "Run the detector on every Nth video frame"})
	skipErrors := parser.Flag("", "skip-errors", &argparse.Options{Help: "Log inference errors and carry on with the next file"})
	recordDB := parser.String("", "db", &argparse.Options{Help: "SQLite file for the history of runs"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	log, err := logs.NewLog()
	check(err)

	check(config.LoadEnv(*envFile))
	cfg, err := config.LoadConfig(*configFile)
	check(err)
	check(cfg.ApplyEnv())
	if *input != "" {
		cfg.InputDir = *input
	}
	if *output != "" {
		cfg.OutputDir = *output
	}
	if *mode != "" {
		cfg.DetectionMode = *mode
	}
	if *targets != "" {
		cfg.TargetClasses = config.SplitList(*targets)
	}
	if *interval != 0 {
		cfg.DetectorInterval = *interval
	}
	if *skipErrors {
		cfg.ErrorPolicy = config.ErrorPolicySkip
	}
	if *recordDB != "" {
		cfg.RecordDB = *recordDB
	}
	check(cfg.Validate())

	opts, err := sorterOptions(cfg)
	check(err)

	detector, classifier, err := loadOracles(log, cfg)
	check(err)
	defer func() {
		detector.Close()
		if classifier != nil {
			classifier.Close()
		}
		if cfg.Oracle.Backend != config.OracleHTTP {
			onnx.Shutdown()
		}
	}()

	videos := &videoio.GocvOpener{Codec: cfg.VideoCodec}
	s, err := sorter.NewSorter(log, detector, classifier, videos, opts)
	check(err)

	if cfg.RecordDB != "" {
		db, err := recorddb.Open(log, cfg.RecordDB)
		check(err)
		defer db.Close()
		s.SetCatalog(db)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := s.Run(ctx, cfg.InputDir, func(done, total int) bool {
		if total != 0 {
			log.Infof("Progress: %v/%v (%.0f%%)", done, total, float64(done)*100/float64(total))
		}
		return true
	})
	if res != nil {
		if res.Cancelled {
			log.Warnf("Run cancelled after %v of %v files", res.Processed, res.Total)
		}
		if res.ReportPath != "" {
			fmt.Printf("%v\n", res.ReportPath)
		}
	}
	if err != nil {
		log.Errorf("%v", err)
		exitCode = 1
	}
}
