// Package sorter runs camera trap media through the detector, tracker and species classifier,
// and keeps the files that match the user's filter.
package sorter

import (
	"errors"
	"fmt"
	"os"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trapsort/pkg/annotate"
	"github.com/cyclopcam/trapsort/pkg/filter"
	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/trapsort/pkg/perfstats"
	"github.com/cyclopcam/trapsort/pkg/species"
	"github.com/cyclopcam/trapsort/pkg/tracker"
	"github.com/cyclopcam/trapsort/pkg/videoio"
	"github.com/cyclopcam/trapsort/server/recorddb"
)

var ErrNoOutputDir = errors.New("No output directory configured")
var ErrNoClassifier = errors.New("A species classifier is required for this filter")

// ErrorPolicy decides what happens to a run when the detector, classifier, or file IO fails
type ErrorPolicy int

const (
	ErrorPolicyAbort ErrorPolicy = iota // Stop the run, and return the error
	ErrorPolicySkip                     // Log the error, and carry on with the next file
)

func (p ErrorPolicy) String() string {
	if p == ErrorPolicySkip {
		return "skip"
	}
	return "abort"
}

const (
	DefaultDetectorInterval = 5
	DefaultDetectorWidth    = 512
	DefaultMinBoxSize       = 40
)

type Options struct {
	OutputDir        string
	Filter           filter.Filter
	DetectorInterval int                // Run the detector on every Nth video frame
	DetectorWidth    int                // Video frames wider than this are downscaled before inference
	MinBoxSize       int                // Boxes narrower or shorter than this (in inference pixels) are ignored
	Tracker          tracker.Params     // Tracker settings. A fresh tracker is created for every video.
	Detection        nn.DetectionParams // Detector thresholds. Classes are chosen by the filter.
	TiledImages      bool               // Use tiled inference on still images
	ErrorPolicy      ErrorPolicy
	Synonyms         *species.Synonyms // nil = species.DefaultSynonyms()
}

func DefaultOptions() Options {
	return Options{
		DetectorInterval: DefaultDetectorInterval,
		DetectorWidth:    DefaultDetectorWidth,
		MinBoxSize:       DefaultMinBoxSize,
		Tracker:          tracker.DefaultParams(),
		Detection:        *nn.NewDetectionParams(),
		ErrorPolicy:      ErrorPolicyAbort,
	}
}

// Sorter is not safe for concurrent use. Files are processed one at a time.
type Sorter struct {
	Log        logs.Log
	opts       Options
	detector   nn.ObjectDetector
	classifier nn.SpeciesClassifier
	videos     videoio.Opener
	annotator  *annotate.Annotator
	catalog    *recorddb.RecordDB
	stats      *perfstats.Pipeline
}

// NewSorter creates the output directory if necessary.
// classifier may be nil if the filter never needs species names.
func NewSorter(log logs.Log, detector nn.ObjectDetector, classifier nn.SpeciesClassifier, videos videoio.Opener, opts Options) (*Sorter, error) {
	if opts.OutputDir == "" {
		return nil, ErrNoOutputDir
	}
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil && opts.Filter.ClassifiesSpecies() {
		return nil, ErrNoClassifier
	}
	if opts.DetectorInterval < 1 {
		opts.DetectorInterval = 1
	}
	if opts.DetectorWidth < 1 {
		opts.DetectorWidth = DefaultDetectorWidth
	}
	if opts.Synonyms == nil {
		opts.Synonyms = species.DefaultSynonyms()
	}
	if videos == nil {
		videos = videoio.NewGocvOpener()
	}
	if err := os.MkdirAll(opts.OutputDir, 0770); err != nil {
		return nil, fmt.Errorf("Failed to create output directory '%v': %w", opts.OutputDir, err)
	}
	stats := &perfstats.Pipeline{}
	s := &Sorter{
		Log:       log,
		opts:      opts,
		detector:  &timedDetector{detector, &stats.Detect},
		videos:    videos,
		annotator: annotate.NewAnnotator(),
		stats:     stats,
	}
	if classifier != nil {
		s.classifier = &timedClassifier{classifier, &stats.Classify}
	}
	return s, nil
}

// SetCatalog enables storing every run in the record DB
func (s *Sorter) SetCatalog(db *recorddb.RecordDB) {
	s.catalog = db
}

func (s *Sorter) Options() Options {
	return s.opts
}

// Stats returns the time spent in each pipeline stage since the start of the most recent run
func (s *Sorter) Stats() perfstats.Pipeline {
	return *s.stats
}

// Detection parameters for the current filter
func (s *Sorter) detectionParams() *nn.DetectionParams {
	return s.opts.Detection.WithClasses(s.opts.Filter.DetectorClass())
}
