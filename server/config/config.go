package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cyclopcam/trapsort/pkg/filter"
	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/trapsort/pkg/tracker"
	"github.com/joho/godotenv"
)

const DefaultFilename = "trapsort.json"

// Inference backends
const (
	OracleONNX = "onnx"
	OracleHTTP = "http"
)

// Error policies
const (
	ErrorPolicyAbort = "abort"
	ErrorPolicySkip  = "skip"
)

type Oracle struct {
	Backend          string `json:"backend"`          // "onnx" or "http"
	URL              string `json:"url"`              // Base URL of the inference server (http backend)
	OnnxLibrary      string `json:"onnxLibrary"`      // Path to libonnxruntime.so. Empty = let the OS find it.
	DetectorModel    string `json:"detectorModel"`    // MegaDetector .onnx file
	DetectorConfig   string `json:"detectorConfig"`   // JSON ModelConfig of the detector. Empty = <detectorModel>.json
	ClassifierModel  string `json:"classifierModel"`  // Species classifier .onnx file
	ClassifierConfig string `json:"classifierConfig"` // JSON ModelConfig of the classifier. Empty = <classifierModel>.json
	ClassifierLabels string `json:"classifierLabels"` // Text file with one label per line
	Threads          int    `json:"threads"`          // Intra-op threads for onnxruntime. 0 = default
}

type Config struct {
	InputDir             string   `json:"inputDir"`             // Directory of images and videos to sort
	OutputDir            string   `json:"outputDir"`            // Where kept files and the report are written
	DetectionMode        string   `json:"detectionMode"`        // "", "human" or "animal"
	TargetClasses        []string `json:"targetClasses"`        // Species to keep, or "Animal (All)"
	DetectorInterval     int      `json:"detectorInterval"`     // Run the detector on every Nth video frame
	DetectorWidth        int      `json:"detectorWidth"`        // Video frames wider than this are downscaled before inference
	MinBoxSize           int      `json:"minBoxSize"`           // Detections narrower or shorter than this are ignored
	IoUThreshold         float32  `json:"iouThreshold"`         // Tracker association threshold
	MaxAge               int      `json:"maxAge"`               // Tracker eviction age, in frames
	ProbabilityThreshold float32  `json:"probabilityThreshold"` // Detector confidence threshold
	NmsIouThreshold      float32  `json:"nmsIouThreshold"`      // Detector NMS threshold
	TiledImages          bool     `json:"tiledImages"`          // Run the detector over tiles of large still images
	VideoCodec           string   `json:"videoCodec"`           // FourCC of annotated videos
	ErrorPolicy          string   `json:"errorPolicy"`          // "abort" or "skip"
	SynonymsFile         string   `json:"synonymsFile"`         // Species synonyms. Empty = built-in
	RecordDB             string   `json:"recordDB"`             // SQLite history of runs. Empty = disabled
	Oracle               Oracle   `json:"oracle"`
}

func DefaultConfig() *Config {
	return &Config{
		DetectorInterval:     5,
		DetectorWidth:        512,
		MinBoxSize:           40,
		IoUThreshold:         tracker.DefaultIoUThreshold,
		MaxAge:               tracker.DefaultMaxAge,
		ProbabilityThreshold: nn.DefaultProbabilityThreshold,
		NmsIouThreshold:      nn.DefaultNmsIouThreshold,
		VideoCodec:           "mp4v",
		ErrorPolicy:          ErrorPolicyAbort,
		Oracle: Oracle{
			Backend: OracleONNX,
		},
	}
}

// LoadConfig reads a JSON file over the defaults.
// An empty filename loads trapsort.json if it exists, and otherwise returns the defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		filename = DefaultFilename
		if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	return cfg, nil
}

// LoadEnv loads variables from a .env file (if it exists) into the process environment,
// without overriding variables that are already set.
func LoadEnv(dotEnvFile string) error {
	if dotEnvFile == "" {
		dotEnvFile = ".env"
	}
	if _, err := os.Stat(dotEnvFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(dotEnvFile); err != nil {
		return fmt.Errorf("Error loading %v: %w", dotEnvFile, err)
	}
	return nil
}

// ApplyEnv overrides settings from TRAPSORT_* environment variables
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("TRAPSORT_" + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv("TRAPSORT_" + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("TRAPSORT_%v: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float32) {
		if v, ok := os.LookupEnv("TRAPSORT_" + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
			if err != nil {
				errs = append(errs, fmt.Errorf("TRAPSORT_%v: %w", key, err))
				return
			}
			*dst = float32(f)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv("TRAPSORT_" + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("TRAPSORT_%v: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("INPUT_DIR", &c.InputDir)
	str("OUTPUT_DIR", &c.OutputDir)
	str("DETECTION_MODE", &c.DetectionMode)
	if v, ok := os.LookupEnv("TRAPSORT_TARGET_CLASSES"); ok {
		c.TargetClasses = SplitList(v)
	}
	integer("DETECTOR_INTERVAL", &c.DetectorInterval)
	integer("DETECTOR_WIDTH", &c.DetectorWidth)
	integer("MIN_BOX_SIZE", &c.MinBoxSize)
	float("IOU_THRESHOLD", &c.IoUThreshold)
	integer("MAX_AGE", &c.MaxAge)
	float("PROBABILITY_THRESHOLD", &c.ProbabilityThreshold)
	float("NMS_IOU_THRESHOLD", &c.NmsIouThreshold)
	boolean("TILED_IMAGES", &c.TiledImages)
	str("VIDEO_CODEC", &c.VideoCodec)
	str("ERROR_POLICY", &c.ErrorPolicy)
	str("SYNONYMS_FILE", &c.SynonymsFile)
	str("RECORD_DB", &c.RecordDB)
	str("ORACLE_BACKEND", &c.Oracle.Backend)
	str("ORACLE_URL", &c.Oracle.URL)
	str("ONNX_LIBRARY", &c.Oracle.OnnxLibrary)
	str("DETECTOR_MODEL", &c.Oracle.DetectorModel)
	str("DETECTOR_CONFIG", &c.Oracle.DetectorConfig)
	str("CLASSIFIER_MODEL", &c.Oracle.ClassifierModel)
	str("CLASSIFIER_CONFIG", &c.Oracle.ClassifierConfig)
	str("CLASSIFIER_LABELS", &c.Oracle.ClassifierLabels)
	integer("THREADS", &c.Oracle.Threads)

	return errors.Join(errs...)
}

// SplitList splits a comma separated list, dropping empty items
func SplitList(s string) []string {
	items := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

func (c *Config) Filter() filter.Filter {
	return filter.New(c.DetectionMode, c.TargetClasses)
}

// Resolve the model config path, which defaults to the model path with a .json extension
func ModelConfigPath(modelPath, configPath string) string {
	if configPath != "" {
		return configPath
	}
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
}

// Validate checks that the configuration is complete and sane
func (c *Config) Validate() error {
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, errors.New("inputDir is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("outputDir is required"))
	}
	if c.InputDir != "" && c.OutputDir != "" && filepath.Clean(c.InputDir) == filepath.Clean(c.OutputDir) {
		errs = append(errs, errors.New("outputDir must be different from inputDir"))
	}
	if err := c.Filter().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.DetectorInterval < 1 {
		errs = append(errs, fmt.Errorf("detectorInterval must be at least 1 (got %v)", c.DetectorInterval))
	}
	if c.DetectorWidth < 1 {
		errs = append(errs, fmt.Errorf("detectorWidth must be at least 1 (got %v)", c.DetectorWidth))
	}
	if c.MinBoxSize < 0 {
		errs = append(errs, fmt.Errorf("minBoxSize may not be negative (got %v)", c.MinBoxSize))
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		errs = append(errs, fmt.Errorf("iouThreshold must be between 0 and 1 (got %v)", c.IoUThreshold))
	}
	if c.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("maxAge may not be negative (got %v)", c.MaxAge))
	}
	if c.ProbabilityThreshold < 0 || c.ProbabilityThreshold > 1 {
		errs = append(errs, fmt.Errorf("probabilityThreshold must be between 0 and 1 (got %v)", c.ProbabilityThreshold))
	}
	if c.NmsIouThreshold < 0 || c.NmsIouThreshold > 1 {
		errs = append(errs, fmt.Errorf("nmsIouThreshold must be between 0 and 1 (got %v)", c.NmsIouThreshold))
	}
	if len(c.VideoCodec) != 4 {
		errs = append(errs, fmt.Errorf("videoCodec must be a four character code (got '%v')", c.VideoCodec))
	}
	switch c.ErrorPolicy {
	case ErrorPolicyAbort, ErrorPolicySkip:
	default:
		errs = append(errs, fmt.Errorf("errorPolicy must be '%v' or '%v' (got '%v')", ErrorPolicyAbort, ErrorPolicySkip, c.ErrorPolicy))
	}
	switch c.Oracle.Backend {
	case OracleONNX:
		if c.Oracle.DetectorModel == "" {
			errs = append(errs, errors.New("oracle.detectorModel is required for the onnx backend"))
		}
		if c.Filter().ClassifiesSpecies() && (c.Oracle.ClassifierModel == "" || c.Oracle.ClassifierLabels == "") {
			errs = append(errs, errors.New("oracle.classifierModel and oracle.classifierLabels are required when classifying species"))
		}
	case OracleHTTP:
		if c.Oracle.URL == "" {
			errs = append(errs, errors.New("oracle.url is required for the http backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("oracle.backend must be '%v' or '%v' (got '%v')", OracleONNX, OracleHTTP, c.Oracle.Backend))
	}
	return errors.Join(errs...)
}
