package nn

import (
	"bufio"
	"encoding/json"
	"image"
	"os"
	"strings"
)

// Package nn is the interface layer between the sorting pipeline and the neural networks
// that it consults. The networks themselves live behind ObjectDetector and SpeciesClassifier.

const DefaultProbabilityThreshold = MegaDetectorProbabilityThreshold
const DefaultNmsIouThreshold = MegaDetectorNmsIouThreshold

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32 // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	NmsIouThreshold      float32 // Value between 0 and 1. Lower values will merge more objects together into one. Zero value will use the default.
	Unclipped            bool    // If true, don't clip boxes to the image boundaries
	Classes              []int   // Only return objects of these classes (empty = all classes)
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
		Unclipped:            false,
	}
}

// Return a copy of the params that only detects the given classes
func (p *DetectionParams) WithClasses(classes ...int) *DetectionParams {
	c := *p
	c.Classes = classes
	return &c
}

// Fill in defaults for zero values
func (p *DetectionParams) Resolved() DetectionParams {
	c := *p
	if c.ProbabilityThreshold == 0 {
		c.ProbabilityThreshold = DefaultProbabilityThreshold
	}
	if c.NmsIouThreshold == 0 {
		c.NmsIouThreshold = DefaultNmsIouThreshold
	}
	return c
}

// ObjectDetector is given an image, and returns zero or more detected objects
type ObjectDetector interface {
	// Close releases the model. You must call this when finished.
	Close()

	// DetectObjects returns a list of objects detected in the image, in image coordinates.
	// You can create a default DetectionParams with NewDetectionParams()
	DetectObjects(img *image.RGBA, params *DetectionParams) ([]ObjectDetection, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig
}

// SpeciesClassifier names the species in an image crop.
// A nil Classification (with a nil error) means the classifier had no answer.
type SpeciesClassifier interface {
	Close()
	Classify(img image.Image) (*Classification, error)
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"`         // eg "yolov5", "classifier"
	Width        int      `json:"width"`                // eg 640
	Height       int      `json:"height"`               // eg 640
	Classes      []string `json:"classes"`              // eg ["animal", "person", "vehicle"]
	Layout       string   `json:"layout,omitempty"`     // "nchw" (default) or "nhwc"
	Softmax      bool     `json:"softmax,omitempty"`    // Apply softmax to the classifier output
	InputName    string   `json:"inputName,omitempty"`  // ONNX input tensor name
	OutputName   string   `json:"outputName,omitempty"` // ONNX output tensor name
	Device       string   `json:"device,omitempty"`     // Reported execution device, eg "CPU"
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, scanner.Err()
}
