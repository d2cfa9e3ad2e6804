package onnx

import (
	"fmt"
	"image"
	"strings"

	"github.com/cyclopcam/trapsort/pkg/imageio"
	"github.com/cyclopcam/trapsort/pkg/nn"
	ort "github.com/yalue/onnxruntime_go"
)

// Classifier runs an image classification model, such as SpeciesNet, and returns the top-1 label.
// Classifier is not safe for concurrent use.
type Classifier struct {
	config nn.ModelConfig
	labels []string
	s      *session
	nhwc   bool
}

// NewClassifier loads a classification model. labels must have one entry per model output.
func NewClassifier(modelPath string, config *nn.ModelConfig, labels []string, threads int) (*Classifier, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("Invalid classifier input size %vx%v", config.Width, config.Height)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("Classifier has no labels")
	}
	nhwc := false
	switch strings.ToLower(config.Layout) {
	case "", "nchw":
	case "nhwc":
		nhwc = true
	default:
		return nil, fmt.Errorf("Unsupported tensor layout '%v'", config.Layout)
	}
	inputShape := ort.NewShape(1, 3, int64(config.Height), int64(config.Width))
	if nhwc {
		inputShape = ort.NewShape(1, int64(config.Height), int64(config.Width), 3)
	}
	s, err := newSession(modelPath,
		orDefault(config.InputName, "input"),
		orDefault(config.OutputName, "output"),
		inputShape,
		ort.NewShape(1, int64(len(labels))),
		threads)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		config: *config,
		labels: labels,
		s:      s,
		nhwc:   nhwc,
	}, nil
}

func (c *Classifier) Close() {
	c.s.close()
}

func (c *Classifier) Classify(img image.Image) (*nn.Classification, error) {
	if img.Bounds().Empty() {
		return nil, nil
	}
	rgba := imageio.ToRGBA(img)
	w, h := c.config.Width, c.config.Height
	if c.nhwc {
		fillInterleaved(c.s.input.GetData(), rgba, w, h)
	} else {
		// Stretch, rather than letterbox
		lb := letterbox{Scale: 1, Width: w, Height: h}
		fillPlanar(c.s.input.GetData(), rgba, w, h, lb)
	}
	if err := c.s.run(); err != nil {
		return nil, fmt.Errorf("Classifier inference failed: %w", err)
	}
	return topLabel(c.s.output.GetData(), c.labels, c.config.Softmax), nil
}

// topLabel returns nil if there is no usable score
func topLabel(scores []float32, labels []string, applySoftmax bool) *nn.Classification {
	scores = scores[:min(len(scores), len(labels))]
	if applySoftmax {
		probs := make([]float32, len(scores))
		copy(probs, scores)
		softmax(probs)
		scores = probs
	}
	best := argmax(scores)
	if best == -1 {
		return nil
	}
	return &nn.Classification{
		Label:      labels[best],
		Confidence: scores[best],
	}
}
