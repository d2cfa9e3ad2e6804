package sorter

import (
	"image"
	"time"

	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/trapsort/pkg/perfstats"
)

type timedDetector struct {
	nn.ObjectDetector
	acc *perfstats.TimeAccumulator
}

func (d *timedDetector) DetectObjects(img *image.RGBA, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	defer d.acc.Since(time.Now())
	return d.ObjectDetector.DetectObjects(img, params)
}

type timedClassifier struct {
	nn.SpeciesClassifier
	acc *perfstats.TimeAccumulator
}

func (c *timedClassifier) Classify(img image.Image) (*nn.Classification, error) {
	defer c.acc.Since(time.Now())
	return c.SpeciesClassifier.Classify(img)
}
