package onnx

import (
	"fmt"
	"image"
	"strings"

	"github.com/cyclopcam/trapsort/pkg/nn"
	ort "github.com/yalue/onnxruntime_go"
)

// Detector runs a YOLOv5 export of MegaDetector.
// Detector is not safe for concurrent use, because the tensors are shared between calls.
type Detector struct {
	config nn.ModelConfig
	s      *session
	rows   int
	cols   int
}

// NewDetector loads a YOLOv5 model. The architecture in the config must be "yolov5" or "yolov5-p6".
// MegaDetector v5 is a P6 model with a 1280x1280 input.
func NewDetector(modelPath string, config *nn.ModelConfig, threads int) (*Detector, error) {
	arch := strings.ToLower(config.Architecture)
	if arch != "yolov5" && arch != "yolov5-p6" {
		return nil, fmt.Errorf("Unsupported detector architecture '%v'", config.Architecture)
	}
	if config.Width <= 0 || config.Height <= 0 || len(config.Classes) == 0 {
		return nil, fmt.Errorf("Invalid detector config: %vx%v with %v classes", config.Width, config.Height, len(config.Classes))
	}
	rows := yoloRows(config.Width, config.Height, arch == "yolov5-p6")
	cols := 5 + len(config.Classes)
	s, err := newSession(modelPath,
		orDefault(config.InputName, "images"),
		orDefault(config.OutputName, "output"),
		ort.NewShape(1, 3, int64(config.Height), int64(config.Width)),
		ort.NewShape(1, int64(rows), int64(cols)),
		threads)
	if err != nil {
		return nil, err
	}
	return &Detector{
		config: *config,
		s:      s,
		rows:   rows,
		cols:   cols,
	}, nil
}

func (d *Detector) Close() {
	d.s.close()
}

func (d *Detector) Config() *nn.ModelConfig {
	return &d.config
}

func (d *Detector) DetectObjects(img *image.RGBA, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	if params == nil {
		params = nn.NewDetectionParams()
	}
	p := params.Resolved()
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}
	lb := makeLetterbox(b.Dx(), b.Dy(), d.config.Width, d.config.Height)
	fillPlanar(d.s.input.GetData(), img, d.config.Width, d.config.Height, lb)
	if err := d.s.run(); err != nil {
		return nil, fmt.Errorf("Detector inference failed: %w", err)
	}
	return decodeYOLOv5(d.s.output.GetData(), d.rows, d.cols, lb, b.Dx(), b.Dy(), p), nil
}
