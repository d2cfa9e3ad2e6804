package sorter

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/cyclopcam/trapsort/pkg/annotate"
	"github.com/cyclopcam/trapsort/pkg/imageio"
	"github.com/cyclopcam/trapsort/pkg/mediafile"
	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/trapsort/pkg/species"
)

// ProcessImage classifies and detects a still image. If the image matches the filter, an annotated
// copy is written to the output directory, and a record is returned. Otherwise the record is nil.
// An image that can't be decoded is skipped with a warning.
func (s *Sorter) ProcessImage(ctx context.Context, path string) (*MediaRecord, error) {
	if ctx.Err() != nil {
		return nil, nil
	}
	start := time.Now()
	img, err := imageio.Read(path)
	s.stats.Decode.Since(start)
	if err != nil {
		s.Log.Warnf("Skipping unreadable image %v: %v", path, err)
		return nil, nil
	}
	f := s.opts.Filter

	// The whole image gets one species label
	label, labelConf := f.RecordClass(species.Unknown), float32(0)
	if f.ClassifiesSpecies() {
		res, err := s.classifier.Classify(img)
		if err != nil {
			return nil, fmt.Errorf("Species classification of %v failed: %w", path, err)
		}
		label = species.Unknown
		if res != nil {
			label, labelConf = species.Clean(res.Label, s.opts.Synonyms), res.Confidence
		}
	}

	dets, err := s.detectStill(img)
	if err != nil {
		return nil, fmt.Errorf("Object detection of %v failed: %w", path, err)
	}
	dets = FilterSmallBoxes(dets, s.opts.MinBoxSize)
	if f.IsBlank(label) {
		dets = nil
	}

	boxes := make([]annotate.Box, 0, len(dets))
	classes := map[string]bool{}
	classList := []string{}
	for _, d := range dets {
		boxes = append(boxes, annotate.Box{
			Rect:  d.Box,
			Label: f.DisplayLabel(label, labelConf, d.Confidence),
		})
		cls := f.RecordClass(label)
		if !classes[cls] {
			classes[cls] = true
			classList = append(classList, cls)
		}
	}

	if !f.Accepts(len(boxes), classList) {
		return nil, nil
	}

	start = time.Now()
	s.annotator.Draw(img, boxes)
	outPath := filepath.Join(s.opts.OutputDir, filepath.Base(path))
	err = imageio.Write(outPath, img)
	s.stats.Encode.Since(start)
	if err != nil {
		return nil, fmt.Errorf("Failed to write %v: %w", outPath, err)
	}
	return newRecord(path, mediafile.TypeImage, len(boxes), classes), nil
}

func (s *Sorter) detectStill(img *image.RGBA) ([]nn.ObjectDetection, error) {
	params := s.detectionParams()
	if s.opts.TiledImages {
		return nn.TiledInference(s.detector, img, params)
	}
	return s.detector.DetectObjects(img, params)
}
