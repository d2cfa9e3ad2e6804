package sorter

import (
	"fmt"
	"image"

	"github.com/cyclopcam/trapsort/pkg/filter"
	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/trapsort/pkg/species"
	"github.com/cyclopcam/trapsort/pkg/tracker"
)

// speciesCache names each track once, when it is created, and remembers the answer
// for the rest of the track's life.
type speciesCache struct {
	tracker    *tracker.Tracker
	classifier nn.SpeciesClassifier
	filter     filter.Filter
	synonyms   *species.Synonyms
	calls      int // Number of classifier invocations
}

func newSpeciesCache(trk *tracker.Tracker, classifier nn.SpeciesClassifier, f filter.Filter, synonyms *species.Synonyms) *speciesCache {
	return &speciesCache{
		tracker:    trk,
		classifier: classifier,
		filter:     f,
		synonyms:   synonyms,
	}
}

// Resolve returns the species and confidence of a track.
// frame is the inference frame, which the assignment's box refers to.
func (c *speciesCache) Resolve(frame *image.RGBA, a tracker.Assignment, detConfidence float32) (string, float32, error) {
	if !a.IsNew {
		tr := c.tracker.Track(a.ID)
		if tr == nil || !tr.HasSpecies {
			return species.Unknown, 0, nil
		}
		return tr.Species, tr.SpeciesConfidence, nil
	}

	label, conf := species.Unknown, float32(0)
	switch c.filter.Kind() {
	case filter.KindHuman:
		label, conf = species.Human, detConfidence
	case filter.KindAllAnimals:
		label, conf = species.Animal, detConfidence
	default:
		b := frame.Bounds()
		crop := a.Box.Clip(b.Dx(), b.Dy())
		if !crop.IsEmpty() {
			c.calls++
			res, err := c.classifier.Classify(frame.SubImage(crop.ImageRect().Add(b.Min)))
			if err != nil {
				return "", 0, fmt.Errorf("Species classification of track %v failed: %w", a.ID, err)
			}
			if res != nil {
				label, conf = species.Clean(res.Label, c.synonyms), res.Confidence
			}
		}
	}
	c.tracker.SetSpecies(a.ID, label, conf)
	return label, conf, nil
}
