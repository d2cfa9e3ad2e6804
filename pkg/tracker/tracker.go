// Package tracker gives detected objects stable identities across the frames of a video.
//
// Association is greedy: each existing track, in creation order, claims the unmatched
// detection with which it has the highest IoU. This is not globally optimal, but it is
// cheap and deterministic.
package tracker

import (
	"slices"

	"github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/trapsort/pkg/nn"
)

const DefaultIoUThreshold = 0.3
const DefaultMaxAge = 30

type Params struct {
	IoUThreshold float32 // Minimum IoU for a detection to continue an existing track
	MaxAge       int     // A track is evicted once it has been missed for more than MaxAge consecutive frames
}

func DefaultParams() Params {
	return Params{
		IoUThreshold: DefaultIoUThreshold,
		MaxAge:       DefaultMaxAge,
	}
}

// Track is one object that we are following through the video.
// Box is in inference frame coordinates.
type Track struct {
	ID                uint32
	Box               nn.Rect
	Species           string
	SpeciesConfidence float32
	HasSpecies        bool // Species has been written. It is never written again.
	LastSeen          int  // Frame index of the most recent matched detection
	Missed            int  // Number of consecutive frames without a match
}

// Assignment is the tracker's answer for a single object in a single frame
type Assignment struct {
	ID         uint32
	Box        nn.Rect
	IsNew      bool
	Confidence float32 // Detector confidence of the matched detection. Zero on predicted frames.
}

// Tracker is not safe for concurrent use. Create one per video.
type Tracker struct {
	params Params
	tracks []*Track // creation order
	nextID uint32
}

func New(params Params) *Tracker {
	if params.MaxAge < 0 {
		params.MaxAge = 0
	}
	return &Tracker{
		params: params,
		nextID: 1,
	}
}

func (t *Tracker) Params() Params {
	return t.params
}

// Number of live tracks
func (t *Tracker) Len() int {
	return len(t.tracks)
}

// Returns nil if the track does not exist (or has been evicted)
func (t *Tracker) Track(id uint32) *Track {
	for _, tr := range t.tracks {
		if tr.ID == id {
			return tr
		}
	}
	return nil
}

// SetSpecies stores the species of a track.
// The species slot is write-once, so this returns false if it has already been written,
// or if the track does not exist.
func (t *Tracker) SetSpecies(id uint32, label string, confidence float32) bool {
	tr := t.Track(id)
	if tr == nil || tr.HasSpecies {
		return false
	}
	tr.Species = label
	tr.SpeciesConfidence = confidence
	tr.HasSpecies = true
	return true
}

// Update associates the detections of a frame with the existing tracks, creates new
// tracks for detections that were not claimed, and evicts stale tracks.
// The result lists the matched tracks (in creation order), followed by the new tracks
// (in detection order).
func (t *Tracker) Update(detections []nn.ObjectDetection, frameIndex int) []Assignment {
	consumed := make([]bool, len(detections))
	result := make([]Assignment, 0, len(detections))

	// Spatial index over the detections. A detection that doesn't overlap a track has
	// an IoU of zero, so it can never be chosen, and we only need to visit overlapping
	// candidates.
	var fb *flatbush.Flatbush[int32]
	if len(detections) != 0 {
		fb = flatbush.NewFlatbush[int32]()
		fb.Reserve(len(detections))
		for i := range detections {
			b := &detections[i].Box
			fb.Add(b.X, b.Y, b.X2(), b.Y2())
		}
		fb.Finish()
	}

	candidates := []int{}
	for _, tr := range t.tracks {
		candidates = candidates[:0]
		if fb != nil {
			candidates = fb.SearchFast(tr.Box.X, tr.Box.Y, tr.Box.X2(), tr.Box.Y2(), candidates)
			// Visit in detection order, so that ties are won by the first detection
			slices.Sort(candidates)
		}

		// Zero overlap is never a match, even with a zero threshold
		best := -1
		bestIOU := float32(0)
		for _, i := range candidates {
			if consumed[i] {
				continue
			}
			iou := tr.Box.IOU(detections[i].Box)
			if iou > bestIOU {
				bestIOU = iou
				best = i
			}
		}

		if best != -1 && bestIOU >= t.params.IoUThreshold {
			consumed[best] = true
			tr.Box = detections[best].Box
			tr.LastSeen = frameIndex
			tr.Missed = 0
			result = append(result, Assignment{
				ID:         tr.ID,
				Box:        tr.Box,
				Confidence: detections[best].Confidence,
			})
		} else {
			tr.Missed++
		}
	}

	for i := range detections {
		if consumed[i] {
			continue
		}
		tr := &Track{
			ID:       t.nextID,
			Box:      detections[i].Box,
			LastSeen: frameIndex,
		}
		t.nextID++
		t.tracks = append(t.tracks, tr)
		result = append(result, Assignment{
			ID:         tr.ID,
			Box:        tr.Box,
			IsNew:      true,
			Confidence: detections[i].Confidence,
		})
	}

	t.evict()
	return result
}

// Predict is called on frames where the detector did not run.
// Every track is treated as missed, and the survivors are returned at their last known position.
func (t *Tracker) Predict(frameIndex int) []Assignment {
	result := make([]Assignment, 0, len(t.tracks))
	for _, tr := range t.tracks {
		tr.Missed++
		if tr.Missed <= t.params.MaxAge {
			result = append(result, Assignment{
				ID:  tr.ID,
				Box: tr.Box,
			})
		}
	}
	t.evict()
	return result
}

func (t *Tracker) evict() {
	t.tracks = slices.DeleteFunc(t.tracks, func(tr *Track) bool {
		return tr.Missed > t.params.MaxAge
	})
}
