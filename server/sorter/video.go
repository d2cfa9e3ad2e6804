package sorter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/trapsort/pkg/annotate"
	"github.com/cyclopcam/trapsort/pkg/mediafile"
	"github.com/cyclopcam/trapsort/pkg/tracker"
	"github.com/cyclopcam/trapsort/pkg/videoio"
)

// Annotated videos are written here first, and only moved into place if they are kept
const tempPrefix = "temp_"

// ProcessVideo runs the detector (on a schedule), the tracker, and the species classifier (once per track)
// over every frame of a video. Every frame is annotated and written to a temporary file, which replaces
// <output>/<name> if any frame matched the filter, and is deleted otherwise.
// A video that can't be opened is skipped with a warning.
// If ctx is cancelled, the partial output is deleted and the record is nil.
func (s *Sorter) ProcessVideo(ctx context.Context, path string) (*MediaRecord, error) {
	if ctx.Err() != nil {
		return nil, nil
	}
	src, err := s.videos.OpenSource(path)
	if err != nil {
		s.Log.Warnf("Skipping video %v: %v", path, err)
		return nil, nil
	}
	defer src.Close()
	info := src.Info()
	if info.FPS <= 0 {
		info.FPS = videoio.DefaultFPS
	}

	name := filepath.Base(path)
	tempPath := filepath.Join(s.opts.OutputDir, tempPrefix+name)
	finalPath := filepath.Join(s.opts.OutputDir, name)
	sink, err := s.videos.CreateSink(tempPath, info)
	if err != nil {
		return nil, fmt.Errorf("Failed to create %v: %w", tempPath, err)
	}

	// Until we decide to keep the video, any exit path discards the temp file
	sinkOpen := true
	keep := false
	defer func() {
		if sinkOpen {
			sink.Close()
		}
		if !keep {
			os.Remove(tempPath)
		}
	}()

	f := s.opts.Filter
	trk := tracker.New(s.opts.Tracker)
	cache := newSpeciesCache(trk, s.classifier, f, s.opts.Synonyms)
	sched := Scheduler{Interval: s.opts.DetectorInterval}
	params := s.detectionParams()

	start := time.Now()
	accepted := false
	classes := map[string]bool{}
	detectorCalls := 0
	nFrames := 0

	for frameIndex := 0; ; frameIndex++ {
		if ctx.Err() != nil {
			s.Log.Infof("Video %v cancelled after %v frames", name, nFrames)
			return nil, nil
		}
		readStart := time.Now()
		frame, err := src.ReadFrame()
		s.stats.Decode.Since(readStart)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			s.Log.Warnf("Video %v: stopping at frame %v: %v", name, frameIndex, err)
			break
		}
		nFrames++

		b := frame.Bounds()
		scaler := NewScaler(b.Dx(), b.Dy(), s.opts.DetectorWidth)
		inference := scaler.Apply(frame)

		var assigned []tracker.Assignment
		if sched.ShouldDetect(frameIndex) {
			detectorCalls++
			dets, err := s.detector.DetectObjects(inference, params)
			if err != nil {
				return nil, fmt.Errorf("Object detection of %v frame %v failed: %w", name, frameIndex, err)
			}
			assigned = trk.Update(FilterSmallBoxes(dets, s.opts.MinBoxSize), frameIndex)
		} else {
			assigned = trk.Predict(frameIndex)
		}

		boxes := make([]annotate.Box, 0, len(assigned))
		frameClasses := []string{}
		for _, a := range assigned {
			label, conf, err := cache.Resolve(inference, a, a.Confidence)
			if err != nil {
				return nil, fmt.Errorf("%v frame %v: %w", name, frameIndex, err)
			}
			if f.IsBlank(label) {
				continue
			}
			// The label shows the confidence that was cached when the track was born
			boxes = append(boxes, annotate.Box{
				Rect:  scaler.ToNative(a.Box),
				Label: f.DisplayLabel(label, conf, conf),
			})
			frameClasses = append(frameClasses, f.RecordClass(label))
		}

		if len(boxes) != 0 {
			for _, c := range frameClasses {
				classes[c] = true
			}
			if f.Accepts(len(boxes), frameClasses) {
				accepted = true
			}
		}

		writeStart := time.Now()
		s.annotator.Draw(frame, boxes)
		err = sink.WriteFrame(frame)
		s.stats.Encode.Since(writeStart)
		if err != nil {
			return nil, fmt.Errorf("Failed to write frame %v of %v: %w", frameIndex, tempPath, err)
		}
	}

	sinkOpen = false
	if err := sink.Close(); err != nil {
		return nil, fmt.Errorf("Failed to finish %v: %w", tempPath, err)
	}

	s.Log.Infof("Video %v processed in %.2fs (%v frames, %v detector runs, %v classifier runs)",
		name, time.Since(start).Seconds(), nFrames, detectorCalls, cache.calls)

	if !accepted {
		return nil, nil
	}

	if err := os.Remove(finalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Failed to replace %v: %w", finalPath, err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("Failed to move %v into place: %w", finalPath, err)
	}
	keep = true
	return newRecord(path, mediafile.TypeVideo, MultipleDetections, classes), nil
}
