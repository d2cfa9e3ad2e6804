package sorter

import "github.com/cyclopcam/trapsort/pkg/nn"

// Scheduler decides which video frames get a detector pass.
// The other frames rely on the tracker's prediction.
type Scheduler struct {
	Interval int
}

// ShouldDetect is true on frame 0, and every Interval frames after that
func (s Scheduler) ShouldDetect(frameIndex int) bool {
	if s.Interval <= 1 {
		return true
	}
	return frameIndex%s.Interval == 0
}

// FilterSmallBoxes drops detections that are narrower or shorter than minSize
func FilterSmallBoxes(dets []nn.ObjectDetection, minSize int) []nn.ObjectDetection {
	keep := make([]nn.ObjectDetection, 0, len(dets))
	for _, d := range dets {
		if int(d.Box.Width) < minSize || int(d.Box.Height) < minSize {
			continue
		}
		keep = append(keep, d)
	}
	return keep
}
