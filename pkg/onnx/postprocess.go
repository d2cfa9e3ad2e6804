package onnx

import (
	"slices"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/trapsort/pkg/nn"
)

// decodeYOLOv5 turns the raw [rows, 5+classes] output of a YOLOv5 model into detections in image coordinates.
// Each row is cx, cy, w, h, objectness, class scores... in network pixel coordinates.
func decodeYOLOv5(data []float32, rows, cols int, lb letterbox, imgWidth, imgHeight int, params nn.DetectionParams) []nn.ObjectDetection {
	nClasses := cols - 5
	if nClasses <= 0 {
		return nil
	}
	dets := []nn.ObjectDetection{}
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		objectness := row[4]
		if objectness < params.ProbabilityThreshold {
			continue
		}
		cls := 0
		best := row[5]
		for c := 1; c < nClasses; c++ {
			if row[5+c] > best {
				best = row[5+c]
				cls = c
			}
		}
		conf := objectness * best
		if conf < params.ProbabilityThreshold {
			continue
		}
		if len(params.Classes) != 0 && !slices.Contains(params.Classes, cls) {
			continue
		}
		cx, cy, w, h := row[0], row[1], row[2], row[3]
		x1, y1 := lb.toImage(cx-w/2, cy-h/2)
		x2, y2 := lb.toImage(cx+w/2, cy+h/2)
		box := nn.RectFromCorners(int32(math32.Round(x1)), int32(math32.Round(y1)), int32(math32.Round(x2)), int32(math32.Round(y2)))
		if !params.Unclipped {
			box = box.Clip(imgWidth, imgHeight)
		}
		if box.IsEmpty() {
			continue
		}
		dets = append(dets, nn.ObjectDetection{
			Class:      cls,
			Confidence: conf,
			Box:        box,
		})
	}
	return nms(dets, params.NmsIouThreshold)
}

// nms performs per-class non-maximum suppression.
// The result is sorted by descending confidence.
func nms(dets []nn.ObjectDetection, iouThreshold float32) []nn.ObjectDetection {
	slices.SortStableFunc(dets, func(a, b nn.ObjectDetection) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})
	keep := make([]nn.ObjectDetection, 0, len(dets))
	suppressed := make([]bool, len(dets))
	for i := range dets {
		if suppressed[i] {
			continue
		}
		keep = append(keep, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if !suppressed[j] && dets[j].Class == dets[i].Class && dets[i].Box.IOU(dets[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}

// In-place softmax
func softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	mx := slices.Max(x)
	sum := float32(0)
	for i, v := range x {
		x[i] = math32.Exp(v - mx)
		sum += x[i]
	}
	for i := range x {
		x[i] /= sum
	}
}

// argmax returns -1 for an empty slice
func argmax(x []float32) int {
	best := -1
	for i, v := range x {
		if math32.IsNaN(v) {
			continue
		}
		if best == -1 || v > x[best] {
			best = i
		}
	}
	return best
}

// Number of rows in a YOLOv5 output, which has 3 anchors per cell at every stride
func yoloRows(netWidth, netHeight int, p6 bool) int {
	strides := []int{8, 16, 32}
	if p6 {
		strides = append(strides, 64)
	}
	n := 0
	for _, s := range strides {
		n += 3 * (netWidth / s) * (netHeight / s)
	}
	return n
}
