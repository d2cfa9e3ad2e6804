package nn

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

// Classification is the top-1 answer of a species classifier
type Classification struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Keep only the detections whose class is in 'classes'.
// An empty class list keeps everything.
func FilterClasses(objects []ObjectDetection, classes []int) []ObjectDetection {
	if len(classes) == 0 {
		return objects
	}
	keep := objects[:0:0]
	for _, obj := range objects {
		for _, c := range classes {
			if obj.Class == c {
				keep = append(keep, obj)
				break
			}
		}
	}
	return keep
}
