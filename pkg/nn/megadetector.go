package nn

// MegaDetector class indices
const (
	MegaDetectorAnimal  = 0
	MegaDetectorPerson  = 1
	MegaDetectorVehicle = 2
)

// MegaDetector classes
var MegaDetectorClasses = []string{
	"animal",
	"person",
	"vehicle",
}

// MegaDetector was trained with these thresholds in mind
const (
	MegaDetectorProbabilityThreshold = 0.30
	MegaDetectorNmsIouThreshold      = 0.45
)
