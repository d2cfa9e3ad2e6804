package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIOU(t *testing.T) {
	a := RectFromCorners(0, 0, 100, 100)
	b := RectFromCorners(50, 50, 150, 150)
	c := RectFromCorners(200, 200, 260, 260)

	// 2500 / (10000 + 10000 - 2500)
	require.InDelta(t, 2500.0/17500.0, a.IOU(b), 1e-6)
	require.Equal(t, a.IOU(b), b.IOU(a))
	require.Equal(t, float32(1), a.IOU(a))
	require.Equal(t, float32(0), a.IOU(c))
	require.Equal(t, float32(0), c.IOU(a))

	// Touching edges do not overlap
	d := RectFromCorners(100, 0, 200, 100)
	require.Equal(t, float32(0), a.IOU(d))

	// Degenerate boxes never produce NaN
	z := RectFromCorners(10, 10, 10, 10)
	require.Equal(t, float32(0), z.IOU(z))
	require.Equal(t, float32(0), z.IOU(a))
}

func TestIOURange(t *testing.T) {
	boxes := []Rect{
		RectFromCorners(0, 0, 40, 40),
		RectFromCorners(10, 5, 70, 90),
		RectFromCorners(39, 39, 41, 41),
		RectFromCorners(-20, -20, 15, 15),
		RectFromCorners(0, 0, 1000, 1000),
	}
	for _, a := range boxes {
		for _, b := range boxes {
			iou := a.IOU(b)
			require.GreaterOrEqual(t, iou, float32(0))
			require.LessOrEqual(t, iou, float32(1))
			require.Equal(t, iou, b.IOU(a))
		}
	}
}

func TestRectHelpers(t *testing.T) {
	r := RectFromCorners(10, 20, 50, 80)
	require.Equal(t, Rect{X: 10, Y: 20, Width: 40, Height: 60}, r)
	require.EqualValues(t, 50, r.X2())
	require.EqualValues(t, 80, r.Y2())
	require.EqualValues(t, 2400, r.Area())
	require.Equal(t, Point{X: 30, Y: 50}, r.Center())

	require.True(t, RectFromCorners(10, 10, 5, 50).IsEmpty())

	clipped := RectFromCorners(-10, -10, 30, 30).Clip(20, 25)
	require.Equal(t, RectFromCorners(0, 0, 20, 25), clipped)

	r.Offset(5, -5)
	require.Equal(t, RectFromCorners(15, 15, 55, 75), r)

	require.InDelta(t, 5.0, Point{X: 0, Y: 0}.Distance(Point{X: 3, Y: 4}), 1e-6)
}

func TestFilterClasses(t *testing.T) {
	objects := []ObjectDetection{
		{Class: MegaDetectorAnimal, Confidence: 0.9},
		{Class: MegaDetectorPerson, Confidence: 0.8},
		{Class: MegaDetectorVehicle, Confidence: 0.7},
		{Class: MegaDetectorAnimal, Confidence: 0.6},
	}
	require.Len(t, FilterClasses(objects, nil), 4)
	animals := FilterClasses(objects, []int{MegaDetectorAnimal})
	require.Len(t, animals, 2)
	require.Equal(t, float32(0.6), animals[1].Confidence)
	require.Len(t, FilterClasses(objects, []int{MegaDetectorPerson, MegaDetectorVehicle}), 2)
	// The input is left alone
	require.Equal(t, MegaDetectorPerson, objects[1].Class)
}

func TestDetectionParams(t *testing.T) {
	p := NewDetectionParams()
	human := p.WithClasses(MegaDetectorPerson)
	require.Empty(t, p.Classes)
	require.Equal(t, []int{MegaDetectorPerson}, human.Classes)

	zero := (&DetectionParams{}).Resolved()
	require.Equal(t, float32(DefaultProbabilityThreshold), zero.ProbabilityThreshold)
	require.Equal(t, float32(DefaultNmsIouThreshold), zero.NmsIouThreshold)
}
