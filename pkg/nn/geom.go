package nn

import (
	"image"

	"github.com/chewxy/math32"
)

type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	dx := float32(p.X - b.X)
	dy := float32(p.Y - b.Y)
	return math32.Sqrt(dx*dx + dy*dy)
}

// Rect is an axis-aligned box. X2 and Y2 are exclusive.
type Rect struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// RectFromCorners builds a Rect from (x1,y1) top-left and (x2,y2) bottom-right corners.
// Inverted corners produce a zero-sized rectangle.
func RectFromCorners(x1, y1, x2, y2 int32) Rect {
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

func (r Rect) X2() int32 {
	return r.X + r.Width
}

func (r Rect) Y2() int32 {
	return r.Y + r.Height
}

func (r Rect) Area() int64 {
	return int64(r.Width) * int64(r.Height)
}

func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X2(), b.X2())
	y2 := min(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

func (r Rect) Union(b Rect) Rect {
	x1 := min(r.X, b.X)
	y1 := min(r.Y, b.Y)
	x2 := max(r.X2(), b.X2())
	y2 := max(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

// Intersection over Union.
// Returns 0 when the boxes don't overlap, or when both boxes are degenerate.
func (r Rect) IOU(b Rect) float32 {
	inter := r.Intersection(b).Area()
	if inter == 0 {
		return 0
	}
	union := r.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float32(inter) / float32(union)
}

func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

func (r *Rect) Offset(dx, dy int32) {
	r.X += dx
	r.Y += dy
}

// Clip the rectangle so that it lies inside an image of the given size
func (r Rect) Clip(width, height int) Rect {
	return r.Intersection(Rect{X: 0, Y: 0, Width: int32(width), Height: int32(height)})
}

// ImageRect converts to an image.Rectangle (Min inclusive, Max exclusive)
func (r Rect) ImageRect() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X2()), int(r.Y2()))
}
