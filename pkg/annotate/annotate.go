// Package annotate draws detection boxes and their labels onto frames
package annotate

import (
	"image"
	"image/color"

	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var BoxColor = color.RGBA{0, 255, 0, 255}

const DefaultLineWidth = 2
const DefaultFontSize = 16

var ttf *truetype.Font

func init() {
	var err error
	ttf, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Box is a rectangle plus the text to draw above it
type Box struct {
	Rect  nn.Rect
	Label string
}

// Annotator is not safe for concurrent use, because the font face caches glyphs
type Annotator struct {
	Color     color.Color
	LineWidth float64
	face      font.Face
}

func NewAnnotator() *Annotator {
	return NewAnnotatorWithSize(DefaultFontSize)
}

func NewAnnotatorWithSize(fontSize float64) *Annotator {
	return &Annotator{
		Color:     BoxColor,
		LineWidth: DefaultLineWidth,
		face:      truetype.NewFace(ttf, &truetype.Options{Size: fontSize}),
	}
}

// Draw the boxes directly into img
func (a *Annotator) Draw(img *image.RGBA, boxes []Box) {
	if len(boxes) == 0 {
		return
	}
	dc := gg.NewContextForRGBA(img)
	dc.SetFontFace(a.face)
	dc.SetColor(a.Color)
	dc.SetLineWidth(a.LineWidth)
	for _, b := range boxes {
		r := b.Rect
		dc.DrawRectangle(float64(r.X), float64(r.Y), float64(r.Width), float64(r.Height))
		dc.Stroke()
		if b.Label != "" {
			// Text baseline sits just above the box, but never off the top of the image
			y := max(r.Y-10, 20)
			dc.DrawString(b.Label, float64(r.X), float64(y))
		}
	}
}
