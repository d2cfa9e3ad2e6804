package onnx

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/trapsort/pkg/imageio"
)

// YOLOv5 pads letterboxed images with this gray level
const letterboxFill = 114

// letterbox describes how an image was fitted into the network input.
// network = image * Scale + Pad
type letterbox struct {
	Scale  float32
	PadX   int
	PadY   int
	Width  int // Size of the resized image, inside the padding
	Height int
}

func makeLetterbox(imgWidth, imgHeight, netWidth, netHeight int) letterbox {
	scale := min(float32(netWidth)/float32(imgWidth), float32(netHeight)/float32(imgHeight))
	w := max(1, min(netWidth, int(math32.Round(float32(imgWidth)*scale))))
	h := max(1, min(netHeight, int(math32.Round(float32(imgHeight)*scale))))
	return letterbox{
		Scale:  scale,
		PadX:   (netWidth - w) / 2,
		PadY:   (netHeight - h) / 2,
		Width:  w,
		Height: h,
	}
}

// Map a network coordinate back into the original image
func (l letterbox) toImage(x, y float32) (float32, float32) {
	return (x - float32(l.PadX)) / l.Scale, (y - float32(l.PadY)) / l.Scale
}

// fillPlanar writes img into dst as planar RGB floats in [0,1], letterboxed into a netWidth x netHeight canvas
func fillPlanar(dst []float32, img *image.RGBA, netWidth, netHeight int, lb letterbox) {
	resized := img
	b := img.Bounds()
	if b.Dx() != lb.Width || b.Dy() != lb.Height {
		resized = imageio.Resize(img, lb.Width, lb.Height)
	} else if b.Min != (image.Point{}) {
		resized = imageio.Clone(img)
	}
	plane := netWidth * netHeight
	fill := float32(letterboxFill) / 255
	for i := range dst[:3*plane] {
		dst[i] = fill
	}
	for y := 0; y < lb.Height; y++ {
		src := resized.Pix[y*resized.Stride:]
		out := (y+lb.PadY)*netWidth + lb.PadX
		for x := 0; x < lb.Width; x++ {
			dst[out+x] = float32(src[x*4]) / 255
			dst[plane+out+x] = float32(src[x*4+1]) / 255
			dst[2*plane+out+x] = float32(src[x*4+2]) / 255
		}
	}
}

// fillInterleaved writes img, stretched to netWidth x netHeight, as interleaved RGB floats in [0,1]
func fillInterleaved(dst []float32, img *image.RGBA, netWidth, netHeight int) {
	resized := imageio.Resize(img, netWidth, netHeight)
	for y := 0; y < netHeight; y++ {
		src := resized.Pix[y*resized.Stride:]
		out := dst[y*netWidth*3:]
		for x := 0; x < netWidth; x++ {
			out[x*3] = float32(src[x*4]) / 255
			out[x*3+1] = float32(src[x*4+1]) / 255
			out[x*3+2] = float32(src[x*4+2]) / 255
		}
	}
}
