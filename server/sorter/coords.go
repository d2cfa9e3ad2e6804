package sorter

import (
	"image"

	"github.com/cyclopcam/trapsort/pkg/imageio"
	"github.com/cyclopcam/trapsort/pkg/nn"
)

// Scaler maps between a native video frame and the smaller frame that we run inference on
type Scaler struct {
	NativeWidth  int
	NativeHeight int
	Scale        float64 // inference = native * Scale
	Width        int     // Inference frame size
	Height       int
}

// NewScaler only ever shrinks. Frames narrower than targetWidth are used as-is.
func NewScaler(nativeWidth, nativeHeight, targetWidth int) Scaler {
	scale := 1.0
	if nativeWidth > targetWidth {
		scale = float64(targetWidth) / float64(nativeWidth)
	}
	return Scaler{
		NativeWidth:  nativeWidth,
		NativeHeight: nativeHeight,
		Scale:        scale,
		Width:        max(1, int(float64(nativeWidth)*scale)),
		Height:       max(1, int(float64(nativeHeight)*scale)),
	}
}

func (s Scaler) Downscaled() bool {
	return s.Scale != 1
}

// Apply returns the inference frame. If no scaling is needed, the native frame is returned.
func (s Scaler) Apply(native *image.RGBA) *image.RGBA {
	if !s.Downscaled() {
		return native
	}
	return imageio.Resize(native, s.Width, s.Height)
}

// ToNative maps a box from inference coordinates to native coordinates
func (s Scaler) ToNative(r nn.Rect) nn.Rect {
	if !s.Downscaled() {
		return r
	}
	return nn.RectFromCorners(
		int32(float64(r.X)/s.Scale),
		int32(float64(r.Y)/s.Scale),
		int32(float64(r.X2())/s.Scale),
		int32(float64(r.Y2())/s.Scale),
	)
}
