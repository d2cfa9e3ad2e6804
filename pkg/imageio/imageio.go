// Package imageio reads and writes still images, always as *image.RGBA
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmharper/cimg/v2"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const DefaultJPEGQuality = 90

// Read decodes an image file. JPEG goes through libjpeg-turbo, everything else
// through the Go decoders.
func Read(filename string) (*image.RGBA, error) {
	switch ext(filename) {
	case ".jpg", ".jpeg":
		img, err := cimg.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		return FromCImage(img)
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Decode(raw, ext(filename))
}

// Decode an in-memory image, using the file extension to pick the format
func Decode(raw []byte, extension string) (*image.RGBA, error) {
	var img image.Image
	var err error
	switch strings.ToLower(extension) {
	case ".jpg", ".jpeg":
		c, err := cimg.Decompress(raw)
		if err != nil {
			return nil, err
		}
		return FromCImage(c)
	case ".png":
		img, err = png.Decode(bytes.NewReader(raw))
	case ".bmp":
		img, err = bmp.Decode(bytes.NewReader(raw))
	case ".tif", ".tiff":
		img, err = tiff.Decode(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("Unsupported image format '%v'", extension)
	}
	if err != nil {
		return nil, err
	}
	return ToRGBA(img), nil
}

// Write encodes the image into a format chosen by the file extension
func Write(filename string, img *image.RGBA) error {
	switch ext(filename) {
	case ".jpg", ".jpeg":
		return ToCImage(img).WriteJPEG(filename, cimg.MakeCompressParams(cimg.Sampling420, DefaultJPEGQuality, 0), 0644)
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	switch ext(filename) {
	case ".png":
		err = png.Encode(f, img)
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = fmt.Errorf("Unsupported image format '%v'", filepath.Ext(filename))
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filename)
	}
	return err
}

// EncodeJPEG compresses the image to an in-memory JPEG
func EncodeJPEG(img *image.RGBA, quality int) ([]byte, error) {
	return cimg.Compress(ToCImage(img), cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
}

// Resize returns a new image of the given size
func Resize(img *image.RGBA, width, height int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return Clone(img)
	}
	dst := cimg.ResizeNew(ToCImage(img), width, height, nil)
	return &image.RGBA{
		Pix:    dst.Pixels,
		Stride: dst.Stride,
		Rect:   image.Rect(0, 0, dst.Width, dst.Height),
	}
}

// Crop returns a copy of the portion of img inside r, rebased to the origin.
// The rectangle is clipped to the image first.
func Crop(img *image.RGBA, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	if !r.Empty() {
		draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	}
	return dst
}

func Clone(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// ToRGBA converts any image to RGBA, without copying if it already is RGBA
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// ToCImage wraps the RGBA pixels without copying them
func ToCImage(img *image.RGBA) *cimg.Image {
	if img.Rect.Min != (image.Point{}) {
		img = Clone(img)
	}
	return cimg.WrapImageStrided(img.Rect.Dx(), img.Rect.Dy(), cimg.PixelFormatRGBA, img.Pix, img.Stride)
}

// FromCImage converts a decoded cimg image (gray, RGB or RGBA) to *image.RGBA
func FromCImage(src *cimg.Image) (*image.RGBA, error) {
	nchan := src.NChan()
	dst := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	for y := 0; y < src.Height; y++ {
		in := src.Pixels[y*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		switch nchan {
		case 1:
			for x := 0; x < src.Width; x++ {
				v := in[x]
				out[x*4], out[x*4+1], out[x*4+2], out[x*4+3] = v, v, v, 255
			}
		case 3:
			for x := 0; x < src.Width; x++ {
				out[x*4] = in[x*3]
				out[x*4+1] = in[x*3+1]
				out[x*4+2] = in[x*3+2]
				out[x*4+3] = 255
			}
		case 4:
			copy(out[:src.Width*4], in[:src.Width*4])
		default:
			return nil, fmt.Errorf("Unsupported number of channels %v", nchan)
		}
	}
	return dst, nil
}

func ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
