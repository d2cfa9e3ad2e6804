// Package videoio decodes and encodes video files one frame at a time.
// Frames are always *image.RGBA, so that the rest of the system doesn't need to know about OpenCV.
package videoio

import (
	"errors"
	"image"
)

const DefaultFPS = 25
const DefaultCodec = "mp4v"

var ErrNotOpened = errors.New("Video could not be opened")

type Info struct {
	Width      int
	Height     int
	FPS        float64 // Never zero. DefaultFPS if the container doesn't say.
	FrameCount int     // Estimate from the container. May be zero.
}

// Source produces the frames of a video in order
type Source interface {
	Info() Info
	// ReadFrame returns io.EOF once the video is exhausted.
	// The returned image is only valid until the next call to ReadFrame.
	ReadFrame() (*image.RGBA, error)
	Close() error
}

// Sink consumes frames, and writes them to a video file
type Sink interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// Opener creates sources and sinks. The default is the OpenCV implementation in this package.
type Opener interface {
	OpenSource(filename string) (Source, error)
	CreateSink(filename string, info Info) (Sink, error)
}
