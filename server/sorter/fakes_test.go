package sorter

import (
	"errors"
	"image"
	"io"
	"os"
	"strings"

	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/trapsort/pkg/videoio"
)

type fakeDetector struct {
	dets     []nn.ObjectDetection
	err      error
	calls    int
	onDetect func()
	params   *nn.DetectionParams
}

func (d *fakeDetector) Close() {}

func (d *fakeDetector) DetectObjects(img *image.RGBA, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	d.calls++
	d.params = params
	if d.onDetect != nil {
		d.onDetect()
	}
	if d.err != nil {
		return nil, d.err
	}
	return append([]nn.ObjectDetection{}, d.dets...), nil
}

func (d *fakeDetector) Config() *nn.ModelConfig {
	return &nn.ModelConfig{Architecture: "yolov5", Width: 640, Height: 640}
}

type fakeClassifier struct {
	label string
	conf  float32
	calls int
}

func (c *fakeClassifier) Close() {}

func (c *fakeClassifier) Classify(img image.Image) (*nn.Classification, error) {
	c.calls++
	if c.label == "" {
		return nil, nil
	}
	return &nn.Classification{Label: c.label, Confidence: c.conf}, nil
}

// fakeVideos produces blank frames, and writes one byte per frame to its sinks
type fakeVideos struct {
	width      int
	height     int
	frames     int
	framesRead int // Across all sources
	onFrame    func(frameIndex int)
	written    map[string]int
}

func newFakeVideos(width, height, frames int) *fakeVideos {
	return &fakeVideos{
		width:   width,
		height:  height,
		frames:  frames,
		written: map[string]int{},
	}
}

func (v *fakeVideos) OpenSource(filename string) (videoio.Source, error) {
	if strings.Contains(filename, "broken") {
		return nil, videoio.ErrNotOpened
	}
	return &fakeSource{videos: v}, nil
}

func (v *fakeVideos) CreateSink(filename string, info videoio.Info) (videoio.Sink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &fakeSink{videos: v, filename: filename, file: f}, nil
}

type fakeSource struct {
	videos *fakeVideos
	next   int
}

func (s *fakeSource) Info() videoio.Info {
	return videoio.Info{Width: s.videos.width, Height: s.videos.height, FPS: 10, FrameCount: s.videos.frames}
}

func (s *fakeSource) ReadFrame() (*image.RGBA, error) {
	if s.next >= s.videos.frames {
		return nil, io.EOF
	}
	if s.videos.onFrame != nil {
		s.videos.onFrame(s.next)
	}
	s.next++
	s.videos.framesRead++
	return image.NewRGBA(image.Rect(0, 0, s.videos.width, s.videos.height)), nil
}

func (s *fakeSource) Close() error {
	return nil
}

type fakeSink struct {
	videos   *fakeVideos
	filename string
	file     *os.File
}

func (s *fakeSink) WriteFrame(img *image.RGBA) error {
	if s.file == nil {
		return errors.New("sink closed")
	}
	s.videos.written[s.filename]++
	_, err := s.file.Write([]byte{1})
	return err
}

func (s *fakeSink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
