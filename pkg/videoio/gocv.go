package videoio

import (
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"
)

// GocvOpener reads and writes video with OpenCV
type GocvOpener struct {
	Codec string // FourCC for new files. Empty = DefaultCodec
}

func NewGocvOpener() *GocvOpener {
	return &GocvOpener{Codec: DefaultCodec}
}

func (o *GocvOpener) OpenSource(filename string) (Source, error) {
	vc, err := gocv.VideoCaptureFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrNotOpened, filename, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotOpened, filename)
	}
	info := Info{
		Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        vc.Get(gocv.VideoCaptureFPS),
		FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}
	if info.FPS <= 0 {
		info.FPS = DefaultFPS
	}
	return &gocvSource{
		vc:   vc,
		info: info,
		bgr:  gocv.NewMat(),
		rgba: gocv.NewMat(),
	}, nil
}

func (o *GocvOpener) CreateSink(filename string, info Info) (Sink, error) {
	codec := o.Codec
	if codec == "" {
		codec = DefaultCodec
	}
	fps := info.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	w, err := gocv.VideoWriterFile(filename, codec, fps, info.Width, info.Height, true)
	if err != nil {
		return nil, err
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("Failed to create video writer for %v (codec %v)", filename, codec)
	}
	return &gocvSink{
		w:      w,
		width:  info.Width,
		height: info.Height,
	}, nil
}

type gocvSource struct {
	vc    *gocv.VideoCapture
	info  Info
	bgr   gocv.Mat
	rgba  gocv.Mat
	frame *image.RGBA
}

func (s *gocvSource) Info() Info {
	return s.info
}

func (s *gocvSource) ReadFrame() (*image.RGBA, error) {
	if ok := s.vc.Read(&s.bgr); !ok || s.bgr.Empty() {
		return nil, io.EOF
	}
	if err := gocv.CvtColor(s.bgr, &s.rgba, gocv.ColorBGRToRGBA); err != nil {
		return nil, err
	}
	width := s.rgba.Cols()
	height := s.rgba.Rows()
	if s.frame == nil || s.frame.Rect.Dx() != width || s.frame.Rect.Dy() != height {
		s.frame = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	copy(s.frame.Pix, s.rgba.ToBytes())
	return s.frame, nil
}

func (s *gocvSource) Close() error {
	s.bgr.Close()
	s.rgba.Close()
	return s.vc.Close()
}

type gocvSink struct {
	w      *gocv.VideoWriter
	width  int
	height int
}

func (s *gocvSink) WriteFrame(img *image.RGBA) error {
	if img.Rect.Dx() != s.width || img.Rect.Dy() != s.height {
		return fmt.Errorf("Frame size %v x %v does not match video size %v x %v", img.Rect.Dx(), img.Rect.Dy(), s.width, s.height)
	}
	var pix []byte
	if img.Stride == s.width*4 {
		pix = img.Pix[:s.width*s.height*4]
	} else {
		pix = make([]byte, 0, s.width*s.height*4)
		for y := 0; y < s.height; y++ {
			pix = append(pix, img.Pix[y*img.Stride:y*img.Stride+s.width*4]...)
		}
	}
	rgba, err := gocv.NewMatFromBytes(s.height, s.width, gocv.MatTypeCV8UC4, pix)
	if err != nil {
		return err
	}
	defer rgba.Close()
	bgr := gocv.NewMat()
	defer bgr.Close()
	if err := gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR); err != nil {
		return err
	}
	return s.w.Write(bgr)
}

func (s *gocvSink) Close() error {
	return s.w.Close()
}
