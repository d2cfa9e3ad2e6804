package sorter

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trapsort/pkg/filter"
	"github.com/cyclopcam/trapsort/pkg/imageio"
	"github.com/cyclopcam/trapsort/pkg/mediafile"
	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/trapsort/server/recorddb"
	"github.com/cyclopcam/trapsort/server/report"
	"github.com/stretchr/testify/require"
)

func detection(x, y, w, h int32, conf float32) nn.ObjectDetection {
	return nn.ObjectDetection{
		Class:      nn.MegaDetectorAnimal,
		Confidence: conf,
		Box:        nn.Rect{X: x, Y: y, Width: w, Height: h},
	}
}

type testRig struct {
	sorter     *Sorter
	detector   *fakeDetector
	classifier *fakeClassifier
	videos     *fakeVideos
	inputDir   string
	outputDir  string
}

func newRig(t *testing.T, f filter.Filter, dets []nn.ObjectDetection, label string) *testRig {
	root := t.TempDir()
	rig := &testRig{
		detector:   &fakeDetector{dets: dets},
		classifier: &fakeClassifier{label: label, conf: 0.9},
		videos:     newFakeVideos(640, 480, 10),
		inputDir:   filepath.Join(root, "in"),
		outputDir:  filepath.Join(root, "out"),
	}
	require.NoError(t, os.MkdirAll(rig.inputDir, 0770))
	opts := DefaultOptions()
	opts.OutputDir = rig.outputDir
	opts.Filter = f
	s, err := NewSorter(logs.NewTestingLog(t), rig.detector, rig.classifier, rig.videos, opts)
	require.NoError(t, err)
	rig.sorter = s
	return rig
}

func (r *testRig) addImage(t *testing.T, name string) string {
	path := filepath.Join(r.inputDir, name)
	require.NoError(t, imageio.Write(path, image.NewRGBA(image.Rect(0, 0, 200, 150))))
	return path
}

func (r *testRig) addVideo(t *testing.T, name string) string {
	path := filepath.Join(r.inputDir, name)
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0644))
	return path
}

func (r *testRig) outputFiles(t *testing.T) []string {
	entries, err := os.ReadDir(r.outputDir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewSorterValidation(t *testing.T) {
	log := logs.NewTestingLog(t)
	det := &fakeDetector{}

	opts := DefaultOptions()
	_, err := NewSorter(log, det, nil, nil, opts)
	require.ErrorIs(t, err, ErrNoOutputDir)

	opts.OutputDir = t.TempDir()
	opts.Filter = filter.New("plants", nil)
	_, err = NewSorter(log, det, nil, nil, opts)
	require.ErrorIs(t, err, filter.ErrInvalidMode)

	opts.Filter = filter.New("", []string{"Leopard"})
	_, err = NewSorter(log, det, nil, nil, opts)
	require.ErrorIs(t, err, ErrNoClassifier)

	// Human and all-animal modes never consult the classifier
	opts.Filter = filter.New(filter.ModeHuman, nil)
	_, err = NewSorter(log, det, nil, nil, opts)
	require.NoError(t, err)
	opts.Filter = filter.New("", []string{"Animal (All)"})
	_, err = NewSorter(log, det, nil, nil, opts)
	require.NoError(t, err)
}

func TestImageHuman(t *testing.T) {
	f := filter.New(filter.ModeHuman, nil)
	rig := newRig(t, f, []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "")
	path := rig.addImage(t, "a.png")

	rec, err := rig.sorter.ProcessImage(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "a.png", rec.Filename)
	require.Equal(t, path, rec.Filepath)
	require.Equal(t, mediafile.TypeImage, rec.MediaType)
	require.Equal(t, 1, rec.NumDetections)
	require.Equal(t, []string{"Human"}, rec.Classes)
	require.Equal(t, "Human 0.80", f.DisplayLabel("Unknown", 0, 0.8))
	require.Equal(t, []int{nn.MegaDetectorPerson}, rig.detector.params.Classes)
	require.Equal(t, 0, rig.classifier.calls)
	require.FileExists(t, filepath.Join(rig.outputDir, "a.png"))
}

func TestImageSpeciesSynonym(t *testing.T) {
	rig := newRig(t, filter.New("", []string{"Leopard"}), []nn.ObjectDetection{detection(10, 10, 100, 100, 0.7)}, "panthera species")
	path := rig.addImage(t, "b.png")

	rec, err := rig.sorter.ProcessImage(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, []string{"Leopard"}, rec.Classes)
	require.Equal(t, 1, rig.classifier.calls)
	require.Equal(t, []int{nn.MegaDetectorAnimal}, rig.detector.params.Classes)
}

func TestImageWrongSpecies(t *testing.T) {
	rig := newRig(t, filter.New("", []string{"Tiger"}), []nn.ObjectDetection{detection(10, 10, 100, 100, 0.7)}, "Leopard")
	path := rig.addImage(t, "c.png")

	rec, err := rig.sorter.ProcessImage(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Empty(t, rig.outputFiles(t))
}

func TestImageSmallBox(t *testing.T) {
	rig := newRig(t, filter.New("", nil), []nn.ObjectDetection{detection(10, 10, 30, 35, 0.9)}, "Leopard")
	path := rig.addImage(t, "d.png")

	rec, err := rig.sorter.ProcessImage(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, rec)

	// A large box alongside the small one is kept, and only the large one is counted
	rig.detector.dets = append(rig.detector.dets, detection(50, 50, 40, 40, 0.9))
	rec, err = rig.sorter.ProcessImage(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 1, rec.NumDetections)
}

func TestImageBlank(t *testing.T) {
	rig := newRig(t, filter.New("", nil), []nn.ObjectDetection{detection(10, 10, 100, 100, 0.9)}, "BLANK")
	path := rig.addImage(t, "e.png")

	rec, err := rig.sorter.ProcessImage(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Empty(t, rig.outputFiles(t))
}

func TestImageUnreadable(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "")
	path := filepath.Join(rig.inputDir, "corrupt.png")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	rec, err := rig.sorter.ProcessImage(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Equal(t, 0, rig.detector.calls)
}

func TestVideoScheduler(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "")
	path := rig.addVideo(t, "v.mp4")

	detectFrames := []int{}
	rig.detector.onDetect = func() {
		detectFrames = append(detectFrames, rig.videos.framesRead-1)
	}

	rec, err := rig.sorter.ProcessVideo(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, []int{0, 5}, detectFrames)
	require.Equal(t, 10, rig.videos.framesRead)
}

func TestVideoAccepted(t *testing.T) {
	rig := newRig(t, filter.New("", []string{"Leopard"}), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "jaguar")
	path := rig.addVideo(t, "clip.mp4")

	rec, err := rig.sorter.ProcessVideo(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, MultipleDetections, rec.NumDetections)
	require.Equal(t, mediafile.TypeVideo, rec.MediaType)
	require.Equal(t, []string{"Leopard"}, rec.Classes)

	// One track, so the classifier runs once
	require.Equal(t, 1, rig.classifier.calls)

	require.Equal(t, []string{"clip.mp4"}, rig.outputFiles(t))
	require.Equal(t, 10, rig.videos.written[filepath.Join(rig.outputDir, tempPrefix+"clip.mp4")])
	raw, err := os.ReadFile(filepath.Join(rig.outputDir, "clip.mp4"))
	require.NoError(t, err)
	require.Len(t, raw, 10)
}

func TestVideoRejected(t *testing.T) {
	rig := newRig(t, filter.New("", []string{"Tiger"}), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "Leopard")
	path := rig.addVideo(t, "clip.mp4")

	rec, err := rig.sorter.ProcessVideo(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Empty(t, rig.outputFiles(t))
}

func TestVideoReplacesExisting(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "")
	path := rig.addVideo(t, "clip.mp4")
	require.NoError(t, os.WriteFile(filepath.Join(rig.outputDir, "clip.mp4"), []byte("stale output from an earlier run"), 0644))

	rec, err := rig.sorter.ProcessVideo(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	raw, err := os.ReadFile(filepath.Join(rig.outputDir, "clip.mp4"))
	require.NoError(t, err)
	require.Len(t, raw, 10)
}

func TestVideoCancelled(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "")
	path := rig.addVideo(t, "clip.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rig.videos.onFrame = func(frameIndex int) {
		if frameIndex == 3 {
			cancel()
		}
	}

	rec, err := rig.sorter.ProcessVideo(ctx, path)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Empty(t, rig.outputFiles(t))
	require.Less(t, rig.videos.framesRead, 10)
}

func TestVideoBroken(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), nil, "")
	path := rig.addVideo(t, "broken.mp4")

	rec, err := rig.sorter.ProcessVideo(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Empty(t, rig.outputFiles(t))
}

func TestVideoBlankTrack(t *testing.T) {
	rig := newRig(t, filter.New("", nil), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "blank")
	path := rig.addVideo(t, "clip.mp4")

	rec, err := rig.sorter.ProcessVideo(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Empty(t, rig.outputFiles(t))
}

func TestRunStoppedByProgress(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "")
	rig.addImage(t, "a.png")
	rig.addImage(t, "b.png")
	rig.addImage(t, "c.png")
	require.NoError(t, os.WriteFile(filepath.Join(rig.inputDir, "notes.txt"), []byte("hello"), 0644))

	calls := [][2]int{}
	res, err := rig.sorter.Run(context.Background(), rig.inputDir, func(done, total int) bool {
		calls = append(calls, [2]int{done, total})
		return done < 1
	})
	require.NoError(t, err)
	require.True(t, res.Stopped)
	require.False(t, res.Cancelled)
	require.Equal(t, 3, res.Total)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, [][2]int{{0, 3}, {1, 3}}, calls)
	require.Len(t, res.Records, 1)

	require.NotEmpty(t, res.ReportPath)
	rows, err := report.Read(res.ReportPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a.png", rows[0].Filename)
	require.Equal(t, "Human", rows[0].Classes)
	require.Equal(t, 1, rows[0].NumDetections)
}

func TestRunStoppedBeforeStart(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "")
	rig.addImage(t, "a.png")

	res, err := rig.sorter.Run(context.Background(), rig.inputDir, func(done, total int) bool { return false })
	require.NoError(t, err)
	require.True(t, res.Stopped)
	require.Equal(t, 0, res.Processed)
	require.Empty(t, res.ReportPath)
	require.Equal(t, 0, rig.detector.calls)
}

func TestRunNoMatches(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), nil, "")
	rig.addImage(t, "a.png")
	rig.addVideo(t, "b.mp4")

	res, err := rig.sorter.Run(context.Background(), rig.inputDir, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.Processed)
	require.Empty(t, res.Records)
	require.Empty(t, res.ReportPath)
	require.Empty(t, rig.outputFiles(t))
}

func TestRunMixed(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "")
	rig.addImage(t, "a.png")
	rig.addVideo(t, "b.mp4")

	res, err := rig.sorter.Run(context.Background(), rig.inputDir, nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	require.Equal(t, mediafile.TypeImage, res.Records[0].MediaType)
	require.Equal(t, mediafile.TypeVideo, res.Records[1].MediaType)

	rows, err := report.Read(res.ReportPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, MultipleDetections, rows[1].NumDetections)

	stats := rig.sorter.Stats()
	require.Equal(t, int64(rig.detector.calls), stats.Detect.Samples)
	require.Equal(t, int64(0), stats.Classify.Samples)
	require.Equal(t, int64(1+11), stats.Decode.Samples) // image, then 10 frames plus EOF
}

func TestRunErrorPolicy(t *testing.T) {
	boom := errors.New("inference failed")

	rig := newRig(t, filter.New(filter.ModeHuman, nil), nil, "")
	rig.detector.err = boom
	rig.addImage(t, "a.png")
	rig.addImage(t, "b.png")

	res, err := rig.sorter.Run(context.Background(), rig.inputDir, nil)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	require.Equal(t, 0, res.Processed)
	require.Equal(t, 1, rig.detector.calls)

	rig.sorter.opts.ErrorPolicy = ErrorPolicySkip
	rig.detector.calls = 0
	res, err = rig.sorter.Run(context.Background(), rig.inputDir, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, 2, rig.detector.calls)
}

func TestRunCancelled(t *testing.T) {
	rig := newRig(t, filter.New(filter.ModeHuman, nil), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "")
	rig.addImage(t, "a.png")
	rig.addImage(t, "b.png")

	ctx, cancel := context.WithCancel(context.Background())
	res, err := rig.sorter.Run(ctx, rig.inputDir, func(done, total int) bool {
		if done == 1 {
			cancel()
		}
		return true
	})
	require.NoError(t, err)
	require.True(t, res.Cancelled)
	require.Equal(t, 1, res.Processed)
	require.Len(t, res.Records, 1)
	require.NotEmpty(t, res.ReportPath)
}

func TestRunCatalog(t *testing.T) {
	rig := newRig(t, filter.New("", []string{"Leopard"}), []nn.ObjectDetection{detection(10, 10, 60, 60, 0.8)}, "Leopard")
	rig.addImage(t, "a.png")
	rig.addVideo(t, "b.mp4")

	db, err := recorddb.Open(logs.NewTestingLog(t), filepath.Join(t.TempDir(), "records.sqlite"))
	require.NoError(t, err)
	defer db.Close()
	rig.sorter.SetCatalog(db)

	res, err := rig.sorter.Run(context.Background(), rig.inputDir, nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	runs, err := db.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, rig.inputDir, runs[0].InputDir)
	require.Equal(t, res.ReportPath, runs[0].ReportPath)
	require.Equal(t, 2, runs[0].Processed)

	found, err := db.FindByFilename("b.mp4")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, -1, found[0].NumDetections)
	require.Equal(t, []string{"Leopard"}, found[0].ClassList())
}
