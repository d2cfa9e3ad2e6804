package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFilename(t *testing.T) {
	started := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	require.Equal(t, "detections_20240309_140507.xlsx", Filename(started))
	require.Equal(t, filepath.Join("out", "detections_20240309_140507.xlsx"), Path("out", started))
}

func TestWrite(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "r.xlsx")
	rows := []Row{
		{Filename: "a.jpg", Filepath: "/in/a.jpg", Type: "image", NumDetections: 2, Classes: "Leopard"},
		{Filename: "b.mp4", Filepath: "/in/b.mp4", Type: "video", NumDetections: -1, Classes: "Human"},
	}
	require.NoError(t, Write(fn, rows))

	f, err := excelize.OpenFile(fn)
	require.NoError(t, err)
	defer f.Close()
	all, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, Columns, all[0])
	require.Equal(t, []string{"b.mp4", "/in/b.mp4", "video", "multiple", "Human"}, all[2])

	back, err := Read(fn)
	require.NoError(t, err)
	require.Equal(t, rows, back)
}
