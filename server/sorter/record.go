package sorter

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/cyclopcam/trapsort/pkg/mediafile"
	"github.com/cyclopcam/trapsort/server/recorddb"
	"github.com/cyclopcam/trapsort/server/report"
)

// NumDetections of a video, which has no single count
const MultipleDetections = -1

// MediaRecord describes one file that was kept
type MediaRecord struct {
	Filename      string
	Filepath      string
	MediaType     mediafile.Type
	NumDetections int      // MultipleDetections for videos
	Classes       []string // Sorted and distinct
}

func newRecord(path string, mediaType mediafile.Type, numDetections int, classes map[string]bool) *MediaRecord {
	list := make([]string, 0, len(classes))
	for c := range classes {
		list = append(list, c)
	}
	slices.Sort(list)
	return &MediaRecord{
		Filename:      filepath.Base(path),
		Filepath:      path,
		MediaType:     mediaType,
		NumDetections: numDetections,
		Classes:       list,
	}
}

func (m *MediaRecord) ClassesString() string {
	return strings.Join(m.Classes, ", ")
}

func (m *MediaRecord) reportRow() report.Row {
	return report.Row{
		Filename:      m.Filename,
		Filepath:      m.Filepath,
		Type:          string(m.MediaType),
		NumDetections: m.NumDetections,
		Classes:       m.ClassesString(),
	}
}

func (m *MediaRecord) catalogRecord() recorddb.MediaRecord {
	return recorddb.MediaRecord{
		Filename:      m.Filename,
		Filepath:      m.Filepath,
		MediaType:     string(m.MediaType),
		NumDetections: m.NumDetections,
		Classes:       m.ClassesString(),
	}
}
