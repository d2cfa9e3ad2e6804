package recorddb

import (
	"strings"

	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Run is one pass over an input directory
type Run struct {
	BaseModel
	StartedAt  dbh.IntTime `json:"startedAt"`
	FinishedAt dbh.IntTime `json:"finishedAt"`
	InputDir   string      `json:"inputDir"`
	OutputDir  string      `json:"outputDir"`
	Filter     string      `json:"filter"`     // Human readable description of what we were looking for
	ReportPath string      `json:"reportPath"` // Spreadsheet, if one was written
	Processed  int         `json:"processed"`  // Number of files that were processed
	Total      int         `json:"total"`      // Number of eligible files in the input directory
	Cancelled  bool        `json:"cancelled"`
	Stopped    bool        `json:"stopped"` // The progress callback asked us to stop
}

func (Run) TableName() string {
	return "run"
}

// MediaRecord is one file that was kept
type MediaRecord struct {
	BaseModel
	RunID         int64  `json:"runId"`
	Filename      string `json:"filename"`
	Filepath      string `json:"filepath"`
	MediaType     string `json:"mediaType"`     // "image" or "video"
	NumDetections int    `json:"numDetections"` // -1 for videos
	Classes       string `json:"classes"`       // Comma separated, sorted
}

func (MediaRecord) TableName() string {
	return "media_record"
}

// ClassList splits Classes
func (m *MediaRecord) ClassList() []string {
	if m.Classes == "" {
		return nil
	}
	return strings.Split(m.Classes, ", ")
}
