// Package report writes the spreadsheet that summarizes a sorting run
package report

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Detections"

var Columns = []string{"filename", "filepath", "type", "num_detections", "classes"}

// Row is one kept file
type Row struct {
	Filename      string
	Filepath      string
	Type          string // "image" or "video"
	NumDetections int    // -1 is written as "multiple"
	Classes       string // Comma separated
}

// Filename returns detections_YYYYMMDD_HHMMSS.xlsx for the given run start time
func Filename(started time.Time) string {
	return fmt.Sprintf("detections_%v.xlsx", started.Format("20060102_150405"))
}

// Path returns the full path of the report for a run
func Path(outputDir string, started time.Time) string {
	return filepath.Join(outputDir, Filename(started))
}

// FormatDetections renders the num_detections column
func FormatDetections(n int) string {
	if n < 0 {
		return "multiple"
	}
	return strconv.Itoa(n)
}

// Write creates the spreadsheet. An existing file is overwritten.
func Write(filename string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		var detections any = r.NumDetections
		if r.NumDetections < 0 {
			detections = FormatDetections(r.NumDetections)
		}
		values := []any{r.Filename, r.Filepath, r.Type, detections, r.Classes}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}
	f.SetColWidth(sheetName, "A", "A", 30)
	f.SetColWidth(sheetName, "B", "B", 60)
	f.SetColWidth(sheetName, "E", "E", 30)

	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("Failed to save report %v: %w", filename, err)
	}
	return nil
}

// Read loads a report written by Write
func Read(filename string) ([]Row, error) {
	f, err := excelize.OpenFile(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	all, err := f.GetRows(sheetName)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("Report %v has no header", filename)
	}
	rows := []Row{}
	for _, cells := range all[1:] {
		for len(cells) < len(Columns) {
			cells = append(cells, "")
		}
		n := -1
		if cells[3] != "multiple" {
			if n, err = strconv.Atoi(cells[3]); err != nil {
				return nil, fmt.Errorf("Invalid num_detections '%v' in %v", cells[3], filename)
			}
		}
		rows = append(rows, Row{
			Filename:      cells[0],
			Filepath:      cells[1],
			Type:          cells[2],
			NumDetections: n,
			Classes:       cells[4],
		})
	}
	return rows, nil
}
