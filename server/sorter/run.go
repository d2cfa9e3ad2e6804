package sorter

import (
	"context"
	"fmt"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/trapsort/pkg/mediafile"
	"github.com/cyclopcam/trapsort/server/recorddb"
	"github.com/cyclopcam/trapsort/server/report"
)

// ProgressFunc is called before the first file with done = 0, and after every file.
// Return false to stop the run.
type ProgressFunc func(done, total int) bool

type RunResult struct {
	Started    time.Time
	Records    []MediaRecord
	ReportPath string // Empty if no report was written
	Processed  int    // Files that were fully processed
	Total      int    // Eligible files in the input directory
	Cancelled  bool   // ctx was cancelled
	Stopped    bool   // The progress callback asked us to stop
	Elapsed    time.Duration
}

// ProcessFile dispatches to the image or video pipeline. Files of any other type are ignored.
func (s *Sorter) ProcessFile(ctx context.Context, path string) (*MediaRecord, error) {
	switch t, _ := mediafile.Classify(path); t {
	case mediafile.TypeImage:
		return s.ProcessImage(ctx, path)
	case mediafile.TypeVideo:
		return s.ProcessVideo(ctx, path)
	}
	return nil, nil
}

// Run sorts every image and video in inputDir, in filename order.
// If any files were kept, a spreadsheet named after the run start time is written to the output
// directory, even if the run was stopped, cancelled, or aborted part way through.
// The result is returned even when the error is not nil.
func (s *Sorter) Run(ctx context.Context, inputDir string, progress ProgressFunc) (*RunResult, error) {
	files, err := mediafile.List(inputDir)
	if err != nil {
		return nil, fmt.Errorf("Failed to read input directory: %w", err)
	}
	if progress == nil {
		progress = func(done, total int) bool { return true }
	}

	s.stats.Reset()
	res := &RunResult{
		Started: time.Now(),
		Total:   len(files),
	}
	s.Log.Infof("Sorting %v files from %v into %v (%v)", len(files), inputDir, s.opts.OutputDir, s.opts.Filter)

	if !progress(0, len(files)) {
		res.Stopped = true
		res.Elapsed = time.Since(res.Started)
		return res, nil
	}

	var runErr error
	for i, path := range files {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		rec, err := s.ProcessFile(ctx, path)
		if err != nil {
			if s.opts.ErrorPolicy == ErrorPolicySkip {
				s.Log.Errorf("Skipping %v: %v", path, err)
			} else {
				s.Log.Errorf("Aborting run: %v", err)
				runErr = err
				break
			}
		} else if ctx.Err() != nil {
			// The file was interrupted, so it doesn't count
			res.Cancelled = true
			break
		}
		if rec != nil {
			res.Records = append(res.Records, *rec)
		}
		res.Processed++
		if !progress(i+1, len(files)) {
			res.Stopped = true
			break
		}
	}

	if err := s.finishRun(inputDir, res); err != nil && runErr == nil {
		runErr = err
	}
	return res, runErr
}

func (s *Sorter) finishRun(inputDir string, res *RunResult) error {
	var firstErr error
	if len(res.Records) != 0 {
		path := report.Path(s.opts.OutputDir, res.Started)
		rows := make([]report.Row, len(res.Records))
		for i := range res.Records {
			rows[i] = res.Records[i].reportRow()
		}
		if err := report.Write(path, rows); err != nil {
			s.Log.Errorf("%v", err)
			firstErr = err
		} else {
			res.ReportPath = path
			s.Log.Infof("Report written to %v", path)
		}
	}

	res.Elapsed = time.Since(res.Started)

	if s.catalog != nil {
		run := &recorddb.Run{
			StartedAt:  dbh.MakeIntTime(res.Started),
			FinishedAt: dbh.MakeIntTime(res.Started.Add(res.Elapsed)),
			InputDir:   inputDir,
			OutputDir:  s.opts.OutputDir,
			Filter:     s.opts.Filter.String(),
			ReportPath: res.ReportPath,
			Processed:  res.Processed,
			Total:      res.Total,
			Cancelled:  res.Cancelled,
			Stopped:    res.Stopped,
		}
		records := make([]recorddb.MediaRecord, len(res.Records))
		for i := range res.Records {
			records[i] = res.Records[i].catalogRecord()
		}
		if err := s.catalog.SaveRun(run, records); err != nil {
			s.Log.Errorf("Failed to save run to record DB: %v", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("Failed to save run to record DB: %w", err)
			}
		}
	}

	s.Log.Infof("Kept %v of %v files. Total processing time: %.2fs", len(res.Records), res.Processed, res.Elapsed.Seconds())
	s.Log.Infof("Stage timings: %v", s.stats.Summary())
	return firstErr
}
