// Package recorddb keeps a history of sorting runs, and the files that each run kept
package recorddb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

type RecordDB struct {
	log logs.Log
	db  *gorm.DB
}

// Open or create a record DB
func Open(log logs.Log, dbFilename string) (*RecordDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbFilename), 0770); err != nil {
		return nil, fmt.Errorf("Failed to create record DB directory: %w", err)
	}
	log.Infof("Opening record DB at '%v'", dbFilename)
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbFilename), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open record database %v: %w", dbFilename, err)
	}
	return &RecordDB{
		log: log,
		db:  db,
	}, nil
}

func (r *RecordDB) Close() {
	if sqlDB, err := r.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// SaveRun stores the run and its records in a single transaction.
// The IDs of run and records are populated.
func (r *RecordDB) SaveRun(run *Run, records []MediaRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		for i := range records {
			records[i].RunID = run.ID
		}
		if len(records) != 0 {
			if err := tx.Create(&records).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Runs returns the most recent runs first
func (r *RecordDB) Runs(limit int) ([]Run, error) {
	runs := []Run{}
	q := r.db.Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&runs).Error
	return runs, err
}

func (r *RecordDB) Records(runID int64) ([]MediaRecord, error) {
	records := []MediaRecord{}
	err := r.db.Where("run_id = ?", runID).Order("id").Find(&records).Error
	return records, err
}

// FindByFilename returns every record of a file, across all runs
func (r *RecordDB) FindByFilename(filename string) ([]MediaRecord, error) {
	records := []MediaRecord{}
	err := r.db.Where("filename = ?", filename).Order("id").Find(&records).Error
	return records, err
}
