package recorddb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id INTEGER PRIMARY KEY,
			started_at INT NOT NULL,
			finished_at INT NOT NULL,
			input_dir TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			filter TEXT NOT NULL,
			report_path TEXT,
			processed INT NOT NULL,
			total INT NOT NULL,
			cancelled INT NOT NULL,
			stopped INT NOT NULL
		);

		CREATE TABLE media_record(
			id INTEGER PRIMARY KEY,
			run_id INT NOT NULL,
			filename TEXT NOT NULL,
			filepath TEXT NOT NULL,
			media_type TEXT NOT NULL,
			num_detections INT NOT NULL,
			classes TEXT NOT NULL
		);
		CREATE INDEX idx_media_record_run_id ON media_record (run_id);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE INDEX idx_media_record_filename ON media_record (filename);
	`))

	return migs
}
