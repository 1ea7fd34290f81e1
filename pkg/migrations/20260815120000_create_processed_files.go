package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE processed_files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				filename TEXT NOT NULL,
				series TEXT,
				volume INTEGER,
				chapter REAL,
				file_path TEXT,
				cover_path TEXT,
				processed_date TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				file_hash TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'completed',
				error_message TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		// The content hash is the dedup key.
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_processed_files_file_hash ON processed_files (file_hash)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_processed_files_series_volume ON processed_files (series, volume)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_processed_files_status ON processed_files (status)`)
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`DROP TABLE IF EXISTS processed_files`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
