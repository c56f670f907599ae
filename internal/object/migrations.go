package object

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all driver tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS objects (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		guid        TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL UNIQUE,
		source      TEXT NOT NULL,
		next_handle INTEGER NOT NULL DEFAULT 1,
		created_at  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS callout_args (
		object_id  INTEGER NOT NULL,
		handle     INTEGER NOT NULL,
		method     TEXT NOT NULL,
		args       TEXT NOT NULL DEFAULT '[]',
		stored     INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (object_id, handle),
		FOREIGN KEY (object_id) REFERENCES objects(id) ON DELETE CASCADE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_callout_args_object ON callout_args(object_id)`,
}

// migrate applies the schema statements in order.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
