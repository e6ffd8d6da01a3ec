package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial archive layout.
const schemaV1 = `
-- One row per recorded session, holding the session_info record
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    animal1_name TEXT NOT NULL,
    animal2_name TEXT NOT NULL,
    experiment_date TEXT NOT NULL,
    task_type INTEGER NOT NULL,
    tasktype_block INTEGER NOT NULL,
    tasktype_random INTEGER NOT NULL,
    tasktype_blocklength INTEGER NOT NULL,
    large_reward_volume REAL NOT NULL,
    small_reward_volume REAL NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

CREATE TABLE IF NOT EXISTS trial_records (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    trial_number INTEGER NOT NULL,
    first_pull_id INTEGER NOT NULL,
    rewarded INTEGER NOT NULL,
    task_type INTEGER NOT NULL,
    trial_start_timestamp REAL NOT NULL,
    PRIMARY KEY (session_id, trial_number)
);

-- seq preserves append order; timepoints repeat within a tick
CREATE TABLE IF NOT EXISTS behavior_events (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    trial_number INTEGER NOT NULL,
    timepoint REAL NOT NULL,
    event_code INTEGER NOT NULL,
    PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS lever_readouts (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    trial_number INTEGER NOT NULL,
    timepoint REAL NOT NULL,
    strain_gauge REAL NOT NULL,
    potentiometer REAL NOT NULL,
    lever_id INTEGER NOT NULL,
    pull_or_release INTEGER NOT NULL,
    PRIMARY KEY (session_id, seq)
);
`

// migrations holds the DDL that brings the archive to version i+1.
// SchemaVersion must equal len(migrations).
var migrations = []string{
	schemaV1,
}

const versionTable = `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`

// tables lists every table, children first.
var tables = []string{
	"lever_readouts",
	"behavior_events",
	"trial_records",
	"sessions",
	"schema_version",
}

// InitSchema brings db up to SchemaVersion. An existing archive is checked
// with ValidateIntegrity first; an archive written by a newer build is refused.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, versionTable); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	current, err := getSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	switch {
	case current > SchemaVersion:
		return fmt.Errorf("archive schema version %d is newer than supported version %d", current, SchemaVersion)
	case current == SchemaVersion:
		return nil
	case current > 0:
		if err := ValidateIntegrity(ctx, db); err != nil {
			return fmt.Errorf("archive integrity check failed: %w", err)
		}
	}

	for v := current + 1; v <= SchemaVersion; v++ {
		if err := applyMigration(ctx, db, v); err != nil {
			return fmt.Errorf("migrating archive to version %d: %w", v, err)
		}
	}
	return nil
}

// getSchemaVersion returns the highest applied version, 0 for an empty archive.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migrations[version-1]); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, version); err != nil {
		return err
	}
	return tx.Commit()
}

// ValidateIntegrity fails when PRAGMA integrity_check reports anything but
// "ok" or PRAGMA foreign_key_check reports any dangling row.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	var problems []string

	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("integrity_check: %w", err)
	}
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			rows.Close()
			return fmt.Errorf("integrity_check: %w", err)
		}
		if msg != "ok" {
			problems = append(problems, msg)
		}
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, parent string
		var rowid sql.NullInt64
		var fkid int
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("foreign_key_check: %w", err)
		}
		problems = append(problems, fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
	}

	if len(problems) > 0 {
		return fmt.Errorf("archive is damaged: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ResetSchema drops every archive table and recreates them empty. Tests only.
func ResetSchema(ctx context.Context, db *sql.DB) error {
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return InitSchema(ctx, db)
}
