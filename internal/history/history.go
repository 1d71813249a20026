// Package history keeps a local SQLite ledger of applied rename runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hassrename/hren/internal/plan"
	"github.com/hassrename/hren/internal/session"
)

// SchemaVersion is bumped whenever the tables change incompatibly.
const SchemaVersion = 2

// ErrRunNotFound indicates the requested run id is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// Run is one apply attempt and its outcomes in plan order.
type Run struct {
	ID           int64             `json:"id"`
	Source       plan.Source       `json:"source"`
	Host         string            `json:"host"`
	Fingerprint  string            `json:"fingerprint"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	ChannelError string            `json:"channel_error,omitempty"`
	Planned      int               `json:"planned"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Outcomes     []session.Outcome `json:"outcomes,omitempty"`
}

// Complete reports whether every planned row got an outcome.
func (r Run) Complete() bool {
	return r.ChannelError == "" && r.Succeeded+r.Failed == r.Planned
}

// Store is the ledger handle.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			host TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			started_at INTEGER NOT NULL,   -- unix millis
			finished_at INTEGER NOT NULL,
			channel_error TEXT NOT NULL DEFAULT '',
			planned INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);

		CREATE TABLE IF NOT EXISTS outcomes (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,          -- 0-based plan index
			entity_id TEXT NOT NULL,
			new_entity_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			original_name TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'schema_version'`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(SchemaVersion))
		if err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case version > SchemaVersion:
		return fmt.Errorf("history schema version %d is newer than supported version %d", version, SchemaVersion)
	case version < 2:
		if err := s.migrateOriginalName(); err != nil {
			return err
		}
	}
	return nil
}

// migrateOriginalName adds outcomes.original_name to a version 1 ledger.
// Older outcomes keep an empty original name.
func (s *Store) migrateOriginalName() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`ALTER TABLE outcomes ADD COLUMN original_name TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to migrate history schema: %w", err)
	}
	if _, err := tx.Exec(`UPDATE meta SET value = ? WHERE key = 'schema_version'`, fmt.Sprint(SchemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// RecordRun stores run and its outcomes, returning the new run id.
func (s *Store) RecordRun(ctx context.Context, run *Run) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (source, host, fingerprint, started_at, finished_at, channel_error, planned)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(run.Source), run.Host, run.Fingerprint,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.ChannelError, run.Planned)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (run_id, seq, entity_id, new_entity_id, name, original_name, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range run.Outcomes {
		if _, err := stmt.ExecContext(ctx, id, i, o.ID, o.NewID, o.Label, o.OriginalLabel, boolToInt(o.Success), o.Error); err != nil {
			return 0, fmt.Errorf("failed to insert outcome %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	run.ID = id
	return id, nil
}

const runColumns = `
	r.id, r.source, r.host, r.fingerprint, r.started_at, r.finished_at, r.channel_error, r.planned,
	COALESCE(SUM(o.success), 0),
	COUNT(o.seq) - COALESCE(SUM(o.success), 0)`

// Runs returns the most recent runs first, without outcomes. A limit of
// zero or less returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+runColumns+`
		FROM runs r LEFT JOIN outcomes o ON o.run_id = r.id
		GROUP BY r.id
		ORDER BY r.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return scanRows(rows, scanRun)
}

// FindByFingerprint returns runs of an identical plan, most recent first.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+runColumns+`
		FROM runs r LEFT JOIN outcomes o ON o.run_id = r.id
		WHERE r.fingerprint = ?
		GROUP BY r.id
		ORDER BY r.id DESC`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return scanRows(rows, scanRun)
}

// Run returns one run with its outcomes in plan order.
func (s *Store) Run(ctx context.Context, id int64) (*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+runColumns+`
		FROM runs r LEFT JOIN outcomes o ON o.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	runs, err := scanRows(rows, scanRun)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	run := runs[0]

	rows, err = s.db.QueryContext(ctx, `
		SELECT entity_id, new_entity_id, name, original_name, success, error
		FROM outcomes WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	run.Outcomes, err = scanRows(rows, func(rows *sql.Rows) (session.Outcome, error) {
		var o session.Outcome
		var success int
		err := rows.Scan(&o.ID, &o.NewID, &o.Label, &o.OriginalLabel, &success, &o.Error)
		o.Success = success != 0
		return o, err
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ReverseMapping returns mapping rows that undo the identifier renames
// run applied successfully, last rename first. Each row carries the
// friendly name from before the run, so replaying it restores the label
// as well. Runs recorded without it leave the name blank.
func ReverseMapping(run *Run) []plan.MappingRow {
	var out []plan.MappingRow
	for i := len(run.Outcomes) - 1; i >= 0; i-- {
		o := run.Outcomes[i]
		if !o.Success || o.NewID == "" || o.NewID == o.ID {
			continue
		}
		out = append(out, plan.MappingRow{Label: o.OriginalLabel, ID: o.NewID, NewID: o.ID})
	}
	return out
}

func scanRun(rows *sql.Rows) (Run, error) {
	var r Run
	var source string
	var started, finished int64
	err := rows.Scan(&r.ID, &source, &r.Host, &r.Fingerprint, &started, &finished,
		&r.ChannelError, &r.Planned, &r.Succeeded, &r.Failed)
	r.Source = plan.Source(source)
	r.StartedAt = time.UnixMilli(started)
	r.FinishedAt = time.UnixMilli(finished)
	return r, err
}

// scanRows scans all rows into a slice using the provided scanner.
func scanRows[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
