// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runlog keeps a SQLite history of sync runs: counts, outcome, and
// the identifiers placed in each partition. The history is for operators;
// duplicate detection never reads it.
package runlog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
)

// Run status values.
const (
	StatusOK     = "ok"
	StatusNoop   = "noop"
	StatusFailed = "failed"
)

// Partition values for run items.
const (
	PartitionNew       = "new"
	PartitionDuplicate = "duplicate"
	PartitionFailed    = "failed"
)

// Run is one sync invocation.
type Run struct {
	ID           string    `json:"id" yaml:"id"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time `json:"finished_at" yaml:"finished_at"`
	ArtifactsDir string    `json:"artifacts_dir" yaml:"artifacts_dir"`
	Target       string    `json:"target" yaml:"target"`
	Mode         string    `json:"mode" yaml:"mode"`
	Total        int       `json:"total" yaml:"total"`
	New          int       `json:"new" yaml:"new"`
	Duplicates   int       `json:"duplicates" yaml:"duplicates"`
	Failed       int       `json:"failed" yaml:"failed"`
	Registered   int       `json:"registered" yaml:"registered"`
	UpdatedCells int       `json:"updated_cells" yaml:"updated_cells"`
	Status       string    `json:"status" yaml:"status"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
	Items        []Item    `json:"items,omitempty" yaml:"items,omitempty"`
}

// Item places one source identifier in a partition of a run.
type Item struct {
	SourceID  string `json:"source_id" yaml:"source_id"`
	Partition string `json:"partition" yaml:"partition"`
}

// Store manages the run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and its schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "runlog: create directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open database")
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "runlog: create schema")
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			artifacts_dir TEXT,
			target TEXT,
			mode TEXT,
			total INTEGER NOT NULL DEFAULT 0,
			new_count INTEGER NOT NULL DEFAULT 0,
			duplicate_count INTEGER NOT NULL DEFAULT 0,
			failed_count INTEGER NOT NULL DEFAULT 0,
			registered_count INTEGER NOT NULL DEFAULT 0,
			updated_cells INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS run_items (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
			source_id TEXT NOT NULL,
			kind TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_items_run ON run_items(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_items_source ON run_items(source_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return eris.Wrap(err, "executing schema statement")
		}
	}
	return nil
}

// Record stores a run and its items in one transaction. An empty ID is
// filled with a new UUID.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "runlog: begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_runs (id, started_at, finished_at, artifacts_dir, target, mode,
			total, new_count, duplicate_count, failed_count, registered_count, updated_cells, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.ArtifactsDir, run.Target, run.Mode,
		run.Total, run.New, run.Duplicates, run.Failed, run.Registered, run.UpdatedCells, run.Status, run.Error,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: insert run %s", run.ID)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_items (run_id, source_id, kind) VALUES (?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "runlog: prepare item insert")
	}
	defer stmt.Close()

	for _, it := range run.Items {
		if _, err := stmt.ExecContext(ctx, run.ID, it.SourceID, it.Partition); err != nil {
			return eris.Wrapf(err, "runlog: insert item %s", it.SourceID)
		}
	}
	return tx.Commit()
}

// List returns the most recent runs, newest first, without items. A limit of
// zero or less returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, started_at, finished_at, artifacts_dir, target, mode,
			total, new_count, duplicate_count, failed_count, registered_count, updated_cells, status, COALESCE(error, '')
		 FROM sync_runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.ArtifactsDir, &r.Target, &r.Mode,
			&r.Total, &r.New, &r.Duplicates, &r.Failed, &r.Registered, &r.UpdatedCells, &r.Status, &r.Error); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "runlog: iterate runs")
}

// Items returns the partition entries of one run in insertion order.
func (s *Store) Items(ctx context.Context, runID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, kind FROM run_items WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: query items of %s", runID)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.SourceID, &it.Partition); err != nil {
			return nil, eris.Wrap(err, "runlog: scan item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "runlog: iterate items")
}

// HistoryEntry places a source identifier in one past run.
type HistoryEntry struct {
	RunID     string
	StartedAt time.Time
	Partition string
}

// History returns every run that saw sourceID, newest first.
func (s *Store) History(ctx context.Context, sourceID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.started_at, i.kind
		 FROM run_items i JOIN sync_runs r ON r.id = i.run_id
		 WHERE i.source_id = ? ORDER BY r.started_at DESC, i.rowid DESC`, sourceID)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: query history of %s", sourceID)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			h       HistoryEntry
			started string
		)
		if err := rows.Scan(&h.RunID, &started, &h.Partition); err != nil {
			return nil, eris.Wrap(err, "runlog: scan history")
		}
		h.StartedAt = parseTime(started)
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "runlog: iterate history")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
