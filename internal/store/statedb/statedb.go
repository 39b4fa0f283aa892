// Package statedb keeps run bookkeeping in SQLite: pagination and since-id
// cursors, one row per compile or graph run, and a ledger of network fetches.
package statedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"twarchive/internal/xclient"
)

// ErrNotFound is returned for a missing cursor or run.
var ErrNotFound = errors.New("statedb: not found")

type DB struct{ sql *sql.DB }

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("statedb: empty path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("statedb: %w", err)
		}
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statedb: open %s: %w", path, err)
	}
	// One connection: in-memory databases are per connection and fetch
	// workers write the ledger concurrently.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("statedb: open %s: %w", path, err)
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("statedb: migrate: %w", err)
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS cursors (
	  key TEXT PRIMARY KEY,
	  value TEXT NOT NULL,
	  updated INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
	  id TEXT PRIMARY KEY,
	  kind TEXT NOT NULL,
	  started INTEGER NOT NULL,
	  finished INTEGER,
	  tweets INTEGER NOT NULL DEFAULT 0,
	  users INTEGER NOT NULL DEFAULT 0,
	  status TEXT NOT NULL,
	  error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind, started);
	CREATE TABLE IF NOT EXISTS fetches (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  fingerprint TEXT NOT NULL,
	  endpoint TEXT NOT NULL,
	  status INTEGER NOT NULL,
	  attempts INTEGER NOT NULL,
	  outcome TEXT NOT NULL,
	  at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fetches_fp ON fetches(fingerprint);
	`)
	return err
}

// SaveCursor stores value under key, replacing any earlier value.
func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cursors(key, value, updated) VALUES(?,?,?)
	  ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated=excluded.updated`, key, value, time.Now().Unix())
	return err
}

// LoadCursor returns the value under key or ErrNotFound.
func (d *DB) LoadCursor(ctx context.Context, key string) (string, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Run is one compile or graph invocation.
type Run struct {
	ID       string
	Kind     string
	Started  time.Time
	Finished time.Time
	Tweets   int
	Users    int
	Status   string
	Error    string
}

// StartRun records a running run of kind and returns its id.
func (d *DB) StartRun(ctx context.Context, kind string, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := d.sql.ExecContext(ctx, `INSERT INTO runs(id, kind, started, status) VALUES(?,?,?,?)`, id, kind, at.Unix(), StatusRunning)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun closes run id with its counts. A non-nil runErr marks it failed.
func (d *DB) FinishRun(ctx context.Context, id string, at time.Time, tweets, users int, runErr error) error {
	status, msg := StatusOK, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := d.sql.ExecContext(ctx, `UPDATE runs SET finished=?, tweets=?, users=?, status=?, error=? WHERE id=?`,
		at.Unix(), tweets, users, status, msg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LastRun returns the most recently started run of kind.
func (d *DB) LastRun(ctx context.Context, kind string) (Run, error) {
	var r Run
	var started int64
	var finished sql.NullInt64
	var msg sql.NullString
	err := d.sql.QueryRowContext(ctx, `SELECT id, kind, started, finished, tweets, users, status, error
	  FROM runs WHERE kind=? ORDER BY started DESC, rowid DESC LIMIT 1`, kind).
		Scan(&r.ID, &r.Kind, &started, &finished, &r.Tweets, &r.Users, &r.Status, &msg)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	r.Started = time.Unix(started, 0).UTC()
	if finished.Valid {
		r.Finished = time.Unix(finished.Int64, 0).UTC()
	}
	r.Error = msg.String
	return r, nil
}

// RecordFetch appends one network outcome. It satisfies xclient.Ledger.
func (d *DB) RecordFetch(ctx context.Context, rec xclient.FetchRecord) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO fetches(fingerprint, endpoint, status, attempts, outcome, at) VALUES(?,?,?,?,?,?)`,
		rec.Fingerprint, rec.Endpoint, rec.Status, rec.Attempts, rec.Outcome, rec.At.Unix())
	return err
}

// FetchOutcomes counts ledger rows by outcome.
func (d *DB) FetchOutcomes(ctx context.Context) (map[string]int, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM fetches GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

var _ xclient.Ledger = (*DB)(nil)
