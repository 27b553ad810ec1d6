// Package runlog keeps the history of export runs in SQLite: one row per
// run plus one row per processed item. Archive bytes are never stored.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/sugos/sugos/internal/model"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("runlog: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	tenant       TEXT NOT NULL,
	status       TEXT NOT NULL,
	identifiers  TEXT NOT NULL DEFAULT '[]',
	archive_name TEXT NOT NULL DEFAULT '',
	archive_size INTEGER NOT NULL DEFAULT 0,
	total        INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	errors       INTEGER NOT NULL DEFAULT 0,
	links        TEXT NOT NULL DEFAULT '[]',
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS run_items (
	run_id    TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	idx       INTEGER NOT NULL,
	owner     TEXT NOT NULL,
	kind      TEXT NOT NULL,
	name      TEXT NOT NULL DEFAULT '',
	sequence  INTEGER NOT NULL,
	path      TEXT NOT NULL DEFAULT '',
	size      INTEGER NOT NULL DEFAULT 0,
	sha256    TEXT NOT NULL DEFAULT '',
	terminal  TEXT NOT NULL DEFAULT '',
	success   INTEGER NOT NULL DEFAULT 0,
	fallback  INTEGER NOT NULL DEFAULT 0,
	message   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, idx)
);
`

// Store is the run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := openDB(path, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores r and its item outcomes. Recording the same run id twice
// replaces the earlier record.
func (s *Store) Record(ctx context.Context, r *model.RunResult) error {
	ids, err := json.Marshal(nonNil(r.Identifiers))
	if err != nil {
		return fmt.Errorf("runlog: encode identifiers: %w", err)
	}
	links, err := json.Marshal(r.Links)
	if err != nil {
		return fmt.Errorf("runlog: encode links: %w", err)
	}
	if r.Links == nil {
		links = []byte("[]")
	}

	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, r.RunID); err != nil {
			return fmt.Errorf("runlog: replace %s: %w", r.RunID, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, tenant, status, identifiers, archive_name, archive_size,
				total, processed, errors, links, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.Tenant, string(r.Status), string(ids), r.ArchiveName, r.ArchiveSize,
			r.Total, r.Processed, r.Errors, string(links),
			r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("runlog: insert run %s: %w", r.RunID, err)
		}

		if len(r.Items) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_items (run_id, idx, owner, kind, name, sequence, path, size,
				sha256, terminal, success, fallback, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("runlog: prepare items: %w", err)
		}
		defer stmt.Close()
		for _, it := range r.Items {
			if _, err := stmt.ExecContext(ctx, r.RunID, it.Index, it.Owner, string(it.Kind), it.Name,
				it.Sequence, it.Path, it.Size, it.SHA256, string(it.Terminal), it.Success, it.Fallback, it.Message); err != nil {
				return fmt.Errorf("runlog: insert item %d: %w", it.Index, err)
			}
		}
		return nil
	})
}

const runColumns = `run_id, tenant, status, identifiers, archive_name, archive_size,
	total, processed, errors, links, started_at, finished_at`

// List returns the most recent runs, newest first, without their items.
func (s *Store) List(ctx context.Context, limit int) ([]model.RunResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("runlog: list: %w", err)
	}
	defer rows.Close()

	var out []model.RunResult
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Get returns one run with its item outcomes.
func (s *Store) Get(ctx context.Context, runID string) (*model.RunResult, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, owner, kind, name, sequence, path, size, sha256, terminal, success, fallback, message
		FROM run_items WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("runlog: items of %s: %w", runID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it             model.ItemOutcome
			kind, terminal string
		)
		if err := rows.Scan(&it.Index, &it.Owner, &kind, &it.Name, &it.Sequence, &it.Path, &it.Size,
			&it.SHA256, &terminal, &it.Success, &it.Fallback, &it.Message); err != nil {
			return nil, fmt.Errorf("runlog: scan item: %w", err)
		}
		it.Kind = model.Kind(kind)
		it.Terminal = model.Terminal(terminal)
		r.Items = append(r.Items, it)
	}
	return r, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.RunResult, error) {
	var (
		r                 model.RunResult
		status            string
		ids, links        string
		started, finished int64
	)
	err := sc.Scan(&r.RunID, &r.Tenant, &status, &ids, &r.ArchiveName, &r.ArchiveSize,
		&r.Total, &r.Processed, &r.Errors, &links, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("runlog: scan run: %w", err)
	}
	r.Status = model.Status(status)
	r.StartedAt = time.UnixMilli(started).UTC()
	r.FinishedAt = time.UnixMilli(finished).UTC()
	if err := json.Unmarshal([]byte(ids), &r.Identifiers); err != nil {
		return nil, fmt.Errorf("runlog: decode identifiers of %s: %w", r.RunID, err)
	}
	if err := json.Unmarshal([]byte(links), &r.Links); err != nil {
		return nil, fmt.Errorf("runlog: decode links of %s: %w", r.RunID, err)
	}
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
