package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/specd/internal/workflow"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS workflows (
	feature_name      TEXT PRIMARY KEY,
	current_phase     TEXT NOT NULL,
	approved          TEXT NOT NULL DEFAULT '{}',
	validation_passed TEXT NOT NULL DEFAULT '{}',
	version           INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_history (
	id           TEXT PRIMARY KEY,
	feature_name TEXT NOT NULL REFERENCES workflows(feature_name) ON DELETE CASCADE,
	from_phase   TEXT NOT NULL,
	to_phase     TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflow_history_feature
	ON workflow_history(feature_name);
`

// SQLite is a workflow.Store backed by a SQLite file. The version
// column carries the compare-and-swap; history rows append
// idempotently keyed by record id.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and
// ensures the schema exists.
func NewSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// modernc/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Create(ctx context.Context, st *workflow.State) error {
	approved, validated, err := marshalFlags(st)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO workflows
			(feature_name, current_phase, approved, validation_passed, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.FeatureName, st.CurrentPhase.String(), approved, validated,
		st.Version, formatTime(st.CreatedAt), formatTime(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert workflow %s: %w", st.FeatureName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert workflow %s: %w", st.FeatureName, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", st.FeatureName, workflow.ErrAlreadyExists)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, feature string) (*workflow.State, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT feature_name, current_phase, approved, validation_passed, version, created_at, updated_at
		FROM workflows WHERE feature_name = ?`, feature)

	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", feature, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", feature, err)
	}

	if st.History, err = s.loadHistory(ctx, feature); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLite) Save(ctx context.Context, st *workflow.State, expectedVersion int64) error {
	approved, validated, err := marshalFlags(st)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE workflows
		SET current_phase = ?, approved = ?, validation_passed = ?, version = ?, updated_at = ?
		WHERE feature_name = ? AND version = ?`,
		st.CurrentPhase.String(), approved, validated, st.Version,
		formatTime(st.UpdatedAt), st.FeatureName, expectedVersion)
	if err != nil {
		return fmt.Errorf("update workflow %s: %w", st.FeatureName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow %s: %w", st.FeatureName, err)
	}
	if n == 0 {
		// Distinguish a lost race from a missing row.
		var have int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM workflows WHERE feature_name = ?`, st.FeatureName).Scan(&have)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", st.FeatureName, workflow.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check workflow %s: %w", st.FeatureName, err)
		}
		return fmt.Errorf("%s: expected version %d, have %d: %w",
			st.FeatureName, expectedVersion, have, workflow.ErrConflict)
	}

	for _, rec := range st.History {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO workflow_history (id, feature_name, from_phase, to_phase, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, st.FeatureName, rec.From.String(), rec.To.String(),
			rec.Reason, formatTime(rec.Timestamp)); err != nil {
			return fmt.Errorf("insert history for %s: %w", st.FeatureName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save %s: %w", st.FeatureName, err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]*workflow.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feature_name, current_phase, approved, validation_passed, version, created_at, updated_at
		FROM workflows ORDER BY feature_name`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*workflow.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	for _, st := range out {
		if st.History, err = s.loadHistory(ctx, st.FeatureName); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLite) loadHistory(ctx context.Context, feature string) ([]workflow.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_phase, to_phase, reason, created_at
		FROM workflow_history WHERE feature_name = ? ORDER BY rowid`, feature)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", feature, err)
	}
	defer rows.Close()

	history := []workflow.TransitionRecord{}
	for rows.Next() {
		var rec workflow.TransitionRecord
		var from, to, created string
		if err := rows.Scan(&rec.ID, &from, &to, &rec.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan history for %s: %w", feature, err)
		}
		if rec.From, err = workflow.ParsePhase(from); err != nil {
			return nil, fmt.Errorf("history for %s: %w", feature, err)
		}
		if rec.To, err = workflow.ParsePhase(to); err != nil {
			return nil, fmt.Errorf("history for %s: %w", feature, err)
		}
		if rec.Timestamp, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("history for %s: %w", feature, err)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*workflow.State, error) {
	var st workflow.State
	var phase, approved, passed, created, updated string
	if err := row.Scan(&st.FeatureName, &phase, &approved, &passed, &st.Version, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	if st.CurrentPhase, err = workflow.ParsePhase(phase); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(approved), &st.Approved); err != nil {
		return nil, fmt.Errorf("decode approved flags: %w", err)
	}
	if err = json.Unmarshal([]byte(passed), &st.ValidationPassed); err != nil {
		return nil, fmt.Errorf("decode validation flags: %w", err)
	}
	if st.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if st.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if st.Approved == nil {
		st.Approved = make(map[workflow.Phase]bool)
	}
	if st.ValidationPassed == nil {
		st.ValidationPassed = make(map[workflow.Phase]bool)
	}
	st.History = []workflow.TransitionRecord{}
	return &st, nil
}

func marshalFlags(st *workflow.State) (approved, validated string, err error) {
	a, err := json.Marshal(st.Approved)
	if err != nil {
		return "", "", fmt.Errorf("encode approved flags: %w", err)
	}
	v, err := json.Marshal(st.ValidationPassed)
	if err != nil {
		return "", "", fmt.Errorf("encode validation flags: %w", err)
	}
	return string(a), string(v), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
