package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/adnord/ownership-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	property    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT NOT NULL DEFAULT '',
	result      TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	ended_at    DATETIME
);

CREATE TABLE IF NOT EXISTS run_steps (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at   DATETIME NOT NULL,
	details    TEXT,
	error      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_property_id ON runs(property_id);
CREATE INDEX IF NOT EXISTS idx_run_steps_run_id ON run_steps(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, property model.PropertyRecord) (*model.WorkflowRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	propertyJSON, err := json.Marshal(property)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal property")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, property_id, property, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, property.ID, string(propertyJSON), string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.WorkflowRun{
		ID:         id,
		PropertyID: property.ID,
		Property:   property,
		Status:     model.RunStatusRunning,
		StartedAt:  now,
	}, nil
}

func (s *SQLiteStore) AppendStep(ctx context.Context, runID string, step model.StepLog) error {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	detailsJSON, err := json.Marshal(step.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal step details")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_steps (id, run_id, name, status, started_at, ended_at, details, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, runID, step.Name, string(step.Status), step.StartedAt.UTC(), step.EndedAt.UTC(),
		string(detailsJSON), step.Error,
	)
	return eris.Wrapf(err, "sqlite: insert step for run %s", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, runErr string, result *model.ResolutionResult) error {
	var resultJSON sql.NullString
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal result")
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, result = ?, ended_at = ? WHERE id = ?`,
		string(status), runErr, resultJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, property_id, property, status, error, result, started_at, ended_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil || r == nil {
		return r, err
	}

	steps, err := s.getSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	r.Steps = steps
	return r, nil
}

func (s *SQLiteStore) getSteps(ctx context.Context, runID string) ([]model.StepLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, started_at, ended_at, details, error FROM run_steps
		 WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get steps for run %s", runID)
	}
	defer rows.Close()

	var steps []model.StepLog
	for rows.Next() {
		var st model.StepLog
		var detailsJSON sql.NullString
		if err := rows.Scan(&st.ID, &st.Name, &st.Status, &st.StartedAt, &st.EndedAt, &detailsJSON, &st.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan step")
		}
		if detailsJSON.Valid && detailsJSON.String != "" && detailsJSON.String != "null" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &st.Details); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal step details")
			}
		}
		steps = append(steps, st)
	}
	return steps, eris.Wrap(rows.Err(), "sqlite: steps iterate")
}

// ListRuns returns runs matching the filter, newest first. Step logs are
// not loaded; use GetRun for the full record.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.WorkflowRun, error) {
	query := `SELECT id, property_id, property, status, error, result, started_at, ended_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.PropertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, filter.PropertyID)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.WorkflowRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.WorkflowRun, error) {
	var r model.WorkflowRun
	var propertyJSON string
	var resultJSON sql.NullString
	var endedAt sql.NullTime

	err := row.Scan(&r.ID, &r.PropertyID, &propertyJSON, &r.Status, &r.Error, &resultJSON, &r.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(propertyJSON), &r.Property); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal property")
	}
	if resultJSON.Valid {
		r.Result = &model.ResolutionResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	if endedAt.Valid {
		r.EndedAt = endedAt.Time
	}
	return &r, nil
}
