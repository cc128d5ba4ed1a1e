package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/adnord/ownership-cli/internal/db"
	"github.com/adnord/ownership-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, property_id, property, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
	"insert_step":  `INSERT INTO run_steps (id, run_id, name, status, started_at, ended_at, details, error) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"complete_run": `UPDATE runs SET status = $1, error = $2, result = $3, ended_at = $4 WHERE id = $5`,
	"get_run":      `SELECT id, property_id, property, status, error, result, started_at, ended_at FROM runs WHERE id = $1`,
	"get_steps":    `SELECT id, name, status, started_at, ended_at, details, error FROM run_steps WHERE run_id = $1 ORDER BY seq`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	property_id TEXT NOT NULL,
	property    JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT NOT NULL DEFAULT '',
	result      JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_steps (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ NOT NULL,
	details    JSONB,
	error      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_property_id ON runs(property_id);
CREATE INDEX IF NOT EXISTS idx_run_steps_run_id ON run_steps(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, property model.PropertyRecord) (*model.WorkflowRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	propertyJSON, err := json.Marshal(property)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal property")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, property_id, property, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, property.ID, propertyJSON, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.WorkflowRun{
		ID:         id,
		PropertyID: property.ID,
		Property:   property,
		Status:     model.RunStatusRunning,
		StartedAt:  now,
	}, nil
}

func (s *PostgresStore) AppendStep(ctx context.Context, runID string, step model.StepLog) error {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	detailsJSON, err := json.Marshal(step.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal step details")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_steps (id, run_id, name, status, started_at, ended_at, details, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		step.ID, runID, step.Name, string(step.Status), step.StartedAt.UTC(), step.EndedAt.UTC(),
		detailsJSON, step.Error,
	)
	return eris.Wrapf(err, "postgres: insert step for run %s", runID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, runErr string, result *model.ResolutionResult) error {
	var resultJSON []byte
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal result")
		}
		resultJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, result = $3, ended_at = $4 WHERE id = $5`,
		string(status), runErr, resultJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.WorkflowRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, property_id, property, status, error, result, started_at, ended_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
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

func (s *PostgresStore) getSteps(ctx context.Context, runID string) ([]model.StepLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, status, started_at, ended_at, details, error FROM run_steps
		 WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get steps for run %s", runID)
	}
	defer rows.Close()

	var steps []model.StepLog
	for rows.Next() {
		var st model.StepLog
		var detailsJSON []byte
		if err := rows.Scan(&st.ID, &st.Name, &st.Status, &st.StartedAt, &st.EndedAt, &detailsJSON, &st.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan step")
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &st.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal step details")
			}
		}
		steps = append(steps, st)
	}
	return steps, eris.Wrap(rows.Err(), "postgres: steps iterate")
}

// ListRuns returns runs matching the filter, newest first. Step logs are
// not loaded; use GetRun for the full record.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.WorkflowRun, error) {
	query := `SELECT id, property_id, property, status, error, result, started_at, ended_at FROM runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.PropertyID != "" {
		query += ` AND property_id = ` + arg(filter.PropertyID)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)

	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.WorkflowRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func scanPgRun(row scannable) (*model.WorkflowRun, error) {
	var r model.WorkflowRun
	var propertyJSON, resultJSON []byte
	var endedAt *time.Time

	err := row.Scan(&r.ID, &r.PropertyID, &propertyJSON, &r.Status, &r.Error, &resultJSON, &r.StartedAt, &endedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	if err := json.Unmarshal(propertyJSON, &r.Property); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal property")
	}
	if len(resultJSON) > 0 {
		r.Result = &model.ResolutionResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	if endedAt != nil {
		r.EndedAt = *endedAt
	}
	return &r, nil
}
