package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/memberscope/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool with JSONB state documents.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects a pool to the given database URL.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool (used by tests).
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pipeline_states (
	job_id       TEXT PRIMARY KEY,
	phase        TEXT NOT NULL,
	associations JSONB NOT NULL DEFAULT '[]',
	state        JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL,
	phase      TEXT NOT NULL,
	summary    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_states_phase ON pipeline_states(phase);
CREATE INDEX IF NOT EXISTS idx_checkpoints_job_id ON checkpoints(job_id);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveState(ctx context.Context, state *model.PipelineState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal state")
	}
	assocJSON, err := json.Marshal(state.AssociationCodes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal associations")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pipeline_states (job_id, phase, associations, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			associations = EXCLUDED.associations,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		state.JobID, string(state.CurrentPhase), assocJSON, stateJSON,
		state.CreatedAt.UTC(), state.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save state %s", state.JobID)
}

func (s *PostgresStore) LoadState(ctx context.Context, jobID string) (*model.PipelineState, error) {
	var stateJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM pipeline_states WHERE job_id = $1`, jobID,
	).Scan(&stateJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: load state %s", jobID)
	}
	var state model.PipelineState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal state %s", jobID)
	}
	return &state, nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp model.CheckpointSummary) error {
	summaryJSON, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal checkpoint")
	}
	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (id, job_id, phase, summary, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), cp.JobID, string(cp.Phase), summaryJSON, createdAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s", cp.JobID)
}

func (s *PostgresStore) ListCheckpoints(ctx context.Context, jobID string) ([]model.CheckpointSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT summary FROM checkpoints WHERE job_id = $1 ORDER BY created_at, id`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list checkpoints %s", jobID)
	}
	defer rows.Close()

	var out []model.CheckpointSummary
	for rows.Next() {
		var summaryJSON []byte
		if err := rows.Scan(&summaryJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan checkpoint")
		}
		var cp model.CheckpointSummary
		if err := json.Unmarshal(summaryJSON, &cp); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal checkpoint")
		}
		out = append(out, cp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate checkpoints")
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]JobInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, phase, associations, created_at, updated_at FROM pipeline_states ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []JobInfo
	for rows.Next() {
		var job JobInfo
		var phase string
		var assocJSON []byte
		if err := rows.Scan(&job.JobID, &phase, &assocJSON, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		job.CurrentPhase = model.PipelinePhase(phase)
		if err := json.Unmarshal(assocJSON, &job.AssociationCodes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal associations")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func (s *PostgresStore) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pipeline_states WHERE job_id = $1`, jobID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete job %s", jobID)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE job_id = $1`, jobID); err != nil {
		return eris.Wrapf(err, "postgres: delete checkpoints %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
