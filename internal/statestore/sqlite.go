package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/memberscope/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. State documents are
// stored as JSON text, keeping them human-inspectable via the sqlite shell.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
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
CREATE TABLE IF NOT EXISTS pipeline_states (
	job_id       TEXT PRIMARY KEY,
	phase        TEXT NOT NULL,
	associations TEXT NOT NULL DEFAULT '[]',
	state        TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL,
	phase      TEXT NOT NULL,
	summary    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_states_phase ON pipeline_states(phase);
CREATE INDEX IF NOT EXISTS idx_checkpoints_job_id ON checkpoints(job_id);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveState(ctx context.Context, state *model.PipelineState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal state")
	}
	assocJSON, err := json.Marshal(state.AssociationCodes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal associations")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_states (job_id, phase, associations, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			phase = excluded.phase,
			associations = excluded.associations,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		state.JobID, string(state.CurrentPhase), string(assocJSON), string(stateJSON),
		state.CreatedAt.UTC(), state.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save state %s", state.JobID)
}

func (s *SQLiteStore) LoadState(ctx context.Context, jobID string) (*model.PipelineState, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM pipeline_states WHERE job_id = ?`, jobID,
	).Scan(&stateJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: load state %s", jobID)
	}
	var state model.PipelineState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal state %s", jobID)
	}
	return &state, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp model.CheckpointSummary) error {
	summaryJSON, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checkpoint")
	}
	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, job_id, phase, summary, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), cp.JobID, string(cp.Phase), string(summaryJSON), createdAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s", cp.JobID)
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context, jobID string) ([]model.CheckpointSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary FROM checkpoints WHERE job_id = ? ORDER BY created_at, id`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list checkpoints %s", jobID)
	}
	defer rows.Close()

	var out []model.CheckpointSummary
	for rows.Next() {
		var summaryJSON string
		if err := rows.Scan(&summaryJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan checkpoint")
		}
		var cp model.CheckpointSummary
		if err := json.Unmarshal([]byte(summaryJSON), &cp); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal checkpoint")
		}
		out = append(out, cp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate checkpoints")
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]JobInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, phase, associations, created_at, updated_at FROM pipeline_states ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []JobInfo
	for rows.Next() {
		var job JobInfo
		var phase, assocJSON string
		if err := rows.Scan(&job.JobID, &phase, &assocJSON, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		job.CurrentPhase = model.PipelinePhase(phase)
		if err := json.Unmarshal([]byte(assocJSON), &job.AssociationCodes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal associations")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_states WHERE job_id = ?`, jobID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete job %s", jobID)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE job_id = ?`, jobID); err != nil {
		return eris.Wrapf(err, "sqlite: delete checkpoints %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
