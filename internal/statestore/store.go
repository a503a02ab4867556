package statestore

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/memberscope/internal/model"
)

// ErrNotFound is returned when no persisted state exists for a job id.
var ErrNotFound = eris.New("statestore: job not found")

// JobInfo is the listing view of one persisted job.
type JobInfo struct {
	JobID            string              `json:"job_id"`
	CurrentPhase     model.PipelinePhase `json:"current_phase"`
	AssociationCodes []string            `json:"association_codes,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Store persists pipeline state for checkpoint/resume. SaveState always
// overwrites the single latest snapshot for a job id; checkpoint summaries
// accumulate historically.
type Store interface {
	SaveState(ctx context.Context, state *model.PipelineState) error
	LoadState(ctx context.Context, jobID string) (*model.PipelineState, error)
	SaveCheckpoint(ctx context.Context, cp model.CheckpointSummary) error
	ListCheckpoints(ctx context.Context, jobID string) ([]model.CheckpointSummary, error)
	ListJobs(ctx context.Context) ([]JobInfo, error)
	DeleteJob(ctx context.Context, jobID string) error
	Close() error
}
