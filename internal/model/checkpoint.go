package model

import "time"

// CheckpointSummary is the lightweight per-phase checkpoint document written
// alongside the full state snapshot. Summaries are retained historically for
// observability; the snapshot is always overwritten.
type CheckpointSummary struct {
	JobID      string        `json:"job_id"`
	Phase      PipelinePhase `json:"phase"`
	QueueDepth int           `json:"queue_depth"`
	Counters   Counters      `json:"counters"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Checkpoint builds the summary for the state's current phase.
func (s *PipelineState) Checkpoint() CheckpointSummary {
	return CheckpointSummary{
		JobID:      s.JobID,
		Phase:      s.CurrentPhase,
		QueueDepth: len(s.CrawlQueue),
		Counters:   s.Counters,
		CreatedAt:  time.Now().UTC(),
	}
}
