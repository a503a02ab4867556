package statestore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/memberscope/internal/model"
)

// FSStore persists state as human-inspectable JSON documents on disk:
// <dir>/<job_id>/state.json for the latest snapshot and
// <dir>/<job_id>/checkpoints.jsonl for the append-only summary log.
type FSStore struct {
	dir string
}

// NewFS creates a filesystem store rooted at dir.
func NewFS(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fsjson: create %s", dir)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) jobDir(jobID string) string {
	return filepath.Join(s.dir, jobID)
}

// SaveState writes the full snapshot atomically (temp file + rename) so an
// interrupted checkpoint never truncates the previous one.
func (s *FSStore) SaveState(_ context.Context, state *model.PipelineState) error {
	dir := s.jobDir(state.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "fsjson: create job dir %s", state.JobID)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return eris.Wrap(err, "fsjson: marshal state")
	}

	tmp := filepath.Join(dir, "state.json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "fsjson: write state")
	}
	if err := os.Rename(tmp, filepath.Join(dir, "state.json")); err != nil {
		return eris.Wrap(err, "fsjson: rename state")
	}
	return nil
}

func (s *FSStore) LoadState(_ context.Context, jobID string) (*model.PipelineState, error) {
	data, err := os.ReadFile(filepath.Join(s.jobDir(jobID), "state.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "fsjson: read state %s", jobID)
	}
	var state model.PipelineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, eris.Wrapf(err, "fsjson: unmarshal state %s", jobID)
	}
	return &state, nil
}

func (s *FSStore) SaveCheckpoint(_ context.Context, cp model.CheckpointSummary) error {
	dir := s.jobDir(cp.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "fsjson: create job dir %s", cp.JobID)
	}
	line, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "fsjson: marshal checkpoint")
	}
	f, err := os.OpenFile(filepath.Join(dir, "checkpoints.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "fsjson: open checkpoint log")
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return eris.Wrap(err, "fsjson: append checkpoint")
	}
	return nil
}

func (s *FSStore) ListCheckpoints(_ context.Context, jobID string) ([]model.CheckpointSummary, error) {
	f, err := os.Open(filepath.Join(s.jobDir(jobID), "checkpoints.jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "fsjson: open checkpoint log %s", jobID)
	}
	defer f.Close()

	var out []model.CheckpointSummary
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var cp model.CheckpointSummary
		if err := json.Unmarshal(scanner.Bytes(), &cp); err != nil {
			return nil, eris.Wrap(err, "fsjson: unmarshal checkpoint")
		}
		out = append(out, cp)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "fsjson: scan checkpoint log")
	}
	return out, nil
}

func (s *FSStore) ListJobs(ctx context.Context) ([]JobInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "fsjson: read %s", s.dir)
	}

	var jobs []JobInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		state, err := s.LoadState(ctx, e.Name())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, JobInfo{
			JobID:            state.JobID,
			CurrentPhase:     state.CurrentPhase,
			AssociationCodes: state.AssociationCodes,
			CreatedAt:        state.CreatedAt,
			UpdatedAt:        state.UpdatedAt,
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

func (s *FSStore) DeleteJob(_ context.Context, jobID string) error {
	dir := s.jobDir(jobID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNotFound
	}
	return eris.Wrapf(os.RemoveAll(dir), "fsjson: delete job %s", jobID)
}

func (s *FSStore) Close() error { return nil }
