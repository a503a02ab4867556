package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func sampleState(jobID string, createdAt time.Time) *model.PipelineState {
	state := model.NewPipelineState(jobID, []string{"nema", "pma"})
	state.CreatedAt = createdAt
	state.UpdatedAt = createdAt
	state.AddToQueue(model.QueueItem{URL: "https://nema.example.org", Priority: 10, Association: "nema"})
	state.AddToQueue(model.QueueItem{URL: "https://nema.example.org/members/", Priority: 10, Association: "nema", PageTypeHint: model.PageTypeMemberDirectory})
	state.MarkVisited("https://nema.example.org")
	state.AddCompanies(model.Company{Name: "Acme Inc", Domain: "acme.com"})
	return state
}

// runStoreTests exercises the Store contract against any backend.
func runStoreTests(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := s.LoadState(ctx, "no-such-job")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SaveLoadRoundTrip", func(t *testing.T) {
		state := sampleState("job-a", base)
		require.NoError(t, s.SaveState(ctx, state))

		loaded, err := s.LoadState(ctx, "job-a")
		require.NoError(t, err)
		assert.Equal(t, "job-a", loaded.JobID)
		assert.Equal(t, model.PhaseInit, loaded.CurrentPhase)
		assert.Equal(t, []string{"nema", "pma"}, loaded.AssociationCodes)
		require.Len(t, loaded.CrawlQueue, 1)
		assert.Equal(t, model.PageTypeMemberDirectory, loaded.CrawlQueue[0].PageTypeHint)
		assert.Equal(t, []string{"https://nema.example.org"}, loaded.VisitedURLs)
		assert.Equal(t, 1, loaded.Counters.CompaniesExtracted)
		assert.Equal(t, 2, loaded.Counters.URLsDiscovered)

		// The rebuilt URL index still enforces exclusivity after a reload.
		assert.False(t, loaded.AddToQueue(model.QueueItem{URL: "https://nema.example.org"}))
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		state := sampleState("job-b", base)
		require.NoError(t, s.SaveState(ctx, state))
		require.NoError(t, state.Transition(model.PhaseGatekeeper, nil))
		require.NoError(t, s.SaveState(ctx, state))

		loaded, err := s.LoadState(ctx, "job-b")
		require.NoError(t, err)
		assert.Equal(t, model.PhaseGatekeeper, loaded.CurrentPhase)
		require.Len(t, loaded.PhaseHistory, 1)
	})

	t.Run("CheckpointsAccumulate", func(t *testing.T) {
		state := sampleState("job-c", base)
		require.NoError(t, s.SaveState(ctx, state))

		for i, phase := range []model.PipelinePhase{model.PhaseInit, model.PhaseGatekeeper, model.PhaseDiscovery} {
			cp := state.Checkpoint()
			cp.Phase = phase
			cp.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.SaveCheckpoint(ctx, cp))
		}

		cps, err := s.ListCheckpoints(ctx, "job-c")
		require.NoError(t, err)
		require.Len(t, cps, 3)
		assert.Equal(t, model.PhaseInit, cps[0].Phase)
		assert.Equal(t, model.PhaseDiscovery, cps[2].Phase)
	})

	t.Run("ListJobs", func(t *testing.T) {
		jobs, err := s.ListJobs(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(jobs), 3)

		byID := make(map[string]JobInfo, len(jobs))
		for _, j := range jobs {
			byID[j.JobID] = j
		}
		assert.Equal(t, model.PhaseGatekeeper, byID["job-b"].CurrentPhase)
		assert.Equal(t, []string{"nema", "pma"}, byID["job-a"].AssociationCodes)
	})

	t.Run("DeleteJob", func(t *testing.T) {
		require.NoError(t, s.DeleteJob(ctx, "job-c"))
		_, err := s.LoadState(ctx, "job-c")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.DeleteJob(ctx, "job-c"), ErrNotFound)
	})
}
