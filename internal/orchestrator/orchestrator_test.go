package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/agents"
	"github.com/sells-group/memberscope/internal/config"
	"github.com/sells-group/memberscope/internal/model"
	"github.com/sells-group/memberscope/internal/statestore"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// stubAgent runs an arbitrary function under a fixed task type.
type stubAgent struct {
	taskType string
	fn       func(ctx context.Context, task model.Task) (*model.TaskResult, error)
}

func (s *stubAgent) Type() string { return s.taskType }

func (s *stubAgent) Execute(ctx context.Context, task model.Task) (*model.TaskResult, error) {
	return s.fn(ctx, task)
}

const (
	siteRoot      = "https://nema.example.org"
	siteAbout     = "https://nema.example.org/about"
	siteDirectory = "https://nema.example.org/members/"
	siteAcme      = "https://nema.example.org/members/acme"
	siteApex      = "https://nema.example.org/members/apex"
	siteExpo      = "https://nema.example.org/events/expo"
)

func allowAll() *stubAgent {
	return &stubAgent{taskType: agent.TypeAccessChecker, fn: func(_ context.Context, _ model.Task) (*model.TaskResult, error) {
		return &model.TaskResult{Success: true, Verdict: "allow"}, nil
	}}
}

// siteCrawler simulates a small association site: the root links to an about
// page and the member directory, and the directory links to two member
// profiles and one event page.
func siteCrawler() *stubAgent {
	links := map[string][]model.QueueItem{
		siteRoot: {
			{URL: siteDirectory, Priority: 10, PageTypeHint: model.PageTypeMemberDirectory},
			{URL: siteAbout, Priority: 0},
		},
		siteDirectory: {
			{URL: siteAcme, Priority: 10, PageTypeHint: model.PageTypeMemberProfile},
			{URL: siteApex, Priority: 10, PageTypeHint: model.PageTypeMemberProfile},
			{URL: siteExpo, Priority: 5, PageTypeHint: model.PageTypeEventPage},
		},
	}
	return &stubAgent{taskType: agent.TypeLinkCrawler, fn: func(_ context.Context, task model.Task) (*model.TaskResult, error) {
		out := make([]model.QueueItem, len(links[task.URL]))
		for i, link := range links[task.URL] {
			link.Depth = task.Depth + 1
			out[i] = link
		}
		return &model.TaskResult{Success: true, RecordsProcessed: 1, Links: out}, nil
	}}
}

func siteClassifier() *stubAgent {
	types := map[string]string{
		siteDirectory: model.PageTypeMemberDirectory,
		siteAcme:      model.PageTypeMemberProfile,
		siteApex:      model.PageTypeMemberProfile,
		siteExpo:      model.PageTypeEventPage,
	}
	return &stubAgent{taskType: agent.TypePageClassifier, fn: func(_ context.Context, task model.Task) (*model.TaskResult, error) {
		pt := types[task.URL]
		if pt == "" {
			pt = model.PageTypeOther
		}
		return &model.TaskResult{Success: true, RecordsProcessed: 1, PageType: pt}, nil
	}}
}

func siteMemberExtractor() *stubAgent {
	companies := map[string][]model.Company{
		siteDirectory: {{Name: "Zenith Tooling", Domain: "zenithtooling.com", Website: "https://zenithtooling.com"}},
		siteAcme:      {{Name: "Acme Inc", Domain: "acme.com", Website: "https://acme.com", Phone: "216-555-0147"}},
		siteApex:      {{Name: "ACME, Incorporated", Domain: "acme.com"}},
	}
	return &stubAgent{taskType: agent.TypeMemberExtractor, fn: func(_ context.Context, task model.Task) (*model.TaskResult, error) {
		found := companies[task.URL]
		return &model.TaskResult{Success: true, RecordsProcessed: len(found), Companies: found}, nil
	}}
}

func siteEventExtractor() *stubAgent {
	return &stubAgent{taskType: agent.TypeEventExtractor, fn: func(_ context.Context, task model.Task) (*model.TaskResult, error) {
		return &model.TaskResult{
			Success:          true,
			RecordsProcessed: 1,
			Events: []model.Event{
				{Name: "Widget Expo", Association: task.Association, SourceURL: task.URL},
			},
			Participants: []model.Participant{
				{Name: "Pat Lee", Company: "Acme Inc", Role: "speaker", EventName: "Widget Expo", Association: task.Association, SourceURL: task.URL},
			},
		}, nil
	}}
}

func stubEnricher() *stubAgent {
	return &stubAgent{taskType: agent.TypeEnricher, fn: func(_ context.Context, _ model.Task) (*model.TaskResult, error) {
		return &model.TaskResult{Success: true, RecordsProcessed: 1, Fields: map[string]any{
			"description": "Contract manufacturer",
		}}, nil
	}}
}

func stubScorer() *stubAgent {
	return &stubAgent{taskType: agent.TypeQualityScorer, fn: func(_ context.Context, _ model.Task) (*model.TaskResult, error) {
		return &model.TaskResult{Success: true, RecordsProcessed: 1, Fields: map[string]any{
			"quality_score": 0.8,
			"quality_grade": "B",
		}}, nil
	}}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Pipeline: config.PipelineConfig{
			MaxConcurrentTasks:  2,
			TaskTimeoutSecs:     5,
			CheckpointEveryURLs: 2,
			FailureRateCeiling:  0.5,
		},
		Crawl:   config.CrawlConfig{MaxPages: 50, MaxDepth: 3},
		Resolve: config.ResolveConfig{Threshold: 0.85, DedupeStrategy: "keep_best", ResolutionStrategy: "merge_all"},
		Export:  config.ExportConfig{Dir: t.TempDir(), Formats: []string{"json"}},
	}
}

func testAssocs() []config.Association {
	return []config.Association{{Code: "nema", Name: "NEMA", BaseURL: siteRoot, Priority: 10}}
}

// fullRegistry wires the stub site agents with the real graph builder and
// export generator.
func fullRegistry(cfg *config.Config) *agent.Registry {
	return agent.NewRegistry(
		allowAll(),
		siteCrawler(),
		siteClassifier(),
		siteMemberExtractor(),
		siteEventExtractor(),
		stubEnricher(),
		stubScorer(),
		agents.NewGraphBuilder(),
		agents.NewExportGenerator(cfg.Export.Dir),
	)
}

func TestRunFullPipeline(t *testing.T) {
	cfg := testConfig(t)
	spawner := agent.NewSpawner(fullRegistry(cfg))
	state := model.NewPipelineState("job-full", []string{"nema"})

	o := New(cfg, testAssocs(), spawner, nil, state, ModeFull)
	report := o.Run(context.Background())

	require.True(t, report.Success, "errors: %+v", report.Errors)
	assert.Equal(t, model.PhaseDone, report.FinalPhase)
	assert.NotNil(t, state.CompletedAt)

	// Every page the crawl found is consumed by the end of extraction.
	assert.Empty(t, state.CrawlQueue)
	assert.ElementsMatch(t, []string{siteRoot, siteAbout, siteDirectory, siteAcme, siteApex, siteExpo}, state.VisitedURLs)

	// Acme's two name variants share a domain and collapse into one entity;
	// Zenith stays separate.
	assert.Equal(t, 3, state.Counters.CompaniesExtracted)
	require.Len(t, state.CanonicalEntities, 2)
	names := []string{state.CanonicalEntities[0].Company.Name, state.CanonicalEntities[1].Company.Name}
	assert.Contains(t, names, "Acme Inc")
	assert.Contains(t, names, "Zenith Tooling")
	for _, ent := range state.CanonicalEntities {
		assert.Equal(t, []string{"nema"}, ent.Company.AssociationCodes)
		assert.Equal(t, "Contract manufacturer", ent.Company.Description)
		require.NotNil(t, ent.Company.QualityScore)
		assert.InDelta(t, 0.8, *ent.Company.QualityScore, 1e-9)
	}

	relations := map[string]int{}
	for _, e := range state.GraphEdges {
		relations[e.Relation]++
	}
	assert.Equal(t, 2, relations["member_of"], "both entities belong to the association")
	assert.Equal(t, 1, relations["participated_in"], "the expo speaker links Acme to the event")

	require.Len(t, state.Exports, 1)
	assert.Equal(t, "json", state.Exports[0].Format)
	_, err := os.Stat(state.Exports[0].Path)
	assert.NoError(t, err, "export artifact must exist on disk")
}

func TestDiscoveryHoldsExtractablePages(t *testing.T) {
	cfg := testConfig(t)
	spawner := agent.NewSpawner(agent.NewRegistry(siteCrawler()))
	state := model.NewPipelineState("job-disc", []string{"nema"})
	state.AddToQueue(model.QueueItem{URL: siteRoot, Priority: 10, Association: "nema"})

	o := New(cfg, testAssocs(), spawner, nil, state, ModeFull)
	ok, _ := o.handleDiscovery(context.Background())
	require.True(t, ok)

	// Navigation pages are consumed; the directory and the extractable leaves
	// stay queued for classification and extraction.
	assert.ElementsMatch(t, []string{siteRoot, siteAbout}, state.VisitedURLs)
	queued := make(map[string]string, len(state.CrawlQueue))
	for _, item := range state.CrawlQueue {
		queued[item.URL] = item.PageTypeHint
	}
	assert.Equal(t, map[string]string{
		siteDirectory: model.PageTypeMemberDirectory,
		siteAcme:      model.PageTypeMemberProfile,
		siteApex:      model.PageTypeMemberProfile,
		siteExpo:      model.PageTypeEventPage,
	}, queued)
}

func TestRunGatekeeperAllBlocked(t *testing.T) {
	cfg := testConfig(t)
	deny := &stubAgent{taskType: agent.TypeAccessChecker, fn: func(_ context.Context, _ model.Task) (*model.TaskResult, error) {
		return &model.TaskResult{Success: true, Verdict: "block"}, nil
	}}
	spawner := agent.NewSpawner(agent.NewRegistry(deny))
	state := model.NewPipelineState("job-blocked", []string{"nema"})

	o := New(cfg, testAssocs(), spawner, nil, state, ModeFull)
	report := o.Run(context.Background())

	assert.False(t, report.Success)
	assert.Equal(t, model.PhaseFailed, report.FinalPhase)
	assert.Contains(t, state.BlockedURLs, siteRoot)

	var found bool
	for _, rec := range state.Errors {
		if rec.ErrorType == "blocked" {
			found = true
		}
	}
	assert.True(t, found, "the all-roots-blocked error must be recorded")
}

func TestRunHandlerPanicFailsPhase(t *testing.T) {
	cfg := testConfig(t)
	spawner := agent.NewSpawner(agent.NewRegistry())
	state := model.NewPipelineState("job-panic", []string{"nema"})

	o := New(cfg, testAssocs(), spawner, nil, state, ModeFull)
	o.handlers[model.PhaseGatekeeper] = func(_ context.Context) (bool, map[string]any) {
		panic("gatekeeper exploded")
	}
	report := o.Run(context.Background())

	assert.False(t, report.Success)
	assert.Equal(t, model.PhaseFailed, report.FinalPhase)

	require.NotEmpty(t, state.Errors)
	last := state.Errors[len(state.Errors)-1]
	assert.Equal(t, "orchestrator", last.Agent)
	assert.Equal(t, "panic", last.ErrorType)
	assert.Contains(t, last.ErrorMessage, "gatekeeper exploded")
	assert.NotEmpty(t, last.Context["stack"])
}

func TestRunResumesFromExtraction(t *testing.T) {
	cfg := testConfig(t)
	spawner := agent.NewSpawner(fullRegistry(cfg))

	// State as a crashed run would have left it: mid-pipeline phase, two pages
	// already visited, three classified pages still queued.
	state := model.NewPipelineState("job-resume", []string{"nema"})
	state.AddToQueue(model.QueueItem{URL: siteRoot, Priority: 10, Association: "nema"})
	state.AddToQueue(model.QueueItem{URL: siteAbout, Association: "nema"})
	state.MarkVisited(siteRoot)
	state.MarkVisited(siteAbout)
	state.AddToQueue(model.QueueItem{URL: siteAcme, Priority: 10, Depth: 2, Association: "nema", PageTypeHint: model.PageTypeMemberProfile})
	state.AddToQueue(model.QueueItem{URL: siteApex, Priority: 10, Depth: 2, Association: "nema", PageTypeHint: model.PageTypeMemberProfile})
	state.AddToQueue(model.QueueItem{URL: siteExpo, Priority: 5, Depth: 2, Association: "nema", PageTypeHint: model.PageTypeEventPage})
	state.CurrentPhase = model.PhaseExtraction

	o := New(cfg, testAssocs(), spawner, nil, state, ModeFull)
	report := o.Run(context.Background())

	require.True(t, report.Success, "errors: %+v", report.Errors)
	assert.Equal(t, model.PhaseDone, report.FinalPhase)
	assert.Empty(t, state.CrawlQueue, "resumed extraction drains the queue")
	assert.Equal(t, 5, state.Counters.URLsVisited)
	assert.Equal(t, 2, state.Counters.CompaniesExtracted)
	require.Len(t, state.CanonicalEntities, 1)
	assert.Equal(t, "Acme Inc", state.CanonicalEntities[0].Company.Name)
}

func TestRunModeValidateSkipsInactivePhases(t *testing.T) {
	cfg := testConfig(t)
	spawner := agent.NewSpawner(agent.NewRegistry())

	state := model.NewPipelineState("job-validate", []string{"nema"})
	state.AddCompanies(
		model.Company{Name: "Acme Inc", Domain: "acme.com"},
		model.Company{Name: "ACME, Incorporated", Domain: "acme.com"},
	)

	o := New(cfg, testAssocs(), spawner, nil, state, ModeValidate)
	report := o.Run(context.Background())

	require.True(t, report.Success, "errors: %+v", report.Errors)
	require.Len(t, state.CanonicalEntities, 1)
	assert.Empty(t, state.GraphEdges, "graph phase is inactive in validate mode")
	assert.Empty(t, state.Exports, "export phase is inactive in validate mode")

	skipped := map[model.PipelinePhase]bool{}
	for _, tr := range state.PhaseHistory {
		if v, ok := tr.Stats["skipped"].(bool); ok && v {
			skipped[tr.Phase] = true
		}
	}
	assert.True(t, skipped[model.PhaseDiscovery])
	assert.True(t, skipped[model.PhaseGraph])
	assert.False(t, skipped[model.PhaseValidation])
}

func TestRunCheckpointsToStore(t *testing.T) {
	cfg := testConfig(t)
	store, err := statestore.NewFS(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	spawner := agent.NewSpawner(fullRegistry(cfg))
	state := model.NewPipelineState("job-persist", []string{"nema"})

	o := New(cfg, testAssocs(), spawner, store, state, ModeFull)
	report := o.Run(context.Background())
	require.True(t, report.Success, "errors: %+v", report.Errors)

	ctx := context.Background()
	loaded, err := store.LoadState(ctx, "job-persist")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDone, loaded.CurrentPhase)
	assert.NotNil(t, loaded.CompletedAt)
	assert.Len(t, loaded.CanonicalEntities, 2)

	cps, err := store.ListCheckpoints(ctx, "job-persist")
	require.NoError(t, err)
	require.NotEmpty(t, cps)
	assert.Equal(t, model.PhaseDone, cps[len(cps)-1].Phase)
}

func TestFailureRateCeiling(t *testing.T) {
	cfg := testConfig(t)
	state := model.NewPipelineState("job-rate", []string{"nema"})
	o := New(cfg, testAssocs(), agent.NewSpawner(agent.NewRegistry()), nil, state, ModeFull)

	// Below the warm-up the ceiling never trips, even at 100% failure.
	assert.False(t, o.failureRateExceeded(model.PhaseExtraction, 0.5, 9, 9))

	// At the ceiling is tolerated; above it trips and records the breach.
	assert.False(t, o.failureRateExceeded(model.PhaseExtraction, 0.5, 10, 5))
	assert.True(t, o.failureRateExceeded(model.PhaseExtraction, 0.5, 10, 6))
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "failure_rate", state.Errors[0].ErrorType)
	assert.Equal(t, model.PhaseExtraction, state.Errors[0].Phase)
	assert.Contains(t, state.Errors[0].ErrorMessage, "exceeds ceiling")

	// A zero ceiling disables the check entirely.
	assert.False(t, o.failureRateExceeded(model.PhaseEnrichment, 0, 100, 100))
}

func TestDiscoveryBudgetIsPerRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.MaxPages = 3
	spawner := agent.NewSpawner(agent.NewRegistry(siteCrawler()))
	state := model.NewPipelineState("job-budget", []string{"nema"})

	// A previous run already visited more pages than one run's budget.
	for i := 0; i < 10; i++ {
		u := fmt.Sprintf("https://nema.example.org/archive/%d", i)
		state.AddToQueue(model.QueueItem{URL: u})
		state.MarkVisited(u)
	}
	state.AddToQueue(model.QueueItem{URL: siteRoot, Priority: 10, Association: "nema"})

	o := New(cfg, testAssocs(), spawner, nil, state, ModeFull)
	ok, _ := o.handleDiscovery(context.Background())
	require.True(t, ok)

	// The resumed run gets a fresh fetch budget instead of being charged
	// for pages visited before the restart.
	assert.Contains(t, state.VisitedURLs, siteRoot)
	assert.Contains(t, state.VisitedURLs, siteAbout)
	assert.Equal(t, 12, state.Counters.URLsVisited)
}

func TestExtractionBatchesRunInTaskTypeOrder(t *testing.T) {
	cfg := testConfig(t)

	var mu sync.Mutex
	var order []string
	record := func(taskType string) *stubAgent {
		return &stubAgent{taskType: taskType, fn: func(_ context.Context, _ model.Task) (*model.TaskResult, error) {
			mu.Lock()
			order = append(order, taskType)
			mu.Unlock()
			return &model.TaskResult{Success: true, RecordsProcessed: 1}, nil
		}}
	}
	spawner := agent.NewSpawner(agent.NewRegistry(
		record(agent.TypeMemberExtractor),
		record(agent.TypeEventExtractor),
	))
	state := model.NewPipelineState("job-order", []string{"nema"})
	state.AddToQueue(model.QueueItem{URL: siteAcme, Priority: 10, PageTypeHint: model.PageTypeMemberProfile, Association: "nema"})
	state.AddToQueue(model.QueueItem{URL: siteExpo, Priority: 5, PageTypeHint: model.PageTypeEventPage, Association: "nema"})

	o := New(cfg, testAssocs(), spawner, nil, state, ModeFull)
	ok, _ := o.handleExtraction(context.Background())
	require.True(t, ok)

	// Queue priority puts the member page first in the batch; sub-batches
	// still execute in task-type order.
	assert.Equal(t, []string{agent.TypeEventExtractor, agent.TypeMemberExtractor}, order)
}
