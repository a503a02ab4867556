package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/config"
	"github.com/sells-group/memberscope/internal/model"
	"github.com/sells-group/memberscope/internal/resolve"
	"github.com/sells-group/memberscope/internal/statestore"
)

// Mode selects which phases perform real work. Inactive phases transition
// through as no-ops so the state machine stays linear.
const (
	ModeExtract    = "extract"
	ModeExtractAll = "extract-all"
	ModeEnrich     = "enrich"
	ModeValidate   = "validate"
	ModeFull       = "full"
)

// modePhases lists the phases that do real work per mode. Modes absent from
// the map (ModeFull) run everything.
var modePhases = map[string]map[model.PipelinePhase]bool{
	ModeExtract: {
		model.PhaseInit: true, model.PhaseGatekeeper: true, model.PhaseDiscovery: true,
		model.PhaseClassification: true, model.PhaseExtraction: true, model.PhaseExport: true,
	},
	ModeExtractAll: {
		model.PhaseInit: true, model.PhaseGatekeeper: true, model.PhaseDiscovery: true,
		model.PhaseClassification: true, model.PhaseExtraction: true, model.PhaseExport: true,
	},
	ModeEnrich: {
		model.PhaseInit: true, model.PhaseEnrichment: true, model.PhaseValidation: true,
		model.PhaseResolution: true, model.PhaseGraph: true, model.PhaseExport: true,
	},
	ModeValidate: {
		model.PhaseInit: true, model.PhaseValidation: true, model.PhaseResolution: true,
	},
}

func phaseActive(mode string, p model.PipelinePhase) bool {
	phases, ok := modePhases[mode]
	if !ok {
		return true
	}
	return phases[p]
}

// handlerFunc runs one phase against the pipeline state. The boolean is the
// only fatal signal; stats feed the phase history entry.
type handlerFunc func(ctx context.Context) (bool, map[string]any)

// RunReport is the final outcome of one pipeline run.
type RunReport struct {
	JobID      string              `json:"job_id"`
	Success    bool                `json:"success"`
	FinalPhase model.PipelinePhase `json:"final_phase"`
	Counters   model.Counters      `json:"counters"`
	Errors     []model.ErrorRecord `json:"errors,omitempty"`
}

// Orchestrator drives the phase state machine for one pipeline run. Phases
// execute sequentially; concurrency exists only inside a phase via the
// spawner fan-out.
type Orchestrator struct {
	cfg      *config.Config
	assocs   []config.Association
	spawner  *agent.Spawner
	store    statestore.Store // nil disables persistence
	state    *model.PipelineState
	mode     string
	handlers map[model.PipelinePhase]handlerFunc

	dedupe     *resolve.Engine
	resolution *resolve.Engine
}

// New creates an orchestrator over fresh or resumed state.
func New(cfg *config.Config, assocs []config.Association, spawner *agent.Spawner, store statestore.Store, state *model.PipelineState, mode string) *Orchestrator {
	if mode == "" {
		mode = ModeFull
	}
	o := &Orchestrator{
		cfg:     cfg,
		assocs:  assocs,
		spawner: spawner,
		store:   store,
		state:   state,
		mode:    mode,
		dedupe: resolve.NewEngine(resolve.Config{
			Threshold: cfg.Resolve.Threshold,
			Strategy:  resolve.MergeStrategy(cfg.Resolve.DedupeStrategy),
			Weights:   resolve.DedupeWeights(),
		}),
		resolution: resolve.NewEngine(resolve.Config{
			Threshold: cfg.Resolve.Threshold,
			Strategy:  resolve.MergeStrategy(cfg.Resolve.ResolutionStrategy),
			Weights:   resolve.ResolutionWeights(),
		}),
	}
	o.handlers = map[model.PipelinePhase]handlerFunc{
		model.PhaseInit:           o.handleInit,
		model.PhaseGatekeeper:     o.handleGatekeeper,
		model.PhaseDiscovery:      o.handleDiscovery,
		model.PhaseClassification: o.handleClassification,
		model.PhaseExtraction:     o.handleExtraction,
		model.PhaseEnrichment:     o.handleEnrichment,
		model.PhaseValidation:     o.handleValidation,
		model.PhaseResolution:     o.handleResolution,
		model.PhaseGraph:          o.handleGraph,
		model.PhaseExport:         o.handleExport,
		model.PhaseMonitor:        o.handleMonitor,
	}
	return o
}

// State exposes the run state (read-only use by callers).
func (o *Orchestrator) State() *model.PipelineState {
	return o.state
}

// Run executes the phase loop until a terminal phase. Every transition is
// checkpointed; a handler returning false or panicking transitions to
// FAILED. The report always carries the full error list, and a failed run
// remains resumable from its last checkpoint.
func (o *Orchestrator) Run(ctx context.Context) *RunReport {
	log := zap.L().With(zap.String("job_id", o.state.JobID))
	log.Info("pipeline starting",
		zap.String("mode", o.mode),
		zap.String("phase", string(o.state.CurrentPhase)),
		zap.Strings("associations", o.state.AssociationCodes),
	)

	for !o.state.CurrentPhase.Terminal() {
		phase := o.state.CurrentPhase
		start := time.Now()

		var ok bool
		var stats map[string]any
		if phaseActive(o.mode, phase) {
			ok, stats = o.invoke(ctx, phase)
		} else {
			ok, stats = true, map[string]any{"skipped": true}
			log.Debug("phase skipped by mode", zap.String("phase", string(phase)))
		}

		if !ok {
			log.Error("phase failed",
				zap.String("phase", string(phase)),
				zap.Duration("elapsed", time.Since(start)),
			)
			if err := o.state.Transition(model.PhaseFailed, stats); err != nil {
				log.Error("transition to failed rejected", zap.Error(err))
			}
			o.checkpoint(ctx)
			break
		}

		log.Info("phase complete",
			zap.String("phase", string(phase)),
			zap.Duration("elapsed", time.Since(start)),
		)

		next, hasNext := phase.Next(!o.cfg.Pipeline.EnableMonitor)
		if !hasNext {
			break
		}
		if err := o.state.Transition(next, stats); err != nil {
			o.state.AddError(model.ErrorRecord{
				Phase:        phase,
				Agent:        "orchestrator",
				ErrorType:    "transition",
				ErrorMessage: err.Error(),
			})
			_ = o.state.Transition(model.PhaseFailed, stats)
			o.checkpoint(ctx)
			break
		}
		o.checkpoint(ctx)
	}

	report := &RunReport{
		JobID:      o.state.JobID,
		Success:    o.state.CurrentPhase == model.PhaseDone,
		FinalPhase: o.state.CurrentPhase,
		Counters:   o.state.Counters,
		Errors:     o.state.Errors,
	}
	log.Info("pipeline finished",
		zap.Bool("success", report.Success),
		zap.String("final_phase", string(report.FinalPhase)),
		zap.Int("errors", len(report.Errors)),
	)
	return report
}

// invoke runs one phase handler under panic recovery. An uncaught fault is
// recorded against the special agent name "orchestrator" and fails the
// phase.
func (o *Orchestrator) invoke(ctx context.Context, phase model.PipelinePhase) (ok bool, stats map[string]any) {
	h, found := o.handlers[phase]
	if !found {
		o.state.AddError(model.ErrorRecord{
			Phase:        phase,
			Agent:        "orchestrator",
			ErrorType:    "config",
			ErrorMessage: fmt.Sprintf("no handler registered for phase %s", phase),
		})
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			o.state.AddError(model.ErrorRecord{
				Phase:        phase,
				Agent:        "orchestrator",
				ErrorType:    "panic",
				ErrorMessage: fmt.Sprintf("%v", r),
				Context:      map[string]any{"stack": string(debug.Stack())},
			})
			ok = false
		}
	}()
	return h(ctx)
}

// checkpoint persists the full snapshot and a phase summary. Idempotent: the
// snapshot for a job id is always overwritten, never appended. Persistence
// failures are logged, not fatal; the run can still finish in memory.
func (o *Orchestrator) checkpoint(ctx context.Context) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveState(ctx, o.state); err != nil {
		zap.L().Warn("checkpoint: save state failed",
			zap.String("job_id", o.state.JobID),
			zap.Error(err),
		)
		return
	}
	if err := o.store.SaveCheckpoint(ctx, o.state.Checkpoint()); err != nil {
		zap.L().Warn("checkpoint: save summary failed",
			zap.String("job_id", o.state.JobID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) taskTimeout() time.Duration {
	secs := o.cfg.Pipeline.TaskTimeoutSecs
	if secs <= 0 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

func (o *Orchestrator) maxConcurrent() int {
	n := o.cfg.Pipeline.MaxConcurrentTasks
	if n <= 0 {
		n = 4
	}
	return n
}
