package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/agents"
	"github.com/sells-group/memberscope/internal/config"
	"github.com/sells-group/memberscope/internal/model"
	"github.com/sells-group/memberscope/internal/orchestrator"
	"github.com/sells-group/memberscope/internal/statestore"
)

var (
	runMode         string
	runAssociations []string
	runResumeJobID  string
	runDryRun       bool
	runNoPersist    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collection pipeline",
	Long:  "Runs the pipeline phases end to end: gatekeeping, discovery, classification, extraction, enrichment, validation, resolution, graph building, and export.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		all, err := config.LoadAssociations(cfg.AssociationsFile)
		if err != nil {
			return err
		}
		selected := all
		if runMode != orchestrator.ModeExtractAll {
			selected = config.FilterAssociations(all, runAssociations)
		}
		if len(selected) == 0 {
			return eris.Errorf("run: no associations match %v", runAssociations)
		}

		if runDryRun {
			plan := map[string]any{
				"mode":         runMode,
				"associations": selected,
				"max_pages":    cfg.Crawl.MaxPages,
				"max_depth":    cfg.Crawl.MaxDepth,
				"store":        cfg.Store.Driver,
				"export_dir":   cfg.Export.Dir,
			}
			return json.NewEncoder(os.Stdout).Encode(plan)
		}

		var store statestore.Store
		if !runNoPersist {
			store, err = openStore(ctx)
			if err != nil {
				return eris.Wrap(err, "run: open store")
			}
			defer store.Close()
		}

		var state *model.PipelineState
		if runResumeJobID != "" {
			if store == nil {
				return eris.New("run: --resume requires persistence")
			}
			state, err = store.LoadState(ctx, runResumeJobID)
			if err != nil {
				return eris.Wrapf(err, "run: load job %s", runResumeJobID)
			}
			if state.CurrentPhase.Terminal() {
				return eris.Errorf("run: job %s already finished in phase %s", runResumeJobID, state.CurrentPhase)
			}
			zap.L().Info("resuming job",
				zap.String("job_id", state.JobID),
				zap.String("phase", string(state.CurrentPhase)),
				zap.Int("queue_depth", len(state.CrawlQueue)),
			)
		} else {
			codes := make([]string, len(selected))
			for i, a := range selected {
				codes[i] = a.Code
			}
			state = model.NewPipelineState("", codes)
		}

		registry := agent.NewRegistry(agents.All(cfg)...)
		spawner := agent.NewSpawner(registry)

		orch := orchestrator.New(cfg, selected, spawner, store, state, runMode)
		report := orch.Run(ctx)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "run: encode report")
		}
		if !report.Success {
			return eris.Errorf("run: pipeline failed in phase %s", report.FinalPhase)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", orchestrator.ModeFull, "pipeline mode: extract | extract-all | enrich | validate | full")
	runCmd.Flags().StringSliceVar(&runAssociations, "association", nil, "association codes to run (default all)")
	runCmd.Flags().StringVar(&runResumeJobID, "resume", "", "resume the job with this id from its last checkpoint")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the run plan without executing")
	runCmd.Flags().BoolVar(&runNoPersist, "no-persist", false, "run without writing state to the store")
	rootCmd.AddCommand(runCmd)
}
