package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/config"
	"github.com/sells-group/memberscope/internal/statestore"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "memberscope",
	Short: "Association member intelligence pipeline",
	Long:  "Crawls trade association websites, extracts member companies and events, resolves duplicates into canonical entities, and exports the relationship graph.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore builds the state store selected by config.
func openStore(ctx context.Context) (statestore.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		if err := os.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
			return nil, err
		}
		store, err := statestore.NewSQLite(filepath.Join(cfg.Store.Dir, "memberscope.db"))
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := statestore.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return statestore.NewFS(cfg.Store.Dir)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
