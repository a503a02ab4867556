package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentTasks)
	assert.Equal(t, 60, cfg.Pipeline.TaskTimeoutSecs)
	assert.Equal(t, 25, cfg.Pipeline.CheckpointEveryURLs)
	assert.InDelta(t, 0.5, cfg.Pipeline.FailureRateCeiling, 1e-9)
	assert.False(t, cfg.Pipeline.EnableMonitor)
	assert.Equal(t, 200, cfg.Crawl.MaxPages)
	assert.Equal(t, 3, cfg.Crawl.MaxDepth)
	assert.InDelta(t, 0.85, cfg.Resolve.Threshold, 1e-9)
	assert.Equal(t, "keep_best", cfg.Resolve.DedupeStrategy)
	assert.Equal(t, "merge_all", cfg.Resolve.ResolutionStrategy)
	assert.Equal(t, []string{"json", "xlsx"}, cfg.Export.Formats)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "associations.yaml", cfg.AssociationsFile)
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MEMBERSCOPE_PIPELINE_MAX_CONCURRENT_TASKS", "16")
	t.Setenv("MEMBERSCOPE_STORE_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Pipeline.MaxConcurrentTasks)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}
