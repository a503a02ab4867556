package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Crawl    CrawlConfig    `yaml:"crawl" mapstructure:"crawl"`
	Resolve  ResolveConfig  `yaml:"resolve" mapstructure:"resolve"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`

	// AssociationsFile points at the YAML seed registry of data sources.
	AssociationsFile string `yaml:"associations_file" mapstructure:"associations_file"`
}

// StoreConfig configures the state persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // json | sqlite | postgres
	Dir         string `yaml:"dir" mapstructure:"dir"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	MaxConcurrentTasks  int     `yaml:"max_concurrent_tasks" mapstructure:"max_concurrent_tasks"`
	TaskTimeoutSecs     int     `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
	CheckpointEveryURLs int     `yaml:"checkpoint_every_urls" mapstructure:"checkpoint_every_urls"`
	FailureRateCeiling  float64 `yaml:"failure_rate_ceiling" mapstructure:"failure_rate_ceiling"`
	EnableMonitor       bool    `yaml:"enable_monitor" mapstructure:"enable_monitor"`
}

// CrawlConfig configures the discovery crawl.
type CrawlConfig struct {
	MaxPages        int     `yaml:"max_pages" mapstructure:"max_pages"`
	MaxDepth        int     `yaml:"max_depth" mapstructure:"max_depth"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// ResolveConfig configures the dedupe/resolution engine.
type ResolveConfig struct {
	Threshold          float64 `yaml:"threshold" mapstructure:"threshold"`
	DedupeStrategy     string  `yaml:"dedupe_strategy" mapstructure:"dedupe_strategy"`
	ResolutionStrategy string  `yaml:"resolution_strategy" mapstructure:"resolution_strategy"`
}

// ExportConfig configures export generation.
type ExportConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// ServerConfig configures the job status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MEMBERSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "json")
	v.SetDefault("store.dir", ".memberscope/jobs")
	v.SetDefault("pipeline.max_concurrent_tasks", 4)
	v.SetDefault("pipeline.task_timeout_secs", 60)
	v.SetDefault("pipeline.checkpoint_every_urls", 25)
	v.SetDefault("pipeline.failure_rate_ceiling", 0.5)
	v.SetDefault("pipeline.enable_monitor", false)
	v.SetDefault("crawl.max_pages", 200)
	v.SetDefault("crawl.max_depth", 3)
	v.SetDefault("crawl.rate_limit_per_sec", 2)
	v.SetDefault("crawl.user_agent", "memberscope/1.0 (+https://github.com/sells-group/memberscope)")
	v.SetDefault("resolve.threshold", 0.85)
	v.SetDefault("resolve.dedupe_strategy", "keep_best")
	v.SetDefault("resolve.resolution_strategy", "merge_all")
	v.SetDefault("export.dir", ".memberscope/exports")
	v.SetDefault("export.formats", []string{"json", "xlsx"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("associations_file", "associations.yaml")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
