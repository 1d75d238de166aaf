package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Run       RunConfig       `yaml:"run" mapstructure:"run"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres connection pool.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig points at the SQLite menu database.
type SourceConfig struct {
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Limit      int    `yaml:"limit" mapstructure:"limit"`
}

// AnthropicConfig configures the extraction model.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	BatchThreshold int     `yaml:"batch_threshold" mapstructure:"batch_threshold"`
	NoBatch        bool    `yaml:"no_batch" mapstructure:"no_batch"`
}

// ExtractConfig controls chunking and call fan-out.
type ExtractConfig struct {
	ChunkSize     int `yaml:"chunk_size" mapstructure:"chunk_size"`
	Concurrency   int `yaml:"concurrency" mapstructure:"concurrency"`
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// RunConfig holds provenance defaults recorded on each extraction run.
type RunConfig struct {
	PromptVersion   string `yaml:"prompt_version" mapstructure:"prompt_version"`
	PipelineVersion string `yaml:"pipeline_version" mapstructure:"pipeline_version"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PushGatewayURL  string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	PushJob         string `yaml:"push_job" mapstructure:"push_job"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	CORSOrigins       []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	CheckIntervalSecs int      `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StaleAfterHours   int      `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validation modes.
const (
	ModeRun     = "run"
	ModeExtract = "extract"
	ModeServe   = "serve"
	ModeStore   = "store"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MENU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("source.sqlite_path", "data/mydb_clean.sqlite")
	v.SetDefault("source.limit", 10)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.rate_limit", 2.0)
	v.SetDefault("anthropic.batch_threshold", 20)
	v.SetDefault("anthropic.no_batch", false)
	v.SetDefault("extract.chunk_size", 1)
	v.SetDefault("extract.concurrency", 1)
	v.SetDefault("extract.retry_attempts", 3)
	v.SetDefault("run.prompt_version", "")
	v.SetDefault("run.pipeline_version", "")
	v.SetDefault("run.timeout_secs", 0)
	v.SetDefault("run.pushgateway_url", "")
	v.SetDefault("run.push_job", "menu-cli")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.check_interval_secs", 300)
	v.SetDefault("server.stale_after_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string
	need := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch mode {
	case ModeRun:
		need(c.Store.DatabaseURL != "", "store.database_url is required")
		errs = append(errs, c.extractErrors()...)
	case ModeExtract:
		errs = append(errs, c.extractErrors()...)
	case ModeServe:
		need(c.Store.DatabaseURL != "", "store.database_url is required")
		need(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be between 1 and 65535")
	case ModeStore:
		need(c.Store.DatabaseURL != "", "store.database_url is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	need(c.Store.MaxConns <= 0 || c.Store.MinConns <= c.Store.MaxConns, "store.min_conns must not exceed store.max_conns")

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: invalid for %s: %s", mode, strings.Join(errs, "; ")))
	}
	return nil
}

func (c *Config) extractErrors() []string {
	var errs []string
	if c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required")
	}
	if c.Anthropic.Model == "" {
		errs = append(errs, "anthropic.model is required")
	}
	if c.Source.SQLitePath == "" {
		errs = append(errs, "source.sqlite_path is required")
	}
	if c.Source.Limit < 0 {
		errs = append(errs, "source.limit must be >= 0")
	}
	if c.Extract.ChunkSize < 1 {
		errs = append(errs, "extract.chunk_size must be >= 1")
	}
	if c.Extract.Concurrency < 1 || c.Extract.Concurrency > 32 {
		errs = append(errs, "extract.concurrency must be between 1 and 32")
	}
	if c.Anthropic.RateLimit < 0 {
		errs = append(errs, "anthropic.rate_limit must be >= 0")
	}
	return errs
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
