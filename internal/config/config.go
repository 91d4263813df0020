// Package config loads and validates run configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pagelift/pagelift/internal/extract"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Partition   PartitionConfig   `mapstructure:"partition"`
	Throttle    ThrottleConfig    `mapstructure:"throttle"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Recognizer  RecognizerConfig  `mapstructure:"recognizer"`
	Workdir     string            `mapstructure:"workdir"`
	Output      OutputConfig      `mapstructure:"output"`
	Scratch     ScratchConfig     `mapstructure:"scratch"`
	Database    DatabaseConfig    `mapstructure:"database"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Ops         OpsConfig         `mapstructure:"ops"`
	Export      ExportConfig      `mapstructure:"export"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CredentialsConfig lists the API credentials backing the worker pool. The
// pool size, and with it the worker count and retry bound, is len(Keys).
// Preferred optionally names the credential whose slot anchors the rotation;
// unknown or empty values fall back to slot 0.
type CredentialsConfig struct {
	Keys      []string `mapstructure:"keys"`
	Preferred string   `mapstructure:"preferred"`
}

// PartitionConfig governs document splitting.
type PartitionConfig struct {
	MaxPagesPerChunk int `mapstructure:"max_pages_per_chunk"`
}

// ThrottleConfig governs the shared pacing of recognition attempts.
type ThrottleConfig struct {
	RequestsBeforePause int     `mapstructure:"requests_before_pause"`
	PauseSeconds        int     `mapstructure:"pause_seconds"`
	RPS                 float64 `mapstructure:"rps"`
	Burst               int     `mapstructure:"burst"`
}

// RetryConfig governs the failover loop. CooldownSeconds below zero means
// the cooldown mirrors throttle.pause_seconds.
type RetryConfig struct {
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

// RecognizerConfig configures the recognition service client.
type RecognizerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Instruction    string `mapstructure:"instruction"`
	MIMEType       string `mapstructure:"mime_type"`
}

// OutputConfig sets where consolidated results are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// ScratchConfig selects the durable per-chunk record store.
type ScratchConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DatabaseConfig controls the optional attempt ledger. An empty DSN
// disables it.
type DatabaseConfig struct {
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// PubSubConfig holds metadata for chunk-completion notifications. An empty
// topic disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProgressConfig tunes the progress hub's batching.
type ProgressConfig struct {
	BufferSize         int `mapstructure:"buffer_size"`
	BatchEvents        int `mapstructure:"batch_events"`
	BatchWaitMs        int `mapstructure:"batch_wait_ms"`
	SinkTimeoutSeconds int `mapstructure:"sink_timeout_seconds"`
}

// OpsConfig controls the operational HTTP server.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ExportConfig toggles the XLSX rendering of the aggregate.
type ExportConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGELIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("partition.max_pages_per_chunk", 5)
	v.SetDefault("throttle.requests_before_pause", 10)
	v.SetDefault("throttle.pause_seconds", 60)
	v.SetDefault("throttle.rps", 0)
	v.SetDefault("throttle.burst", 1)
	v.SetDefault("retry.cooldown_seconds", -1)
	v.SetDefault("recognizer.timeout_seconds", 300)
	v.SetDefault("recognizer.mime_type", "application/pdf")
	v.SetDefault("workdir", "work")
	v.SetDefault("output.dir", "out")
	v.SetDefault("scratch.backend", "fs")
	v.SetDefault("database.table", "attempts")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.conn_lifetime_minutes", 30)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch_events", 1000)
	v.SetDefault("progress.batch_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_seconds", 10)
	v.SetDefault("ops.enabled", true)
	v.SetDefault("ops.port", 8080)
	v.SetDefault("export.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Violations are
// fatal for the run, so they surface as *extract.ConfigurationError.
func (c Config) Validate() error {
	if len(c.Credentials.Keys) == 0 {
		return &extract.ConfigurationError{
			Field:  "credentials.keys",
			Reason: "at least one API credential is required",
		}
	}
	for i, key := range c.Credentials.Keys {
		if strings.TrimSpace(key) == "" {
			return &extract.ConfigurationError{
				Field:  "credentials.keys",
				Reason: fmt.Sprintf("credential %d is blank", i),
			}
		}
	}
	if c.Partition.MaxPagesPerChunk < 1 || c.Partition.MaxPagesPerChunk > 10 {
		return &extract.ConfigurationError{
			Field:  "partition.max_pages_per_chunk",
			Reason: fmt.Sprintf("must be between 1 and 10, got %d", c.Partition.MaxPagesPerChunk),
		}
	}
	if c.Throttle.RequestsBeforePause < 0 {
		return &extract.ConfigurationError{
			Field:  "throttle.requests_before_pause",
			Reason: "must be >= 0",
		}
	}
	if c.Throttle.PauseSeconds < 0 {
		return &extract.ConfigurationError{
			Field:  "throttle.pause_seconds",
			Reason: "must be >= 0",
		}
	}
	if strings.TrimSpace(c.Workdir) == "" {
		return &extract.ConfigurationError{Field: "workdir", Reason: "directory is required"}
	}
	switch c.Scratch.Backend {
	case "fs", "memory":
	case "gcs":
		if c.Scratch.GCSBucket == "" {
			return &extract.ConfigurationError{
				Field:  "scratch.gcs_bucket",
				Reason: "bucket is required for the gcs backend",
			}
		}
	default:
		return &extract.ConfigurationError{
			Field:  "scratch.backend",
			Reason: fmt.Sprintf("unknown backend %q (want fs, gcs, or memory)", c.Scratch.Backend),
		}
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return &extract.ConfigurationError{
			Field:  "pubsub.project_id",
			Reason: "project is required when a topic is set",
		}
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return &extract.ConfigurationError{Field: "ops.port", Reason: "must be > 0"}
	}
	return nil
}

// Pause returns the throttle pause as a duration.
func (c Config) Pause() time.Duration {
	return time.Duration(c.Throttle.PauseSeconds) * time.Second
}

// Cooldown returns the failure cooldown, mirroring the throttle pause when
// retry.cooldown_seconds is negative.
func (c Config) Cooldown() time.Duration {
	if c.Retry.CooldownSeconds < 0 {
		return c.Pause()
	}
	return time.Duration(c.Retry.CooldownSeconds) * time.Second
}

// RecognizerTimeout returns the per-call recognition timeout.
func (c Config) RecognizerTimeout() time.Duration {
	return time.Duration(c.Recognizer.TimeoutSeconds) * time.Second
}
