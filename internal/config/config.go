// Package config loads server and session settings from defaults, an
// optional YAML file, .env files and MTO_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/internal/observability"
	"github.com/signalsfoundry/mto-simulator/model"
)

// EnvPrefix is prepended to every environment key, e.g. MTO_SERVER_GRPC_ADDR.
const EnvPrefix = "MTO"

// ServerConfig holds listen addresses.
type ServerConfig struct {
	GRPCAddr    string `mapstructure:"grpc_addr"`
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Config is the full process configuration.
type Config struct {
	Session model.SessionConfig `mapstructure:"session"`
	Server  ServerConfig        `mapstructure:"server"`

	TickInterval time.Duration `mapstructure:"tick_interval"`
	Accelerated  bool          `mapstructure:"accelerated"`
	HistoryLimit int           `mapstructure:"history_limit"`

	LevelPath        string        `mapstructure:"level_path"`
	SnapshotPath     string        `mapstructure:"snapshot_path"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	ArchivePath      string        `mapstructure:"archive_path"`

	ActionRate  float64 `mapstructure:"action_rate"`
	ActionBurst int     `mapstructure:"action_burst"`

	Log     logging.Config              `mapstructure:"log"`
	Tracing observability.TracingConfig `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	s := model.DefaultSessionConfig()
	v.SetDefault("session.duration_minutes", s.DurationMinutes)
	v.SetDefault("session.generation_rate", string(s.GenerationRate))
	v.SetDefault("session.complexity", string(s.Complexity))
	v.SetDefault("session.seed", "")
	v.SetDefault("session.events_enabled", s.EventsEnabled)
	v.SetDefault("session.manual_mode", false)
	v.SetDefault("session.advanced_routing", false)
	v.SetDefault("session.speed", s.Speed)
	v.SetDefault("session.predetermined_orders", false)

	v.SetDefault("server.grpc_addr", ":50051")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")

	v.SetDefault("tick_interval", "100ms")
	v.SetDefault("accelerated", false)
	v.SetDefault("history_limit", 500)

	v.SetDefault("level_path", "")
	v.SetDefault("snapshot_path", "")
	v.SetDefault("snapshot_interval", "30s")
	v.SetDefault("archive_path", "")

	v.SetDefault("action_rate", 10.0)
	v.SetDefault("action_burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.add_source", false)

	// MTO_OTLP_ENDPOINT is honoured as the default tracing.endpoint.
	t := observability.TracingConfigFromEnv()
	v.SetDefault("tracing.enabled", t.Enabled)
	v.SetDefault("tracing.service_name", t.ServiceName)
	v.SetDefault("tracing.exporter", t.Exporter)
	v.SetDefault("tracing.endpoint", t.Endpoint)
	v.SetDefault("tracing.sample_ratio", t.SampleRatio)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads .env files (missing ones are ignored), then the optional YAML
// file at path, and returns the validated configuration.
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates a configuration from v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.ActionRate <= 0 || c.ActionBurst <= 0 {
		return fmt.Errorf("action_rate and action_burst must be positive")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must not be negative")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1]")
	}
	return nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
