package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

const (
	defaultTimeoutSec      = 120.0
	defaultPageSize        = 200
	defaultPollIntervalSec = 2.0
	defaultReadyTimeoutSec = 300.0
	defaultNoneStage       = "None"
)

// DefaultRemoteSchemes lists artifact URI schemes whose paths cannot be
// checked on the local filesystem.
var DefaultRemoteSchemes = []string{
	"dbfs", "s3", "s3a", "gs", "wasbs", "abfss", "hdfs",
	"http", "https", "mlflow-artifacts", "runs", "models",
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() models.Config {
	return models.Config{
		LogLevel: "info",
		Tracking: models.TrackingConfig{
			TimeoutSec: defaultTimeoutSec,
			PageSize:   defaultPageSize,
		},
		Export: models.ExportConfig{
			Threads: 0,
		},
		Import: models.ImportConfig{
			PollIntervalSec: defaultPollIntervalSec,
			ReadyTimeoutSec: defaultReadyTimeoutSec,
			NoneStage:       defaultNoneStage,
			RemoteSchemes:   append([]string(nil), DefaultRemoteSchemes...),
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML or TOML
// file and MLFLOW_* environment variables, in that order of precedence.
func LoadConfig(path string) (models.Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}

		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".toml":
			if err := decodeTOML(data, &cfg); err != nil {
				return cfg, err
			}
		case ".yaml", ".yml", ".json":
			if err := decodeYAML(data, &cfg); err != nil {
				return cfg, err
			}
		default:
			return cfg, fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
		}
	}

	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *models.Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	// Handle legacy 'sleep_time' if 'poll_interval_sec' is not explicitly set
	var raw struct {
		Import map[string]any `yaml:"import"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	_, pollDefined := raw.Import["poll_interval_sec"]
	_, sleepDefined := raw.Import["sleep_time"]
	if !pollDefined && sleepDefined {
		cfg.Import.PollIntervalSec = cfg.Import.SleepTime
	}
	return nil
}

func decodeTOML(data []byte, cfg *models.Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	// Handle legacy 'sleep_time' if 'poll_interval_sec' is not explicitly set
	if !md.IsDefined("import", "poll_interval_sec") && md.IsDefined("import", "sleep_time") {
		cfg.Import.PollIntervalSec = cfg.Import.SleepTime
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parsing config: unknown keys %v", undecoded)
	}
	return nil
}

// parseEnv overlays MLFLOW_* environment variables onto cfg.
func parseEnv(cfg *models.Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Tracking.TimeoutSec <= 0 {
		cfg.Tracking.TimeoutSec = defaultTimeoutSec
	}
	if cfg.Tracking.PageSize <= 0 {
		cfg.Tracking.PageSize = defaultPageSize
	}
	if cfg.Import.PollIntervalSec <= 0 {
		cfg.Import.PollIntervalSec = defaultPollIntervalSec
	}
	if cfg.Import.ReadyTimeoutSec <= 0 {
		cfg.Import.ReadyTimeoutSec = defaultReadyTimeoutSec
	}
	if cfg.Import.NoneStage == "" {
		cfg.Import.NoneStage = defaultNoneStage
	}
	if len(cfg.Import.RemoteSchemes) == 0 {
		cfg.Import.RemoteSchemes = append([]string(nil), DefaultRemoteSchemes...)
	}
}

// Validate rejects configurations that cannot drive a migration.
func Validate(cfg models.Config) error {
	if cfg.Export.Threads < 0 {
		return fmt.Errorf("export.threads must not be negative, got %d", cfg.Export.Threads)
	}
	if cfg.Import.ReadyTimeoutSec < cfg.Import.PollIntervalSec {
		return fmt.Errorf("import.ready_timeout_sec (%g) must be at least import.poll_interval_sec (%g)",
			cfg.Import.ReadyTimeoutSec, cfg.Import.PollIntervalSec)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	return nil
}

// ExportThreads returns the worker pool size for bulk exports: an explicit
// thread count wins, use_threads means one worker per CPU, otherwise 1.
func ExportThreads(cfg models.ExportConfig) int {
	if cfg.Threads > 0 {
		return cfg.Threads
	}
	if cfg.UseThreads {
		return runtime.NumCPU()
	}
	return 1
}

// ParseLogLevel maps a validated log_level onto a slog level.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
