// Package config loads and validates the service configuration:
// YAML file, then OPSLEDGER_* environment overrides, then validation.
package config

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Engagement EngagementConfig `yaml:"engagement"`
	Audit      AuditConfig      `yaml:"audit"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// EngagementConfig identifies the session a ChainLogger is opened for.
type EngagementConfig struct {
	ID       string `yaml:"id"`
	Operator string `yaml:"operator"`
}

// AuditConfig holds persistence targets for emitted records.
type AuditConfig struct {
	LogPath string `yaml:"log_path"` // JSONL evidence file
	DBPath  string `yaml:"db_path"`  // SQLite record store
}

// MonitorConfig holds integrity sweep settings.
type MonitorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron spec, e.g. "@every 15m"
}

// LoggerConfig holds structured logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout or noop
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Audit: AuditConfig{
			LogPath: "audit.jsonl",
			DBPath:  "audit.db",
		},
		Monitor: MonitorConfig{
			Schedule: "@every 15m",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads the config file at path, applies environment overrides, and
// validates the result. A missing file is not an error; defaults plus
// environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies OPSLEDGER_* environment variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPSLEDGER_ENGAGEMENT_ID"); v != "" {
		cfg.Engagement.ID = v
	}
	if v := os.Getenv("OPSLEDGER_OPERATOR_ID"); v != "" {
		cfg.Engagement.Operator = v
	}
	if v := os.Getenv("OPSLEDGER_AUDIT_LOG_PATH"); v != "" {
		cfg.Audit.LogPath = v
	}
	if v := os.Getenv("OPSLEDGER_AUDIT_DB_PATH"); v != "" {
		cfg.Audit.DBPath = v
	}
	if v := os.Getenv("OPSLEDGER_MONITOR_ENABLED"); v == "true" {
		cfg.Monitor.Enabled = true
	}
	if v := os.Getenv("OPSLEDGER_MONITOR_SCHEDULE"); v != "" {
		cfg.Monitor.Schedule = v
	}
	if v := os.Getenv("OPSLEDGER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("OPSLEDGER_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("OPSLEDGER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("OPSLEDGER_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// Validate checks cross-field constraints.
func Validate(cfg *Config) error {
	switch cfg.Logger.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logger.format %q: must be json or text", cfg.Logger.Format)
	}
	switch cfg.Logger.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logger.level %q: must be debug, info, warn, or error", cfg.Logger.Level)
	}
	if cfg.Tracer.Enabled {
		switch cfg.Tracer.Exporter {
		case "stdout", "noop", "":
		default:
			return fmt.Errorf("tracer.exporter %q: must be stdout or noop", cfg.Tracer.Exporter)
		}
	}
	if cfg.Monitor.Enabled {
		if cfg.Audit.DBPath == "" {
			return fmt.Errorf("monitor.enabled requires audit.db_path")
		}
		if _, err := cron.ParseStandard(cfg.Monitor.Schedule); err != nil {
			return fmt.Errorf("monitor.schedule %q: %w", cfg.Monitor.Schedule, err)
		}
	}
	return nil
}
