// Package config provides configuration types for sessiontrack.
//
// Configuration comes from an optional YAML file, SESSIONTRACK_* environment
// variables and CLI flag overrides, in increasing order of precedence.
package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the top-level configuration for sessiontrack.
type Config struct {
	// Server configures the HTTP listener and logging.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Store configures where pending sessions are persisted.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Session configures session lifecycle timing.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Completion configures what happens to completed sessions.
	Completion CompletionConfig `yaml:"completion" mapstructure:"completion"`

	// Tracing configures OpenTelemetry spans for tracker commands and sweeps.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables debug logging and an in-memory store unless a backend
	// is configured explicitly.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	// HTTPAddr is the listen address. Defaults to localhost only.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"required,hostname_port"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	// AllowedOrigins lists browser origins allowed to call the API.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,url"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	// Backend is file, sqlite or memory.
	Backend string `yaml:"backend" mapstructure:"backend" validate:"required,oneof=file sqlite memory"`
	// Dir holds the snapshot file or database.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required_unless=Backend memory"`
	// Key names the snapshot within the store.
	Key string `yaml:"key" mapstructure:"key" validate:"required,excludesall=/\\"`
}

// SessionConfig configures session timing.
type SessionConfig struct {
	// GracePeriod is how long an ended session stays resumable.
	GracePeriod string `yaml:"grace_period" mapstructure:"grace_period" validate:"required,duration"`
	// SweepInterval is how often expired sessions are completed.
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"required,duration"`
}

// CompletionConfig configures completion reporting.
type CompletionConfig struct {
	// Filter is an optional CEL expression selecting which completed
	// sessions are reported.
	Filter string `yaml:"filter" mapstructure:"filter"`
	// Log writes each completed session to the application log.
	Log bool `yaml:"log" mapstructure:"log"`
	// Output writes each completed session as a JSON line.
	// Valid values: "", "stdout" or "file://<absolute-path>".
	Output string `yaml:"output" mapstructure:"output" validate:"omitempty,output_uri"`
	// HistorySize is the number of completed sessions kept in memory for
	// GET /v1/sessions/completed when no ledger is configured.
	HistorySize int `yaml:"history_size" mapstructure:"history_size" validate:"gte=0"`
	// Ledger records completed sessions in the sqlite database under store.dir.
	Ledger bool `yaml:"ledger" mapstructure:"ledger"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Output is where spans are written: "", "stdout" or "file://<absolute-path>".
	// Empty disables tracing.
	Output string `yaml:"output" mapstructure:"output" validate:"omitempty,output_uri"`
}

// SetDevDefaults applies development defaults. It must run before SetDefaults
// so the memory backend wins over the file default.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "debug"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Completion.Output == "" {
		c.Completion.Output = "stdout"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only. Users who need network access must set
	// http_addr explicitly.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8090"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Store.Dir == "" {
		c.Store.Dir = ".sessiontrack"
	}
	if c.Store.Key == "" {
		c.Store.Key = "user_sessions"
	}

	if c.Session.GracePeriod == "" {
		c.Session.GracePeriod = "15s"
	}
	if c.Session.SweepInterval == "" {
		c.Session.SweepInterval = "1s"
	}

	// viper.IsSet distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("completion.log") {
		c.Completion.Log = true
	}
	if c.Completion.HistorySize == 0 {
		c.Completion.HistorySize = 1000
	}
}

// GracePeriodDuration returns the parsed grace period. Call after Validate.
func (c *Config) GracePeriodDuration() time.Duration {
	d, _ := time.ParseDuration(c.Session.GracePeriod)
	return d
}

// SweepIntervalDuration returns the parsed sweep interval. Call after Validate.
func (c *Config) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Session.SweepInterval)
	return d
}

// SnapshotPath returns the file the file backend writes for the configured key.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Store.Dir, c.Store.Key+".json")
}

// DatabasePath returns the sqlite database used by the sqlite backend and the ledger.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Store.Dir, "sessions.db")
}

// NeedsDatabase reports whether the sqlite database must be opened.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend == BackendSQLite || c.Completion.Ledger
}
