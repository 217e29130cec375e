package config

import "time"

// Config holds all control-plane configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Lanes      LanesConfig      `mapstructure:"lanes"`
	Thinking   ThinkingConfig   `mapstructure:"thinking"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
	Cache      CacheConfig      `mapstructure:"cache"`
	History    HistoryConfig    `mapstructure:"history"`
	StatusFile StatusFileConfig `mapstructure:"status_file"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ServerConfig configures the observability HTTP API.
type ServerConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	Timeout     string   `mapstructure:"timeout"`
}

// TimeoutDuration parses the request timeout, falling back to 30s.
func (c ServerConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// LanesConfig configures the three scheduler lanes.
type LanesConfig struct {
	Critical   LaneConfig `mapstructure:"critical"`
	Standard   LaneConfig `mapstructure:"standard"`
	Background LaneConfig `mapstructure:"background"`
}

// LaneConfig configures a single lane.
type LaneConfig struct {
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	Description   string `mapstructure:"description"`
}

// ThinkingConfig configures the thinking-level resolver.
type ThinkingConfig struct {
	DefaultLevel string `mapstructure:"default_level"`

	// Threshold floors keyed by level name. Empty maps keep the
	// resolver's built-in tables.
	ComplexityThresholds map[string]float64 `mapstructure:"complexity_thresholds"`
	ContextThresholds    map[string]float64 `mapstructure:"context_thresholds"`
}

// RecoveryConfig configures the recovery engine.
type RecoveryConfig struct {
	MaxAttempts  int    `mapstructure:"max_attempts"`
	HistoryLimit int    `mapstructure:"history_limit"`
	MaxBackoff   string `mapstructure:"max_backoff"`
}

// MaxBackoffDuration parses the backoff cap, falling back to 2m.
func (c RecoveryConfig) MaxBackoffDuration() time.Duration {
	return parseDuration(c.MaxBackoff, 2*time.Minute)
}

// CacheConfig configures the run cache.
type CacheConfig struct {
	TTL           string `mapstructure:"ttl"`
	SweepInterval string `mapstructure:"sweep_interval"`
}

// TTLDuration parses the default entry lifetime, falling back to 10m.
func (c CacheConfig) TTLDuration() time.Duration {
	return parseDuration(c.TTL, 10*time.Minute)
}

// SweepIntervalDuration parses the sweep cadence, falling back to 1m.
func (c CacheConfig) SweepIntervalDuration() time.Duration {
	return parseDuration(c.SweepInterval, time.Minute)
}

// HistoryConfig configures the sqlite outcome journal.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// StatusFileConfig configures the periodic status snapshot export.
type StatusFileConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	Interval string `mapstructure:"interval"`
}

// IntervalDuration parses the export cadence, falling back to 10s.
func (c StatusFileConfig) IntervalDuration() time.Duration {
	return parseDuration(c.Interval, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
