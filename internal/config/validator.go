package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateLanes(&cfg.Lanes)
	v.validateThinking(&cfg.Thinking)
	v.validateRecovery(&cfg.Recovery)
	v.validateCache(&cfg.Cache)
	v.validateStatusFile(&cfg.StatusFile)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "", "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be debug, info, warn, or error")
	}
	switch cfg.Format {
	case "", "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be auto, text, or json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Enabled && cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "required when server is enabled")
	}
	v.validateDuration("server.timeout", cfg.Timeout)
}

func (v *Validator) validateLanes(cfg *LanesConfig) {
	lanes := map[string]LaneConfig{
		"lanes.critical":   cfg.Critical,
		"lanes.standard":   cfg.Standard,
		"lanes.background": cfg.Background,
	}
	for field, lane := range lanes {
		if lane.MaxConcurrent < 1 {
			v.addError(field+".max_concurrent", lane.MaxConcurrent, "must be at least 1")
		}
	}
}

func (v *Validator) validateThinking(cfg *ThinkingConfig) {
	switch cfg.DefaultLevel {
	case "", "off", "minimal", "low", "medium", "high", "xhigh":
	default:
		v.addError("thinking.default_level", cfg.DefaultLevel, "unknown thinking level")
	}
	for name, floor := range cfg.ComplexityThresholds {
		if floor < 0 || floor > 1 {
			v.addError("thinking.complexity_thresholds."+name, floor, "must be in [0,1]")
		}
	}
	for name, floor := range cfg.ContextThresholds {
		if floor < 0 {
			v.addError("thinking.context_thresholds."+name, floor, "must be non-negative")
		}
	}
}

func (v *Validator) validateRecovery(cfg *RecoveryConfig) {
	if cfg.MaxAttempts < 1 {
		v.addError("recovery.max_attempts", cfg.MaxAttempts, "must be at least 1")
	}
	if cfg.HistoryLimit < 1 {
		v.addError("recovery.history_limit", cfg.HistoryLimit, "must be at least 1")
	}
	v.validateDuration("recovery.max_backoff", cfg.MaxBackoff)
}

func (v *Validator) validateCache(cfg *CacheConfig) {
	v.validateDuration("cache.ttl", cfg.TTL)
	v.validateDuration("cache.sweep_interval", cfg.SweepInterval)
}

func (v *Validator) validateStatusFile(cfg *StatusFileConfig) {
	if cfg.Enabled && cfg.Path == "" {
		v.addError("status_file.path", cfg.Path, "required when status file is enabled")
	}
	v.validateDuration("status_file.interval", cfg.Interval)
}

func (v *Validator) validateDuration(field, value string) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration")
		return
	}
	if d <= 0 {
		v.addError(field, value, "must be positive")
	}
}
