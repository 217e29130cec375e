package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "AGENTFLOW",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "AGENTFLOW",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (AGENTFLOW_*)
// 3. Project config (.agentflow.yaml in current directory)
// 4. User config (~/.config/agentflow/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".agentflow")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "agentflow"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Server defaults
	l.v.SetDefault("server.enabled", true)
	l.v.SetDefault("server.addr", "127.0.0.1:8095")
	l.v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	l.v.SetDefault("server.timeout", "30s")

	// Lane defaults
	l.v.SetDefault("lanes.critical.max_concurrent", 1)
	l.v.SetDefault("lanes.critical.description", "User-facing and urgent work")
	l.v.SetDefault("lanes.standard.max_concurrent", 3)
	l.v.SetDefault("lanes.standard.description", "Regular task execution")
	l.v.SetDefault("lanes.background.max_concurrent", 2)
	l.v.SetDefault("lanes.background.description", "Low-priority generated work")

	// Thinking defaults
	l.v.SetDefault("thinking.default_level", "medium")

	// Recovery defaults
	l.v.SetDefault("recovery.max_attempts", 3)
	l.v.SetDefault("recovery.history_limit", 500)
	l.v.SetDefault("recovery.max_backoff", "2m")

	// Cache defaults
	l.v.SetDefault("cache.ttl", "10m")
	l.v.SetDefault("cache.sweep_interval", "1m")

	// History defaults
	l.v.SetDefault("history.enabled", true)
	l.v.SetDefault("history.path", ".agentflow/history.db")

	// Status file defaults
	l.v.SetDefault("status_file.enabled", false)
	l.v.SetDefault("status_file.path", ".agentflow/status.json")
	l.v.SetDefault("status_file.interval", "10s")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}
