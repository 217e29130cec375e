package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/askorupski/agentflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage agentflow configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a .agentflow.yaml with the default configuration to the
current directory, along with the .agentflow data directory.`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runConfigValidate,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false,
		"Overwrite existing configuration")
}

// defaultConfigDoc mirrors config.Config with yaml tags so the rendered
// file keys match what the loader reads back.
type defaultConfigDoc struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Server struct {
		Enabled     bool     `yaml:"enabled"`
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
		Timeout     string   `yaml:"timeout"`
	} `yaml:"server"`
	Lanes map[string]struct {
		MaxConcurrent int `yaml:"max_concurrent"`
	} `yaml:"lanes"`
	Thinking struct {
		DefaultLevel string `yaml:"default_level"`
	} `yaml:"thinking"`
	Recovery struct {
		MaxAttempts  int    `yaml:"max_attempts"`
		HistoryLimit int    `yaml:"history_limit"`
		MaxBackoff   string `yaml:"max_backoff"`
	} `yaml:"recovery"`
	Cache struct {
		TTL           string `yaml:"ttl"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"cache"`
	History struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"history"`
	StatusFile struct {
		Enabled  bool   `yaml:"enabled"`
		Path     string `yaml:"path"`
		Interval string `yaml:"interval"`
	} `yaml:"status_file"`
}

func renderDefaultConfig() ([]byte, error) {
	var doc defaultConfigDoc
	doc.Log.Level = "info"
	doc.Log.Format = "auto"
	doc.Server.Enabled = true
	doc.Server.Addr = "127.0.0.1:8095"
	doc.Server.CORSOrigins = []string{"http://localhost:5173"}
	doc.Server.Timeout = "30s"
	doc.Lanes = map[string]struct {
		MaxConcurrent int `yaml:"max_concurrent"`
	}{
		"critical":   {MaxConcurrent: 1},
		"standard":   {MaxConcurrent: 3},
		"background": {MaxConcurrent: 2},
	}
	doc.Thinking.DefaultLevel = "medium"
	doc.Recovery.MaxAttempts = 3
	doc.Recovery.HistoryLimit = 500
	doc.Recovery.MaxBackoff = "2m"
	doc.Cache.TTL = "10m"
	doc.Cache.SweepInterval = "1m"
	doc.History.Enabled = true
	doc.History.Path = ".agentflow/history.db"
	doc.StatusFile.Enabled = true
	doc.StatusFile.Path = ".agentflow/status.json"
	doc.StatusFile.Interval = "10s"

	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	header := "# agentflow configuration\n# Values can be overridden with AGENTFLOW_* environment variables.\n\n"
	return append([]byte(header), body...), nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	configPath := filepath.Join(cwd, ".agentflow.yaml")
	if _, err := os.Stat(configPath); err == nil && !configInitForce {
		return fmt.Errorf("configuration already exists, use --force to overwrite")
	}

	content, err := renderDefaultConfig()
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}
	if err := os.WriteFile(configPath, content, 0o644); err != nil { //nolint:gosec // Config file needs to be readable
		return fmt.Errorf("writing config: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(cwd, ".agentflow"), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Println("Initialized agentflow configuration in", cwd)
	fmt.Println("Configuration file: .agentflow.yaml")
	return nil
}

func runConfigValidate(_ *cobra.Command, _ []string) error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return err
	}

	if file := loader.ConfigFile(); file != "" {
		fmt.Println("Configuration valid:", file)
	} else {
		fmt.Println("Configuration valid (defaults only)")
	}
	return nil
}
