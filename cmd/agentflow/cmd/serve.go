package cmd

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/askorupski/agentflow/internal/api"
	"github.com/askorupski/agentflow/internal/config"
	"github.com/askorupski/agentflow/internal/diagnostics"
	"github.com/askorupski/agentflow/internal/escalate"
	"github.com/askorupski/agentflow/internal/events"
	"github.com/askorupski/agentflow/internal/history"
	"github.com/askorupski/agentflow/internal/lane"
	"github.com/askorupski/agentflow/internal/logging"
	"github.com/askorupski/agentflow/internal/recovery"
	"github.com/askorupski/agentflow/internal/runcache"
	"github.com/askorupski/agentflow/internal/statusfile"
	"github.com/askorupski/agentflow/internal/thinking"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control plane with its observability API",
	Long: `Start the lane scheduler, recovery engine, thinking resolver,
escalation analyzer, and run cache, and expose them over the HTTP
observability API.

Examples:
  # Start with defaults (127.0.0.1:8095)
  agentflow serve

  # Bind to a different address
  agentflow serve --addr 0.0.0.0:9000`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := logging.New(logging.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stdout,
	})

	loader := config.NewLoaderWithViper(viper.GetViper())
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

	bus := events.New(256)
	defer bus.Close()

	scheduler := lane.NewScheduler(bus, logger, lane.WithLaneConfigs(laneConfigs(cfg)))

	resolver := thinking.NewResolver(bus, logger)
	applyThresholds(resolver, thinking.ThresholdComplexity, cfg.Thinking.ComplexityThresholds)
	applyThresholds(resolver, thinking.ThresholdContext, cfg.Thinking.ContextThresholds)

	analyzer := escalate.NewAnalyzer(resolver, escalate.NewHeuristicAnalyzer(), bus, logger)

	engine := recovery.NewEngine(bus, logger,
		recovery.WithMaxAttempts(cfg.Recovery.MaxAttempts),
		recovery.WithHistoryLimit(cfg.Recovery.HistoryLimit),
		recovery.WithMaxBackoff(cfg.Recovery.MaxBackoffDuration()),
	)

	cache := runcache.New(bus, logger,
		runcache.WithDefaultTTL(cfg.Cache.TTLDuration()),
		runcache.WithSweepInterval(cfg.Cache.SweepIntervalDuration()),
	)
	defer cache.Close()

	apiOpts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithRequestTimeout(cfg.Server.TimeoutDuration()),
		api.WithCollector(diagnostics.NewCollector()),
	}

	if cfg.History.Enabled {
		journal, jerr := history.NewJournal(cfg.History.Path)
		if jerr != nil {
			return jerr
		}
		defer journal.Close()

		recorder := history.NewRecorder(journal, bus, logger)
		defer recorder.Close()

		apiOpts = append(apiOpts, api.WithJournal(journal))
		logger.Info("history journal enabled", "path", cfg.History.Path)
	}

	if cfg.StatusFile.Enabled {
		exporter := statusfile.NewExporter(cfg.StatusFile.Path, cfg.StatusFile.IntervalDuration(), func() statusfile.Status {
			return statusfile.Status{
				Lanes:      scheduler.Stats(),
				Recovery:   engine.GetStats(),
				Thinking:   resolver.GetStats(),
				Escalation: analyzer.GetStats(),
				Cache:      cache.GetStats(),
			}
		}, logger)
		go exporter.Run()
		defer exporter.Close()
		logger.Info("status file export enabled", "path", cfg.StatusFile.Path)
	}

	// Hot-reload lane capacities when the config file changes.
	if path := loader.ConfigFile(); path != "" {
		watcher, werr := config.NewWatcher(path, logger, func(next *config.Config) {
			for name, lc := range laneConfigs(next) {
				if uerr := scheduler.UpdateLaneConfig(name, lc.MaxConcurrent); uerr != nil {
					logger.Warn("lane reconfigure rejected", "lane", string(name), "error", uerr)
				}
			}
		})
		if werr != nil {
			logger.Warn("config watch unavailable", "error", werr)
		} else {
			defer watcher.Close()
		}
	}

	server := api.NewServer(scheduler, engine, resolver, analyzer, cache, bus, apiOpts...)

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = server.ListenAndServe(ctx, addr)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("server stopped")
		return nil
	}
	return err
}

// laneConfigs maps the config file's lane section onto scheduler lane
// configs, keeping the fixed priority ordering.
func laneConfigs(cfg *config.Config) map[lane.Name]lane.Config {
	defaults := lane.DefaultConfigs()
	out := make(map[lane.Name]lane.Config, len(defaults))
	for name, def := range defaults {
		out[name] = def
	}

	apply := func(name lane.Name, lc config.LaneConfig) {
		entry := out[name]
		if lc.MaxConcurrent > 0 {
			entry.MaxConcurrent = lc.MaxConcurrent
		}
		if lc.Description != "" {
			entry.Description = lc.Description
		}
		out[name] = entry
	}
	apply(lane.Critical, cfg.Lanes.Critical)
	apply(lane.Standard, cfg.Lanes.Standard)
	apply(lane.Background, cfg.Lanes.Background)
	return out
}

func applyThresholds(resolver *thinking.Resolver, kind thinking.ThresholdKind, floors map[string]float64) {
	if len(floors) == 0 {
		return
	}
	typed := make(map[thinking.Level]float64, len(floors))
	for name, floor := range floors {
		typed[thinking.Level(name)] = floor
	}
	resolver.UpdateThresholds(kind, typed)
}
