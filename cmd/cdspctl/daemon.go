package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/daemon"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/infra"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/policy"
)

var (
	daemonReplay   bool
	daemonDetector string
	daemonEngine   string
	daemonLogLevel string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the autoswitch loop in the foreground",
	Long: `Runs the autoswitch daemon. Normally started by the systemd unit
installed with 'cdspctl service install'.

Settings come from CDSP_* environment variables; flags override them.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonReplay, "replay", false, "Rebuild executor state from the journal before the first tick")
	daemonCmd.Flags().StringVar(&daemonDetector, "detector", "", "Activity detector: process, pulse or edge")
	daemonCmd.Flags().StringVar(&daemonEngine, "engine", "", "Engine: camilladsp or none")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(daemonCmd)
}

// daemonConfig merges environment and flags.
func daemonConfig(cmd *cobra.Command) (daemon.Config, error) {
	cfg, err := daemon.ConfigFromEnv(daemon.DefaultConfig())
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("replay") {
		cfg.Replay = daemonReplay
	}
	if daemonDetector != "" {
		cfg.Detector = daemonDetector
	}
	if daemonEngine != "" {
		cfg.Engine = daemonEngine
	}
	if daemonLogLevel != "" {
		cfg.LogLevel = daemonLogLevel
	}
	return cfg, cfg.Validate()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := daemonConfig(cmd)
	if err != nil {
		return err
	}

	paths := infra.DetectPaths()
	logger := createLogger(paths, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting cdsp-autoswitch",
		zap.String("version", Version),
		zap.String("mode", paths.Mode.String()),
		zap.String("state_file", paths.StateFile))

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	state := infra.NewFileStateStore(paths.StateFile, logger)
	applier, err := infra.SelectApplier(cfg.Engine, cfg.Camilla, logger)
	if err != nil {
		return err
	}

	pipeline, err := daemon.Bootstrap(ctx, cfg, daemon.Deps{
		Mapping:   policy.LoadMappingWithFallback(paths.MappingFile, logger),
		Validator: infra.NewYAMLValidator(),
		Applier:   applier,
		Resolver:  infra.NewYAMLResolver(paths.ProfilesDir, state),
		Processes: infra.NewProcessManager(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer pipeline.Close()

	journal := openJournal(ctx, cfg, paths, logger)
	if journal != nil {
		defer journal.Close()
		if cfg.Replay {
			if _, err := daemon.Replay(ctx, pipeline, journal, logger); err != nil {
				logger.Warn("journal replay failed, starting fresh", zap.Error(err))
				pipeline.Executor.Reset()
			}
		}
		if err := journal.Attach(ctx, pipeline.Bus); err != nil {
			return err
		}
	}

	autoswitch := daemon.NewAutoswitch(cfg, pipeline, state, logger)

	watcher, err := infra.NewStateWatcher(paths.StateFile, logger)
	if err != nil {
		logger.Warn("state file watch unavailable, relying on polling", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		watcher.Stop()
		logger.Warn("state file watch unavailable, relying on polling", zap.Error(err))
	} else {
		defer watcher.Stop()
		autoswitch.WatchState(watcher.Changes())
	}

	if err := autoswitch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openJournal opens the event journal. A journal that cannot be opened
// disables recording; the daemon still runs.
func openJournal(ctx context.Context, cfg daemon.Config, paths *infra.Paths, logger *zap.Logger) *infra.Journal {
	var key []byte
	if cfg.EncryptJournal {
		k, err := infra.NewFileKeyProvider(paths.StateDir).EnsureKey()
		if err != nil {
			logger.Warn("journal key unavailable, journal disabled", zap.Error(err))
			return nil
		}
		key = k
	}

	journal, err := infra.OpenJournal(paths.JournalPath, key, logger)
	if err != nil {
		logger.Warn("journal unavailable, events will not be recorded", zap.Error(err))
		return nil
	}
	if err := journal.Truncate(ctx, cfg.JournalKeep); err != nil {
		logger.Warn("journal truncate failed", zap.Error(err))
	}
	return journal
}
