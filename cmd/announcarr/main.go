package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amaumene/announcarr/internal/api"
	"github.com/amaumene/announcarr/internal/config"
	"github.com/amaumene/announcarr/internal/controllers"
	"github.com/amaumene/announcarr/internal/models"
	"github.com/amaumene/announcarr/internal/parser"
	"github.com/amaumene/announcarr/internal/scheduler"
	"github.com/amaumene/announcarr/internal/services/tracker"
	"github.com/amaumene/announcarr/internal/utils"
	"github.com/amaumene/announcarr/internal/watcher"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "announcarr",
		Short:         "Watch tracker announce logs and auto-download matching releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file")

	root.AddCommand(newProvisionCmd(), newRulesCmd())
	return root
}

// setup loads the configuration and opens the store
func setup() (*config.Config, *logrus.Logger, *models.Database, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.WithField("path", cfg.DatabaseFile).Debug("Database opened")

	return cfg, logger, db, nil
}

func run() error {
	// 1. Load configuration and open the store
	cfg, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := cfg.ValidateRun(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.WithField("sources", len(cfg.Sources)).Info("Starting Announcarr")

	// 2. Parsers, one per source module
	parsers := parser.Registry{}
	for module, t := range cfg.Trackers {
		if err := parsers.Register(module, t.PassKey, t.DownloadBase); err != nil {
			return fmt.Errorf("failed to initialize parser: %w", err)
		}
	}

	// 3. Fetch transport
	trackerClient, err := tracker.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracker client: %w", err)
	}

	// 4. Controllers
	downloadCtrl := controllers.NewDownloadController(db, trackerClient, cfg.WatchDir, logger)
	retryCtrl := controllers.NewRetryController(db, downloadCtrl, logger)
	gate, err := controllers.NewReleaseGate(db, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize release gate: %w", err)
	}
	tvMatcher, err := controllers.NewTVMatcher(db, downloadCtrl, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize TV matcher: %w", err)
	}
	genericMatcher, err := controllers.NewGenericMatcher(db, downloadCtrl, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize generic matcher: %w", err)
	}
	logger.Info("Controllers initialized")

	// 5. Pipeline
	queue := watcher.NewQueue()
	consumer := watcher.NewConsumer(queue, parsers, gate,
		[]controllers.Matcher{tvMatcher, genericMatcher}, retryCtrl,
		cfg.RetryInterval, cfg.IdleWarning, logger)
	w := watcher.New(cfg.Sources, cfg.TailPoll, queue, consumer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)

	// 6. Scheduler
	sched := scheduler.NewScheduler(w, cfg, cfg.RuleReloadSchedule, cfg.OffsetCheckpointSchedule, logger)
	if err := sched.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// 7. Optional HTTP server
	serverErrChan := make(chan error, 1)
	var server *api.Server
	if cfg.ServerPort != "" {
		server = api.NewServer(cfg, db, w.QueueDepth, logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				serverErrChan <- err
			}
		}()
	}

	// 8. Wait for a signal or a fatal pipeline error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	logger.Info("Announcarr is running")

	var runErr error
loop:
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				logger.Info("Received SIGHUP, reloading rules")
				w.RequestReload()
				continue
			}
			logger.WithField("signal", sig).Info("Received shutdown signal")
			break loop
		case <-w.Done():
			runErr = w.Wait()
			break loop
		case err := <-serverErrChan:
			runErr = err
			break loop
		}
	}

	sched.Stop()
	if err := w.Stop(); err != nil && runErr == nil {
		runErr = fmt.Errorf("pipeline stopped: %w", err)
	}
	sched.RunCheckpoint()

	cancel()
	if server != nil {
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("Announcarr stopped")
	return nil
}
