package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/aggregator"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/identity"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/pattern"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/policy"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/redirect"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/config"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/server"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/storage"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/aggregate-tabs/internal/providers/bookmarks"
	"github.com/GriffinCanCode/aggregate-tabs/internal/providers/cdp"
)

// errFeedClosed stops the daemon when the browser goes away
var errFeedClosed = errors.New("browser event feed closed")

func main() {
	envFile := flag.String("env", ".env", "Optional .env file")
	optionsFile := flag.String("options", "", "Options file (overrides AGGREGATE_OPTIONS_FILE)")
	ephemeral := flag.Bool("ephemeral", false, "Keep tab and window state in memory only")
	debug := flag.Bool("debug", false, "Development logging")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *optionsFile != "" {
		cfg.Options.File = *optionsFile
	}
	if *ephemeral {
		cfg.Storage.Ephemeral = true
	}
	if *debug {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.ResolvePaths(); err != nil {
		log.Fatalf("Failed to resolve paths: %v", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	logCfg.File = cfg.Logging.File
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Daemon stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting tab aggregation daemon",
		zap.String("cdp_url", cfg.Browser.CDPURL()),
		zap.String("options_file", cfg.Options.File),
		zap.Bool("ephemeral", cfg.Storage.Ephemeral),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)
	go metrics.RunUptime(ctx)

	tracer := tracing.New("aggregate-tabs", logger)
	defer tracer.Close()

	opts, err := options.NewStore(cfg.Options.File, logger)
	if err != nil {
		return err
	}
	if cfg.Options.File != "" && cfg.Options.Watch {
		opts.Watch()
	}
	logger.SetDebug(opts.Snapshot().Debug)
	defer opts.Subscribe(options.KeyDebug, func(options.Change) {
		logger.SetDebug(opts.Snapshot().Debug)
	})()

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	browser := cdp.New(cfg.Browser.CDPURL(), logger)
	if err := browser.Connect(ctx); err != nil {
		return err
	}
	defer browser.Close()

	patterns := pattern.NewSet(opts, logger, metrics)
	defer patterns.Close()

	ids := identity.NewResolver(store, nil)
	var marks policy.Bookmarks
	if cfg.Browser.ProfileDir != "" {
		provider := bookmarks.New(cfg.Browser.ProfileDir, logger)
		logger.Info("Bookmark lookups enabled", zap.String("path", provider.Path()))
		marks = provider
	}
	pol := policy.New(patterns, ids, marks, logger).WithFailures(metrics)
	resolver := redirect.NewResolver(browser, store)

	manager := aggregator.NewManager(browser, browser, pol, resolver, opts, logger).
		WithMetrics(metrics).
		WithIdentity(ids).
		WithTracer(tracer)

	events, err := browser.Events(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := manager.Run(gctx, events); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errFeedClosed
		}
		return nil
	})
	if cfg.Server.Enabled {
		srv := server.New(cfg, server.Deps{
			Engine:   manager,
			Windows:  browser,
			Marks:    resolver,
			Options:  opts,
			Metrics:  metrics,
			Gatherer: reg,
			Tracer:   tracer,
			Logger:   logger,
		})
		g.Go(func() error { return srv.Run(gctx) })
	}
	return g.Wait()
}

func openStore(cfg *config.Config, logger *logging.Logger) (storage.Store, func(), error) {
	if cfg.Storage.Ephemeral {
		logger.Info("Using in-memory store")
		return storage.NewMemory(), func() {}, nil
	}
	db, err := storage.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	logger.Info("Opened store", zap.String("path", cfg.Storage.Path))
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}, nil
}
