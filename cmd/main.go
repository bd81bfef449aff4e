package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/angeloszaimis/resilience/config"
	"github.com/angeloszaimis/resilience/internal/events"
	"github.com/angeloszaimis/resilience/internal/handler"
	"github.com/angeloszaimis/resilience/internal/healthcheck"
	"github.com/angeloszaimis/resilience/internal/httpserver"
	"github.com/angeloszaimis/resilience/internal/metrics"
	"github.com/angeloszaimis/resilience/internal/resilience"
	"github.com/angeloszaimis/resilience/pkg/logger"
)

func main() {
	if err := start(); err != nil {
		os.Exit(1)
	}
}

// start returns instead of exiting so deferred cleanup such as closing the
// log file runs before the process ends.
func start() error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		return err
	}

	var logOpts []logger.Option
	if cfg.Logging.File != "" {
		file := logger.NewRotatingFile(logger.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
		defer file.Close()
		logOpts = append(logOpts, logger.WithWriter(file))
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment, logOpts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Resilience manager stopped with error", slog.Any("err", err))
		return err
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	defaults, overrides, err := circuitSettings(cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.Metrics.EventBuffer, log)

	manager := resilience.NewManager(defaults,
		resilience.WithLogger(log),
		resilience.WithPublisher(bus),
		resilience.WithServiceSettings(overrides),
	)

	snapshots, err := createStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	if snapshots != nil {
		if _, err := manager.Restore(ctx, snapshots, cfg.Persistence.Key); err != nil {
			log.Warn("Failed to restore snapshot, starting fresh", slog.Any("err", err))
		}
	}

	manager.Preload(serviceNames(cfg)...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Metrics.Prometheus {
		exporter, err := metrics.NewExporter(registry)
		if err != nil {
			return fmt.Errorf("register prometheus exporter: %w", err)
		}
		bus.Subscribe(exporter)
	}
	if err := metrics.RegisterDroppedEvents(registry, bus.Dropped); err != nil {
		return fmt.Errorf("register dropped events metric: %w", err)
	}
	bus.Start(ctx)

	interval, err := time.ParseDuration(cfg.Metrics.Interval)
	if err != nil {
		return fmt.Errorf("metrics.interval: %w", err)
	}
	sampler := metrics.NewSampler(manager, bus, interval, log)
	sampler.Start(ctx)

	targets, err := initializeProbes(cfg)
	if err != nil {
		return err
	}
	prober := healthcheck.NewProber(manager, nil, log)
	prober.Start(ctx, targets)

	var scheduler *cron.Cron
	if snapshots != nil && cfg.Persistence.Checkpoint != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Persistence.Checkpoint, func() {
			if err := manager.Save(ctx, snapshots, cfg.Persistence.Key); err != nil {
				log.Error("Checkpoint failed", slog.Any("err", err))
			}
		})
		if err != nil {
			return fmt.Errorf("persistence.checkpoint: %w", err)
		}
		scheduler.Start()
	}

	admin := handler.NewAdminHandler(log, manager, handler.WithReviews(newReviewQueue(cfg)))
	srv, err := httpserver.New(cfg.Server.Address, setupRouter(admin, sampler, registry), serverTimeouts(cfg))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Resilience manager started",
		slog.String("address", cfg.Server.Address),
		slog.Int("circuits", len(manager.Services())),
		slog.Int("probes", len(targets)))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			runErr = fmt.Errorf("admin server: %w", err)
		}
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	prober.Wait()

	if snapshots != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := manager.Save(saveCtx, snapshots, cfg.Persistence.Key); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("save snapshot: %w", err))
		}
	}

	return runErr
}
