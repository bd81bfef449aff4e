package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/angeloszaimis/resilience/config"
	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/healthcheck"
	"github.com/angeloszaimis/resilience/internal/httpserver"
	"github.com/angeloszaimis/resilience/internal/resilience"
	"github.com/angeloszaimis/resilience/internal/store"
)

const defaultReviewQueue = 100

func circuitSettings(cfg *config.Config) (circuitbreaker.Settings, map[string]circuitbreaker.Settings, error) {
	defaults, err := cfg.DefaultSettings()
	if err != nil {
		return circuitbreaker.Settings{}, nil, err
	}

	overrides, err := cfg.ServiceSettings()
	if err != nil {
		return circuitbreaker.Settings{}, nil, err
	}

	return defaults, overrides, nil
}

// serviceNames lists the configured services in a stable order.
func serviceNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Resilience.Services))
	for name := range cfg.Resilience.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func initializeProbes(cfg *config.Config) ([]healthcheck.Target, error) {
	var targets []healthcheck.Target

	for _, name := range serviceNames(cfg) {
		svc := cfg.Resilience.Services[name]
		if svc.HealthURL == "" {
			continue
		}

		interval, err := time.ParseDuration(svc.HealthInterval)
		if err != nil {
			return nil, fmt.Errorf("resilience.services.%s.health_interval: %w", name, err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("resilience.services.%s.health_interval must be positive", name)
		}

		targets = append(targets, healthcheck.Target{
			Service:  name,
			URL:      svc.HealthURL,
			Interval: interval,
		})
	}

	return targets, nil
}

// createStore returns nil when persistence is disabled.
func createStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (resilience.Store, error) {
	switch cfg.Persistence.Backend {
	case config.BackendNone:
		log.Info("Snapshot persistence disabled")
		return nil, nil
	case config.BackendRedis:
		ttl, err := parseOptional(cfg.Persistence.Redis.TTL)
		if err != nil {
			return nil, fmt.Errorf("persistence.redis.ttl: %w", err)
		}
		client, err := store.NewRedisClient(ctx, store.RedisOptions{
			Addr:     cfg.Persistence.Redis.Address,
			Password: cfg.Persistence.Redis.Password,
			DB:       cfg.Persistence.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Persisting snapshots to redis", slog.String("address", cfg.Persistence.Redis.Address))
		return store.NewRedis(client, ttl), nil
	case config.BackendMemory:
		return store.NewMemory(), nil
	default:
		log.Warn("Unknown persistence backend, defaulting to memory", slog.String("requested", cfg.Persistence.Backend))
		return store.NewMemory(), nil
	}
}

// newReviewQueue holds calls deferred by resilience.Deferred fallbacks until
// an operator takes them through the admin API.
func newReviewQueue(cfg *config.Config) *resilience.ReviewQueue {
	size := cfg.Resilience.ReviewQueue
	if size <= 0 {
		size = defaultReviewQueue
	}
	return resilience.NewReviewQueue(size)
}

func serverTimeouts(cfg *config.Config) httpserver.Timeouts {
	var t httpserver.Timeouts
	t.Read, _ = parseOptional(cfg.Server.ReadTimeout)
	t.Write, _ = parseOptional(cfg.Server.WriteTimeout)
	t.Shutdown, _ = parseOptional(cfg.Server.ShutdownTimeout)
	return t
}

func parseOptional(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}
