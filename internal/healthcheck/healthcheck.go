package healthcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/angeloszaimis/resilience/internal/resilience"
)

// Executor runs a call under a service's circuit. *resilience.Manager
// satisfies it.
type Executor interface {
	Execute(ctx context.Context, service string, op resilience.Operation, fb resilience.Fallback) (any, error)
}

// Target is a service probed with GET URL every Interval.
type Target struct {
	Service  string
	URL      string
	Interval time.Duration
}

// Prober sends health requests through the circuit of the service they
// belong to, so an idle open circuit still gets half-open trials.
type Prober struct {
	executor Executor
	client   *http.Client
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewProber(executor Executor, client *http.Client, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{
			Timeout: 5 * time.Second,
		}
	}
	return &Prober{executor: executor, client: client, logger: logger}
}

// Start probes every target in its own goroutine until ctx is cancelled.
func (p *Prober) Start(ctx context.Context, targets []Target) {
	for _, t := range targets {
		p.wg.Add(1)
		go func(t Target) {
			defer p.wg.Done()
			p.Run(ctx, t)
		}(t)
	}
}

// Wait blocks until every probe started by Start has stopped.
func (p *Prober) Wait() {
	p.wg.Wait()
}

// Run probes t until ctx is cancelled.
func (p *Prober) Run(ctx context.Context, t Target) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	healthy := true

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Health check stopped",
				slog.String("service", t.Service))
			return

		case <-ticker.C:
			err := p.Check(ctx, t)
			if ctx.Err() != nil {
				continue
			}

			if err == nil && !healthy {
				p.logger.Info("Service is back up",
					slog.String("service", t.Service))
			} else if err != nil && healthy {
				p.logger.Warn("Service is down",
					slog.String("service", t.Service),
					slog.String("error", err.Error()))
			}
			healthy = err == nil
		}
	}
}

// Check sends a single health request through the service's circuit. A
// rejected call returns the circuit error without touching the network.
func (p *Prober) Check(ctx context.Context, t Target) error {
	_, err := p.executor.Execute(ctx, t.Service, func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
		if err != nil {
			return nil, err
		}

		res, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		_, _ = io.Copy(io.Discard, res.Body)

		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, fmt.Errorf("health check returned status %d", res.StatusCode)
		}
		return res.StatusCode, nil
	}, nil)
	return err
}
