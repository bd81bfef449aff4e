package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/store"
)

// Store is the key-value collaborator snapshots are written to. Get returns
// store.ErrNotFound when key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Snapshot is the serialized form of the manager's durable state.
type Snapshot struct {
	SavedAt       time.Time                           `json:"saved_at"`
	GlobalMetrics circuitbreaker.GlobalMetrics        `json:"global_metrics"`
	Circuits      map[string]circuitbreaker.Persisted `json:"circuits"`
}

func (m *Manager) Snapshot() Snapshot {
	breakers := m.registry.Breakers()
	snap := Snapshot{
		SavedAt:       m.clock(),
		GlobalMetrics: m.global.Snapshot(),
		Circuits:      make(map[string]circuitbreaker.Persisted, len(breakers)),
	}
	for _, cb := range breakers {
		snap.Circuits[cb.Name()] = cb.Export()
	}
	return snap
}

// Save writes the current snapshot under key.
func (m *Manager) Save(ctx context.Context, s Store, key string) error {
	snap := m.Snapshot()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.Put(ctx, key, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	m.logger.Info("Snapshot saved",
		slog.String("key", key),
		slog.Int("circuits", len(snap.Circuits)))
	return nil
}

// Restore loads the snapshot under key and merges it into the manager.
// Circuits named in the snapshot are created if needed and take over the
// persisted state; circuits not in the snapshot are left alone. A missing
// snapshot is not an error and reports false.
func (m *Manager) Restore(ctx context.Context, s Store, key string) (bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Info("No snapshot to restore", slog.String("key", key))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}

	m.Apply(snap)

	m.logger.Info("Snapshot restored",
		slog.String("key", key),
		slog.Int("circuits", len(snap.Circuits)),
		slog.Time("saved_at", snap.SavedAt))
	return true, nil
}

// Apply merges snap into the manager.
func (m *Manager) Apply(snap Snapshot) {
	m.global.Load(snap.GlobalMetrics)
	for name, persisted := range snap.Circuits {
		if name == "" {
			continue
		}
		m.circuit(name).Restore(persisted)
	}
}
