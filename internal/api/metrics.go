package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DigiLync/digilync/internal/models"
	"github.com/DigiLync/digilync/internal/store"
)

// MetricsSnapshot caches the public platform counters between refreshes.
type MetricsSnapshot struct {
	st      store.MetricsStore
	mu      sync.RWMutex
	current *models.PublicMetrics
}

// NewMetricsSnapshot returns an empty snapshot over st.
func NewMetricsSnapshot(st store.MetricsStore) *MetricsSnapshot {
	return &MetricsSnapshot{st: st}
}

// Refresh recomputes the counters. On failure the previous snapshot is kept.
func (m *MetricsSnapshot) Refresh(ctx context.Context) error {
	metrics, err := m.st.ComputePublicMetrics(ctx)
	if err != nil {
		slog.Error("MetricsSnapshot.Refresh: compute failed", "error", err)
		return err
	}
	m.mu.Lock()
	m.current = &metrics
	m.mu.Unlock()
	slog.Debug("MetricsSnapshot.Refresh: snapshot updated", "farms", metrics.FarmsOnboarded, "providers", metrics.ServiceProvidersRegistered)
	return nil
}

// Get returns the cached snapshot, computing one first if none exists.
func (m *MetricsSnapshot) Get(ctx context.Context) (models.PublicMetrics, error) {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()
	if current != nil {
		return *current, nil
	}
	if err := m.Refresh(ctx); err != nil {
		return models.PublicMetrics{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.current, nil
}
