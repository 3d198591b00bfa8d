// Package connectivity tracks whether the scan classifier is reachable.
package connectivity

import (
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/spray-advisory/internal/observability"
)

// Monitor holds the current online state. Going from offline to online
// signals Reconnected so the offline queue can be drained.
type Monitor struct {
	online      atomic.Bool
	reconnected chan struct{}
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewMonitor creates a Monitor in the given initial state.
func NewMonitor(initial bool, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	m := &Monitor{
		reconnected: make(chan struct{}, 1),
		logger:      logger,
		metrics:     metrics,
	}
	m.online.Store(initial)
	m.setGauge(initial)
	return m
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline records a new state. Repeated reports of the same state are
// no-ops.
func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	m.setGauge(online)
	if !online {
		m.logger.Warn("classifier went offline")
		return
	}
	m.logger.Info("classifier back online")
	// Coalesce: one pending signal is enough to trigger a drain.
	select {
	case m.reconnected <- struct{}{}:
	default:
	}
}

// Reconnected delivers a value after each offline to online transition.
func (m *Monitor) Reconnected() <-chan struct{} {
	return m.reconnected
}

func (m *Monitor) setGauge(online bool) {
	if online {
		m.metrics.Online.Set(1)
	} else {
		m.metrics.Online.Set(0)
	}
}
