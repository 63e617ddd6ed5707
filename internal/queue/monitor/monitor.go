// Package monitor periodically samples per-queue depth and publishes it as a
// prometheus gauge. Lease expiry needs no background sweep in this design
// (receive reclaims expired leases lazily), so the background loop only
// observes.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/rowqueue/rowq/internal/metrics"
	"github.com/rowqueue/rowq/internal/queue/store"
)

type Monitor struct {
	store    store.Store
	interval time.Duration
	log      *slog.Logger
	stopCh   chan struct{}
}

func New(s store.Store, interval time.Duration, log *slog.Logger) *Monitor {
	return &Monitor{
		store:    s,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start blocks, sampling queue depths every interval until the context is
// cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info("depth monitor started", "interval", m.interval)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("depth monitor stopped", "reason", "context cancelled")
			return

		case <-m.stopCh:
			m.log.Info("depth monitor stopped", "reason", "stop signal")
			return

		case <-ticker.C:
			if err := m.sample(ctx); err != nil {
				metrics.MonitorErrors.Inc()
				m.log.Error("depth sample failed", "error", err)
			}
		}
	}
}

func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) sample(ctx context.Context) error {
	names, err := m.store.Queues(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		n, err := m.store.Count(ctx, name)
		if err != nil {
			// Queue may vanish between list and count; skip it.
			continue
		}
		metrics.QueueDepth.WithLabelValues(name).Set(float64(n))
	}
	return nil
}
