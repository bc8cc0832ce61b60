package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadstack/optimizer-engine/internal/adapters"
	"github.com/leadstack/optimizer-engine/internal/metrics"
	"github.com/leadstack/optimizer-engine/internal/models"
)

// Collector gathers one snapshot from every registered adapter. Each adapter
// call runs inside its own failure boundary: a failing or slow adapter is
// recorded as an absent entry so downstream scoring can tell "no data" from
// "healthy", and never aborts collection from the others.
type Collector struct {
	logger   *slog.Logger
	registry *adapters.Registry
	timeout  time.Duration
}

// NewCollector constructs a Collector with a per-adapter call timeout.
func NewCollector(logger *slog.Logger, registry *adapters.Registry, timeout time.Duration) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Collector{logger: logger, registry: registry, timeout: timeout}
}

// Collect snapshots all registered adapters. Adapters that fail are omitted
// from the result map.
func (c *Collector) Collect(ctx context.Context) map[string]models.AdapterSnapshot {
	snapshots := make(map[string]models.AdapterSnapshot, c.registry.Len())

	for _, name := range c.registry.Names() {
		adapter, ok := c.registry.Get(name)
		if !ok {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		snapshot, err := adapter.Snapshot(callCtx)
		cancel()
		if err != nil {
			metrics.ObserveAdapterFailure(name, "snapshot")
			c.logger.Warn("adapter snapshot failed",
				slog.String("adapter", name),
				slog.Any("error", err))
			continue
		}
		snapshots[name] = snapshot
	}

	return snapshots
}
