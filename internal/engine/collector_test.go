package engine

import (
	"context"
	"testing"
	"time"

	"github.com/leadstack/optimizer-engine/internal/adapters"
	"github.com/leadstack/optimizer-engine/internal/models"
)

func TestCollectIsolatesFailingAdapter(t *testing.T) {
	registry := adapters.NewRegistry()
	healthy := &fakeAdapter{
		name: models.ComponentPerformance,
		snapshot: models.AdapterSnapshot{
			Component:   models.ComponentPerformance,
			Performance: &models.PerformanceStats{AvgResponseTimeMs: 200},
		},
	}
	failing := &fakeAdapter{name: models.ComponentCache, snapshotErr: errUnavailable}
	if err := registry.Register(healthy); err != nil {
		t.Fatalf("register healthy: %v", err)
	}
	if err := registry.Register(failing); err != nil {
		t.Fatalf("register failing: %v", err)
	}

	collector := NewCollector(nil, registry, time.Second)
	snapshots := collector.Collect(context.Background())

	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	if _, ok := snapshots[models.ComponentPerformance]; !ok {
		t.Fatalf("healthy adapter snapshot missing")
	}
	if _, ok := snapshots[models.ComponentCache]; ok {
		t.Fatalf("failing adapter should be absent, not present with zero value")
	}
}

func TestCollectEmptyRegistry(t *testing.T) {
	collector := NewCollector(nil, adapters.NewRegistry(), time.Second)
	snapshots := collector.Collect(context.Background())
	if len(snapshots) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(snapshots))
	}
}
