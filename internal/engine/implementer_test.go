package engine

import (
	"context"
	"testing"

	"github.com/leadstack/optimizer-engine/internal/adapters"
	"github.com/leadstack/optimizer-engine/internal/models"
)

func TestImplementMarksSuccessfulCommands(t *testing.T) {
	registry := adapters.NewRegistry()
	db := &fakeAdapter{name: models.ComponentDatabase}
	if err := registry.Register(db); err != nil {
		t.Fatalf("register: %v", err)
	}

	recs := []models.Recommendation{
		{
			RuleID:    "db-slow-queries",
			Category:  models.CategoryDatabase,
			Status:    models.RecommendationPending,
			Automated: true,
			Action:    &models.AutomationAction{Type: models.ActionOptimizeDatabase, Target: models.ComponentDatabase},
		},
		{
			RuleID:   "db-pool-pressure",
			Category: models.CategoryDatabase,
			Status:   models.RecommendationPending,
			// Not automated: must be left untouched.
		},
	}

	implemented := NewImplementer(nil, registry).Implement(context.Background(), recs)
	if implemented != 1 {
		t.Fatalf("implemented count: got %d, want 1", implemented)
	}
	if recs[0].Status != models.RecommendationImplemented {
		t.Fatalf("automated recommendation status: got %s", recs[0].Status)
	}
	if recs[1].Status != models.RecommendationPending {
		t.Fatalf("manual recommendation status: got %s", recs[1].Status)
	}
	if len(db.commandLog()) != 1 {
		t.Fatalf("command count: got %d", len(db.commandLog()))
	}
}

func TestImplementFailureLeavesPending(t *testing.T) {
	registry := adapters.NewRegistry()
	cacheAdapter := &fakeAdapter{name: models.ComponentCache, commandFail: true}
	if err := registry.Register(cacheAdapter); err != nil {
		t.Fatalf("register: %v", err)
	}

	recs := []models.Recommendation{{
		RuleID:    "cache-hit-rate",
		Category:  models.CategoryCache,
		Status:    models.RecommendationPending,
		Automated: true,
		Action:    &models.AutomationAction{Type: models.ActionClearCache, Target: models.ComponentCache},
	}}

	implemented := NewImplementer(nil, registry).Implement(context.Background(), recs)
	if implemented != 0 {
		t.Fatalf("implemented count: got %d, want 0", implemented)
	}
	if recs[0].Status != models.RecommendationPending {
		t.Fatalf("failed recommendation should stay pending, got %s", recs[0].Status)
	}
}

func TestImplementMissingAdapterSkips(t *testing.T) {
	recs := []models.Recommendation{{
		RuleID:    "cache-hit-rate",
		Category:  models.CategoryCache,
		Status:    models.RecommendationPending,
		Automated: true,
		Action:    &models.AutomationAction{Type: models.ActionClearCache, Target: models.ComponentCache},
	}}
	implemented := NewImplementer(nil, adapters.NewRegistry()).Implement(context.Background(), recs)
	if implemented != 0 {
		t.Fatalf("implemented count without adapter: got %d", implemented)
	}
}

func TestAdapterForCategory(t *testing.T) {
	cases := map[models.Category]string{
		models.CategoryDatabase:       models.ComponentDatabase,
		models.CategoryCache:          models.ComponentCache,
		models.CategoryInfrastructure: models.ComponentLoadBalancer,
		models.CategoryApplication:    models.ComponentPerformance,
		models.CategoryMonitoring:     models.ComponentPerformance,
	}
	for category, want := range cases {
		if got := AdapterForCategory(category); got != want {
			t.Fatalf("category %s: got %s, want %s", category, got, want)
		}
	}
}
