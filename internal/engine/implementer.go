package engine

import (
	"context"
	"log/slog"

	"github.com/leadstack/optimizer-engine/internal/adapters"
	"github.com/leadstack/optimizer-engine/internal/metrics"
	"github.com/leadstack/optimizer-engine/internal/models"
)

// Implementer executes the recommendations flagged for automation. It is the
// write-capability boundary: apart from rule-engine action dispatch, no other
// component issues adapter commands.
type Implementer struct {
	logger   *slog.Logger
	registry *adapters.Registry
}

// NewImplementer constructs an Implementer.
func NewImplementer(logger *slog.Logger, registry *adapters.Registry) *Implementer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Implementer{logger: logger, registry: registry}
}

// Implement dispatches every pending automated recommendation to the adapter
// owning its category and marks it implemented on success. Failures leave the
// recommendation pending; retries are the next cycle's concern. Returns the
// number implemented.
func (im *Implementer) Implement(ctx context.Context, recs []models.Recommendation) int {
	implemented := 0
	for i := range recs {
		rec := &recs[i]
		if !rec.Automated || rec.Status != models.RecommendationPending {
			continue
		}
		if rec.Action == nil {
			im.logger.Warn("automated recommendation without an action",
				slog.String("rule", rec.RuleID))
			continue
		}

		adapterName := AdapterForCategory(rec.Category)
		adapter, ok := im.registry.Get(adapterName)
		if !ok {
			im.logger.Warn("no adapter registered for recommendation category",
				slog.String("rule", rec.RuleID),
				slog.String("category", string(rec.Category)))
			continue
		}

		result, err := adapter.Command(ctx, *rec.Action)
		if err != nil {
			metrics.ObserveAdapterFailure(adapterName, "command")
			im.logger.Warn("recommendation command failed",
				slog.String("rule", rec.RuleID),
				slog.String("adapter", adapterName),
				slog.Any("error", err))
			continue
		}
		if !result.Success {
			metrics.ObserveAdapterFailure(adapterName, "command")
			im.logger.Warn("recommendation command rejected",
				slog.String("rule", rec.RuleID),
				slog.String("adapter", adapterName),
				slog.String("detail", result.Detail))
			continue
		}

		rec.Status = models.RecommendationImplemented
		implemented++
		im.logger.Info("recommendation auto-implemented",
			slog.String("rule", rec.RuleID),
			slog.String("adapter", adapterName),
			slog.String("action", string(rec.Action.Type)))
	}
	return implemented
}

// AdapterForCategory maps a recommendation category to the adapter that owns
// its command surface.
func AdapterForCategory(category models.Category) string {
	switch category {
	case models.CategoryDatabase:
		return models.ComponentDatabase
	case models.CategoryCache:
		return models.ComponentCache
	case models.CategoryInfrastructure:
		return models.ComponentLoadBalancer
	default:
		return models.ComponentPerformance
	}
}
