package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/leadstack/optimizer-engine/internal/config"
	"github.com/leadstack/optimizer-engine/internal/models"
)

// Generator turns snapshots and analyzer output into a ranked, deduplicated
// recommendation list. Each generation rule is keyed by a stable identity and
// emits at most one recommendation per cycle, so identical snapshots always
// yield identical content (only the IDs differ between runs).
type Generator struct{}

// NewGenerator constructs a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate evaluates the fixed rule set against the snapshots. The result is
// stably sorted critical > high > medium > low with ties kept in insertion
// order.
func (g *Generator) Generate(snapshots map[string]models.AdapterSnapshot, analysis models.Analysis, thresholds config.AlertThresholds) []models.Recommendation {
	now := time.Now().UTC()
	var recs []models.Recommendation
	add := func(rec models.Recommendation) {
		rec.ID = uuid.NewString()
		rec.Status = models.RecommendationPending
		rec.CreatedAt = now
		rec.Implementation.Effort = effortFor(rec.Priority)
		rec.Implementation.Timeline = timelineFor(rec.Priority)
		recs = append(recs, rec)
	}

	if db, ok := snapshots[models.ComponentDatabase]; ok && db.Database != nil {
		if n := len(db.Database.SlowQueries); n > 0 {
			priority := models.PriorityHigh
			if n > 5 {
				priority = models.PriorityCritical
			}
			add(models.Recommendation{
				RuleID:      "db-slow-queries",
				Priority:    priority,
				Category:    models.CategoryDatabase,
				Title:       "Optimize slow database queries",
				Description: fmt.Sprintf("%d slow queries detected by the database tuner", n),
				Impact:      models.Impact{Performance: "high", Cost: "low", Risk: "low"},
				Implementation: models.ImplementationPlan{
					Steps: []string{"Review slow-query plans", "Apply suggested indexes", "Re-run query analysis"},
				},
				ExpectedOutcome: "Reduced query latency on the hottest paths",
				Automated:       true,
				Action: &models.AutomationAction{
					Type:       models.ActionOptimizeDatabase,
					Target:     models.ComponentDatabase,
					Parameters: map[string]interface{}{"mode": "analyze"},
				},
			})
		}
		if db.Database.PoolUtilization > 0.85 {
			add(models.Recommendation{
				RuleID:      "db-pool-pressure",
				Priority:    models.PriorityMedium,
				Category:    models.CategoryDatabase,
				Title:       "Relieve connection pool pressure",
				Description: fmt.Sprintf("connection pool at %.0f%% utilization", db.Database.PoolUtilization*100),
				Impact:      models.Impact{Performance: "medium", Cost: "low", Risk: "medium"},
				Implementation: models.ImplementationPlan{
					Steps: []string{"Audit long-lived connections", "Raise pool ceiling or add a pooler"},
				},
				ExpectedOutcome: "Headroom for connection spikes",
			})
		}
	}

	if cacheSnap, ok := snapshots[models.ComponentCache]; ok && cacheSnap.Cache != nil {
		if cacheSnap.Cache.HitRate < 0.8 {
			add(models.Recommendation{
				RuleID:      "cache-hit-rate",
				Priority:    models.PriorityHigh,
				Category:    models.CategoryCache,
				Title:       "Improve cache hit rate",
				Description: fmt.Sprintf("cache hit rate at %.0f%%, below the 80%% target", cacheSnap.Cache.HitRate*100),
				Impact:      models.Impact{Performance: "high", Cost: "low", Risk: "low"},
				Implementation: models.ImplementationPlan{
					Steps: []string{"Drop stale entries", "Re-warm hot keys", "Review TTL policy"},
				},
				ExpectedOutcome: "Hit rate back above 80%",
				Automated:       true,
				Action: &models.AutomationAction{
					Type:       models.ActionClearCache,
					Target:     models.ComponentCache,
					Parameters: map[string]interface{}{"scope": "stale"},
				},
			})
		}
		if cacheSnap.Cache.EvictionRate > 100 {
			add(models.Recommendation{
				RuleID:      "cache-evictions",
				Priority:    models.PriorityMedium,
				Category:    models.CategoryCache,
				Title:       "Reduce cache eviction pressure",
				Description: fmt.Sprintf("%.0f evictions/min indicates the cache is undersized", cacheSnap.Cache.EvictionRate),
				Impact:      models.Impact{Performance: "medium", Cost: "medium", Risk: "low"},
				Implementation: models.ImplementationPlan{
					Steps: []string{"Size the working set", "Grow cache memory or shard"},
				},
				ExpectedOutcome: "Evictions below memory-pressure levels",
			})
		}
	}

	if perf, ok := snapshots[models.ComponentPerformance]; ok && perf.Performance != nil {
		if perf.Performance.ErrorRatePercent > thresholds.ErrorRatePercent {
			add(models.Recommendation{
				RuleID:      "app-error-rate",
				Priority:    models.PriorityCritical,
				Category:    models.CategoryApplication,
				Title:       "Investigate elevated error rate",
				Description: fmt.Sprintf("error rate %.1f%% exceeds the %.1f%% threshold", perf.Performance.ErrorRatePercent, thresholds.ErrorRatePercent),
				Impact:      models.Impact{Performance: "high", Cost: "low", Risk: "high"},
				Implementation: models.ImplementationPlan{
					Steps: []string{"Check recent deployments", "Inspect failing endpoints", "Roll back if regression confirmed"},
				},
				ExpectedOutcome: "Error rate back under threshold",
			})
		}
		if perf.Performance.AvgResponseTimeMs > thresholds.ResponseTimeMs {
			add(models.Recommendation{
				RuleID:      "app-response-time",
				Priority:    models.PriorityHigh,
				Category:    models.CategoryApplication,
				Title:       "Bring response times back under target",
				Description: fmt.Sprintf("average response time %.0fms exceeds the %.0fms threshold", perf.Performance.AvgResponseTimeMs, thresholds.ResponseTimeMs),
				Impact:      models.Impact{Performance: "high", Cost: "low", Risk: "medium"},
				Implementation: models.ImplementationPlan{
					Steps: []string{"Profile the slowest endpoints", "Check downstream latency", "Add caching where safe"},
				},
				ExpectedOutcome: "p95 latency under the configured threshold",
			})
		}
	}

	if lb, ok := snapshots[models.ComponentLoadBalancer]; ok && lb.LoadBalancer != nil {
		if lb.LoadBalancer.TotalInstances > 0 && lb.LoadBalancer.HealthyInstances < lb.LoadBalancer.TotalInstances {
			missing := lb.LoadBalancer.TotalInstances - lb.LoadBalancer.HealthyInstances
			add(models.Recommendation{
				RuleID:      "lb-unhealthy-instances",
				Priority:    models.PriorityHigh,
				Category:    models.CategoryInfrastructure,
				Title:       "Replace unhealthy backend instances",
				Description: fmt.Sprintf("%d of %d instances unhealthy", missing, lb.LoadBalancer.TotalInstances),
				Impact:      models.Impact{Performance: "high", Cost: "medium", Risk: "medium"},
				Implementation: models.ImplementationPlan{
					Steps: []string{"Scale up replacement capacity", "Drain and recycle failed instances"},
				},
				ExpectedOutcome: "Full healthy capacity restored",
				Automated:       true,
				Action: &models.AutomationAction{
					Type:       models.ActionScaleUp,
					Target:     models.ComponentLoadBalancer,
					Parameters: map[string]interface{}{"instances": missing},
				},
			})
		}
	}

	if capSnap, ok := snapshots[models.ComponentCapacity]; ok && capSnap.Capacity != nil {
		// Critical capacity issues always require human sign-off, so the
		// recommendation is never automated.
		if critical := criticalAlerts(capSnap.Capacity.Alerts); critical > 0 {
			add(models.Recommendation{
				RuleID:      "capacity-critical",
				Priority:    models.PriorityCritical,
				Category:    models.CategoryInfrastructure,
				Title:       "Address critical capacity alerts",
				Description: fmt.Sprintf("%d critical capacity alerts open", critical),
				Impact:      models.Impact{Performance: "high", Cost: "high", Risk: "high"},
				Implementation: models.ImplementationPlan{
					Steps: []string{"Review capacity forecast", "Approve and provision additional capacity"},
				},
				ExpectedOutcome: "Headroom restored before exhaustion",
				Automated:       false,
			})
		}
		if len(capSnap.Capacity.Bottlenecks) > 0 {
			add(models.Recommendation{
				RuleID:      "capacity-bottlenecks",
				Priority:    models.PriorityMedium,
				Category:    models.CategoryInfrastructure,
				Title:       "Plan around projected bottlenecks",
				Description: fmt.Sprintf("%d resource bottlenecks projected by the capacity planner", len(capSnap.Capacity.Bottlenecks)),
				Impact:      models.Impact{Performance: "medium", Cost: "medium", Risk: "medium"},
				Implementation: models.ImplementationPlan{
					Steps: []string{"Validate the projection", "Schedule capacity work"},
				},
				ExpectedOutcome: "Bottlenecks resolved before they bind",
			})
		}
	}

	if n := severeDegradations(analysis.Trends); n > 0 {
		add(models.Recommendation{
			RuleID:      "trend-degradation",
			Priority:    models.PriorityLow,
			Category:    models.CategoryMonitoring,
			Title:       "Review degrading metric trends",
			Description: fmt.Sprintf("%d metrics degrading with high significance", n),
			Impact:      models.Impact{Performance: "low", Cost: "low", Risk: "medium"},
			Implementation: models.ImplementationPlan{
				Steps: []string{"Inspect the degrading series", "Tighten alerting if sustained"},
			},
			ExpectedOutcome: "Early warning before user impact",
		})
	}

	if n := openAnomalies(snapshots); n >= 3 {
		add(models.Recommendation{
			RuleID:      "anomaly-backlog",
			Priority:    models.PriorityMedium,
			Category:    models.CategoryMonitoring,
			Title:       "Triage open anomaly backlog",
			Description: fmt.Sprintf("%d anomalies open across subsystems", n),
			Impact:      models.Impact{Performance: "low", Cost: "low", Risk: "medium"},
			Implementation: models.ImplementationPlan{
				Steps: []string{"Group anomalies by subsystem", "Close or escalate each"},
			},
			ExpectedOutcome: "Anomaly queue drained",
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() < recs[j].Priority.Rank()
	})
	return recs
}

// Per-category impact weights used for the report summary estimates. These
// are policy constants, not measured deltas.
var (
	performanceGainByCategory = map[models.Category]float64{
		models.CategoryDatabase:       15,
		models.CategoryCache:          20,
		models.CategoryInfrastructure: 10,
		models.CategoryApplication:    10,
		models.CategoryMonitoring:     2,
	}
	costSavingsByCategory = map[models.Category]float64{
		models.CategoryDatabase:       8,
		models.CategoryCache:          5,
		models.CategoryInfrastructure: 12,
		models.CategoryApplication:    3,
		models.CategoryMonitoring:     1,
	}
)

// EstimateGains sums the per-category weights over implemented
// recommendations.
func EstimateGains(recs []models.Recommendation) (performance, cost float64) {
	for _, rec := range recs {
		if rec.Status != models.RecommendationImplemented {
			continue
		}
		performance += performanceGainByCategory[rec.Category]
		cost += costSavingsByCategory[rec.Category]
	}
	return performance, cost
}

func effortFor(p models.Priority) string {
	switch p {
	case models.PriorityCritical, models.PriorityHigh:
		return "medium"
	default:
		return "low"
	}
}

func timelineFor(p models.Priority) string {
	switch p {
	case models.PriorityCritical:
		return "immediate"
	case models.PriorityHigh:
		return "this week"
	case models.PriorityMedium:
		return "this sprint"
	default:
		return "next quarter"
	}
}

func criticalAlerts(alerts []models.CapacityAlert) int {
	n := 0
	for _, alert := range alerts {
		if alert.Severity == models.SeverityCritical {
			n++
		}
	}
	return n
}

func severeDegradations(trends []models.Trend) int {
	n := 0
	for _, trend := range trends {
		if trend.Direction == models.TrendDegrading && trend.Significance > 0.7 {
			n++
		}
	}
	return n
}

func openAnomalies(snapshots map[string]models.AdapterSnapshot) int {
	n := 0
	for _, snapshot := range snapshots {
		n += len(snapshot.Anomalies)
	}
	return n
}
