package orchestrator

import (
	"sort"
	"time"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// RecurringIssue is a recommendation rule that keeps reappearing across
// optimization cycles. High prevalence means the underlying condition is not
// being fixed by the automated path and deserves attention.
type RecurringIssue struct {
	RuleID      string                `json:"ruleId"`
	Title       string                `json:"title"`
	Category    models.Category       `json:"category"`
	Priority    models.Priority       `json:"priority"`
	Occurrences int                   `json:"occurrences"`
	Implemented int                   `json:"implemented"`
	Prevalence  float64               `json:"prevalence"`
	FirstSeen   time.Time             `json:"firstSeen"`
	LastSeen    time.Time             `json:"lastSeen"`
	HealthTrend models.TrendDirection `json:"healthTrend"`
}

// MineInsights aggregates recommendations across report history by rule ID and
// returns the recurring issues ordered by prevalence.
func MineInsights(reports []models.OptimizationReport) []RecurringIssue {
	if len(reports) == 0 {
		return nil
	}
	reports = append([]models.OptimizationReport(nil), reports...)
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.Before(reports[j].Timestamp)
	})

	issueStats := make(map[string]*issueAggregate)
	for _, report := range reports {
		for _, rec := range report.Recommendations {
			agg := ensureIssue(issueStats, rec)
			agg.occurrences++
			if rec.Status == models.RecommendationImplemented {
				agg.implemented++
			}
			if rec.CreatedAt.Before(agg.firstSeen) {
				agg.firstSeen = rec.CreatedAt
			}
			if rec.CreatedAt.After(agg.lastSeen) {
				agg.lastSeen = rec.CreatedAt
			}
		}
	}

	issues := make([]RecurringIssue, 0, len(issueStats))
	for ruleID, agg := range issueStats {
		issues = append(issues, RecurringIssue{
			RuleID:      ruleID,
			Title:       agg.title,
			Category:    agg.category,
			Priority:    agg.priority,
			Occurrences: agg.occurrences,
			Implemented: agg.implemented,
			Prevalence:  float64(agg.occurrences) / float64(len(reports)),
			FirstSeen:   agg.firstSeen,
			LastSeen:    agg.lastSeen,
			HealthTrend: healthTrend(reports),
		})
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Prevalence != issues[j].Prevalence {
			return issues[i].Prevalence > issues[j].Prevalence
		}
		return issues[i].RuleID < issues[j].RuleID
	})
	return issues
}

type issueAggregate struct {
	title       string
	category    models.Category
	priority    models.Priority
	occurrences int
	implemented int
	firstSeen   time.Time
	lastSeen    time.Time
}

func ensureIssue(m map[string]*issueAggregate, rec models.Recommendation) *issueAggregate {
	key := rec.RuleID
	if key == "" {
		key = "unclassified"
	}
	agg, ok := m[key]
	if !ok {
		agg = &issueAggregate{
			title:     rec.Title,
			category:  rec.Category,
			priority:  rec.Priority,
			firstSeen: rec.CreatedAt,
			lastSeen:  rec.CreatedAt,
		}
		m[key] = agg
	}
	return agg
}

// healthTrend compares the first and last health scores in the window.
func healthTrend(reports []models.OptimizationReport) models.TrendDirection {
	if len(reports) < 2 {
		return models.TrendStable
	}
	first := reports[0].Summary.HealthScore
	last := reports[len(reports)-1].Summary.HealthScore
	switch {
	case last > first+2:
		return models.TrendImproving
	case last < first-2:
		return models.TrendDegrading
	default:
		return models.TrendStable
	}
}
