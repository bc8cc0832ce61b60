package engine

import (
	"time"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// HealthScorer turns a set of adapter snapshots into a SystemHealth view.
// The overall score is the arithmetic mean of the component scores that are
// actually present; an adapter that failed to report is excluded from the
// mean rather than dragged down to zero.
type HealthScorer struct{}

func NewHealthScorer() *HealthScorer {
	return &HealthScorer{}
}

// Score computes per-component and overall health at the current instant.
// With no snapshots at all the system is reported critical with score 0.
func (s *HealthScorer) Score(snapshots map[string]models.AdapterSnapshot) models.SystemHealth {
	now := time.Now().UTC()
	health := models.SystemHealth{
		Components: make(map[string]models.ComponentHealth, len(snapshots)),
		CheckedAt:  now,
	}

	var total float64
	for name, snapshot := range snapshots {
		score := snapshot.Score()
		health.Components[name] = models.ComponentHealth{
			Status:    models.HealthStateForScore(score),
			Score:     score,
			Issues:    snapshot.IssueList(),
			LastCheck: snapshot.CollectedAt,
		}
		total += score
		countAlerts(&health.Alerts, snapshot)
	}

	if len(snapshots) == 0 {
		health.Score = 0
		health.Overall = models.HealthCritical
		return health
	}

	health.Score = total / float64(len(snapshots))
	health.Overall = models.HealthStateForScore(health.Score)
	return health
}

func countAlerts(counts *models.AlertCounts, snapshot models.AdapterSnapshot) {
	for _, anomaly := range snapshot.Anomalies {
		bumpAlert(counts, anomaly.Severity)
	}
	if snapshot.Capacity != nil {
		for _, alert := range snapshot.Capacity.Alerts {
			bumpAlert(counts, alert.Severity)
		}
	}
}

func bumpAlert(counts *models.AlertCounts, severity models.Severity) {
	switch severity {
	case models.SeverityCritical, models.SeverityHigh:
		counts.Critical++
	case models.SeverityWarning, models.SeverityMedium:
		counts.Warning++
	default:
		counts.Info++
	}
}
