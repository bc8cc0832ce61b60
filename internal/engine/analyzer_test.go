package engine

import (
	"reflect"
	"testing"

	"github.com/leadstack/optimizer-engine/internal/models"
)

func analyzerSnapshots() map[string]models.AdapterSnapshot {
	return map[string]models.AdapterSnapshot{
		models.ComponentPerformance: {
			Component: models.ComponentPerformance,
			Trends: []models.Trend{
				{Component: models.ComponentPerformance, Metric: "response_time", Direction: models.TrendDegrading, Significance: 0.8},
			},
		},
		models.ComponentDatabase: {
			Component: models.ComponentDatabase,
			Trends: []models.Trend{
				{Component: models.ComponentDatabase, Metric: "slow_queries", Direction: models.TrendDegrading, Significance: 0.6},
			},
		},
		models.ComponentCapacity: {
			Component: models.ComponentCapacity,
			Capacity: &models.CapacityStats{
				Bottlenecks: []models.Bottleneck{{Resource: "memory", Severity: models.SeverityHigh}},
			},
		},
	}
}

func TestAnalyzeDeterministicTrendOrder(t *testing.T) {
	analyzer := NewAnalyzer(true)
	snapshots := analyzerSnapshots()
	first := analyzer.Analyze(snapshots)
	second := analyzer.Analyze(snapshots)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated analysis differs:\n%+v\n%+v", first, second)
	}
	if len(first.Trends) != 2 {
		t.Fatalf("trends: got %d", len(first.Trends))
	}
}

func TestAnalyzeCorrelatesCrossComponentDegradations(t *testing.T) {
	analysis := NewAnalyzer(true).Analyze(analyzerSnapshots())
	if len(analysis.Correlations) != 1 {
		t.Fatalf("correlations: got %d, want 1", len(analysis.Correlations))
	}
	if analysis.Correlations[0].Strength != 0.6 {
		t.Fatalf("strength should be the lesser significance, got %v", analysis.Correlations[0].Strength)
	}
}

func TestAnalyzeAdvancedDisabledSkipsCorrelations(t *testing.T) {
	analysis := NewAnalyzer(false).Analyze(analyzerSnapshots())
	if analysis.Correlations != nil {
		t.Fatalf("correlations with analytics disabled: %+v", analysis.Correlations)
	}
	if len(analysis.Bottlenecks) != 1 {
		t.Fatalf("bottlenecks should pass through: got %d", len(analysis.Bottlenecks))
	}
}

func TestAnalyzeSameComponentNotCorrelated(t *testing.T) {
	snapshots := map[string]models.AdapterSnapshot{
		models.ComponentPerformance: {
			Component: models.ComponentPerformance,
			Trends: []models.Trend{
				{Component: models.ComponentPerformance, Metric: "response_time", Direction: models.TrendDegrading, Significance: 0.9},
				{Component: models.ComponentPerformance, Metric: "error_rate", Direction: models.TrendDegrading, Significance: 0.8},
			},
		},
	}
	analysis := NewAnalyzer(true).Analyze(snapshots)
	if len(analysis.Correlations) != 0 {
		t.Fatalf("same-component trends should not correlate: %+v", analysis.Correlations)
	}
}
