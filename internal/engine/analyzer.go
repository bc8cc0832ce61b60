package engine

import (
	"fmt"
	"sort"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// Analyzer derives the cross-component view from one round of snapshots. It
// is a pure relabeling step: trend detection itself is an adapter
// responsibility, bottlenecks pass through from the capacity planner, and
// correlations are a heuristic over already-labelled degrading trends.
// Identical input snapshots always produce identical output.
type Analyzer struct {
	advanced bool
}

// NewAnalyzer constructs an Analyzer; advanced enables correlation detection.
func NewAnalyzer(advanced bool) *Analyzer {
	return &Analyzer{advanced: advanced}
}

// Analyze aggregates trends, correlations and bottlenecks from the snapshots.
func (a *Analyzer) Analyze(snapshots map[string]models.AdapterSnapshot) models.Analysis {
	analysis := models.Analysis{}

	for _, name := range sortedKeys(snapshots) {
		analysis.Trends = append(analysis.Trends, snapshots[name].Trends...)
	}

	if capacity, ok := snapshots[models.ComponentCapacity]; ok && capacity.Capacity != nil {
		analysis.Bottlenecks = append(analysis.Bottlenecks, capacity.Capacity.Bottlenecks...)
	}

	if a.advanced {
		analysis.Correlations = correlateDegradations(analysis.Trends)
	}

	return analysis
}

// correlateDegradations pairs degrading trends across different components.
// Two metrics degrading in the same window is weak evidence of a shared
// cause; the strength is the lesser of the two significances.
func correlateDegradations(trends []models.Trend) []models.Correlation {
	var degrading []models.Trend
	for _, trend := range trends {
		if trend.Direction == models.TrendDegrading && trend.Significance >= 0.5 {
			degrading = append(degrading, trend)
		}
	}
	if len(degrading) < 2 {
		return nil
	}

	var correlations []models.Correlation
	for i := 0; i < len(degrading); i++ {
		for j := i + 1; j < len(degrading); j++ {
			left, right := degrading[i], degrading[j]
			if left.Component == right.Component {
				continue
			}
			strength := left.Significance
			if right.Significance < strength {
				strength = right.Significance
			}
			correlations = append(correlations, models.Correlation{
				Source:   left.Component + ":" + left.Metric,
				Target:   right.Component + ":" + right.Metric,
				Strength: strength,
				Description: fmt.Sprintf("%s %s and %s %s degrading together",
					left.Component, left.Metric, right.Component, right.Metric),
			})
		}
	}
	return correlations
}

func sortedKeys(snapshots map[string]models.AdapterSnapshot) []string {
	keys := make([]string, 0, len(snapshots))
	for name := range snapshots {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}
