package adapters

import (
	"context"
	"time"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// CapacityAdapter wraps the capacity planner. CPU and memory threshold
// triggers resolve against its metrics, and its critical alerts always force
// human sign-off on the resulting recommendations.
type CapacityAdapter struct {
	httpClient
}

// NewCapacityAdapter constructs a client for the capacity planner.
func NewCapacityAdapter(baseURL, snapshotPath, commandPath string, timeout time.Duration) *CapacityAdapter {
	return &CapacityAdapter{
		httpClient: newHTTPClient(models.ComponentCapacity, baseURL, snapshotPath, commandPath, timeout),
	}
}

// Snapshot fetches headroom alerts, bottlenecks and utilisation.
func (a *CapacityAdapter) Snapshot(ctx context.Context) (models.AdapterSnapshot, error) {
	var response struct {
		Alerts []struct {
			Resource string `json:"resource"`
			Severity string `json:"severity"`
			Message  string `json:"message"`
		} `json:"alerts"`
		Bottlenecks []struct {
			Resource    string `json:"resource"`
			Severity    string `json:"severity"`
			Description string `json:"description"`
		} `json:"bottlenecks"`
		CPUUsage     float64       `json:"cpu_usage"`
		MemoryUsage  float64       `json:"memory_usage"`
		ForecastDays int           `json:"forecast_days"`
		Trends       []wireTrend   `json:"trends"`
		Anomalies    []wireAnomaly `json:"anomalies"`
	}

	if err := a.fetchSnapshot(ctx, &response); err != nil {
		return models.AdapterSnapshot{}, err
	}

	alerts := make([]models.CapacityAlert, 0, len(response.Alerts))
	for _, alert := range response.Alerts {
		alerts = append(alerts, models.CapacityAlert{
			Resource: alert.Resource,
			Severity: models.Severity(alert.Severity),
			Message:  alert.Message,
		})
	}
	bottlenecks := make([]models.Bottleneck, 0, len(response.Bottlenecks))
	for _, b := range response.Bottlenecks {
		bottlenecks = append(bottlenecks, models.Bottleneck{
			Resource:    b.Resource,
			Severity:    models.Severity(b.Severity),
			Description: b.Description,
		})
	}

	return models.AdapterSnapshot{
		Component:   models.ComponentCapacity,
		CollectedAt: time.Now().UTC(),
		Metrics: map[string]float64{
			"cpu_usage":    response.CPUUsage,
			"memory_usage": response.MemoryUsage,
		},
		Trends:    decodeTrends(models.ComponentCapacity, response.Trends),
		Anomalies: decodeAnomalies(response.Anomalies),
		Capacity: &models.CapacityStats{
			Alerts:       alerts,
			Bottlenecks:  bottlenecks,
			CPUUsage:     response.CPUUsage,
			MemoryUsage:  response.MemoryUsage,
			ForecastDays: response.ForecastDays,
		},
	}, nil
}
