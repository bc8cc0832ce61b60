package adapters

import (
	"context"
	"time"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// PerformanceAdapter wraps the performance analyzer service. It is the one
// adapter every deployment requires; response-time and error-rate threshold
// triggers resolve against its metrics.
type PerformanceAdapter struct {
	httpClient
}

// NewPerformanceAdapter constructs a client for the performance analyzer.
func NewPerformanceAdapter(baseURL, snapshotPath, commandPath string, timeout time.Duration) *PerformanceAdapter {
	return &PerformanceAdapter{
		httpClient: newHTTPClient(models.ComponentPerformance, baseURL, snapshotPath, commandPath, timeout),
	}
}

// Snapshot fetches the analyzer's current view of request latency and errors.
func (a *PerformanceAdapter) Snapshot(ctx context.Context) (models.AdapterSnapshot, error) {
	var response struct {
		AvgResponseTimeMs  float64       `json:"avg_response_time_ms"`
		ErrorRatePercent   float64       `json:"error_rate_percent"`
		SlowEndpoints      int           `json:"slow_endpoints"`
		HighErrorEndpoints int           `json:"high_error_endpoints"`
		RequestsPerMinute  float64       `json:"requests_per_minute"`
		Trends             []wireTrend   `json:"trends"`
		Anomalies          []wireAnomaly `json:"anomalies"`
	}

	if err := a.fetchSnapshot(ctx, &response); err != nil {
		return models.AdapterSnapshot{}, err
	}

	return models.AdapterSnapshot{
		Component:   models.ComponentPerformance,
		CollectedAt: time.Now().UTC(),
		Metrics: map[string]float64{
			"response_time":       response.AvgResponseTimeMs,
			"error_rate":          response.ErrorRatePercent,
			"requests_per_minute": response.RequestsPerMinute,
		},
		Trends:    decodeTrends(models.ComponentPerformance, response.Trends),
		Anomalies: decodeAnomalies(response.Anomalies),
		Performance: &models.PerformanceStats{
			AvgResponseTimeMs:  response.AvgResponseTimeMs,
			ErrorRatePercent:   response.ErrorRatePercent,
			SlowEndpoints:      response.SlowEndpoints,
			HighErrorEndpoints: response.HighErrorEndpoints,
			RequestsPerMinute:  response.RequestsPerMinute,
		},
	}, nil
}
