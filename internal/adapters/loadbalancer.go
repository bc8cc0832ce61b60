package adapters

import (
	"context"
	"time"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// LoadBalancerAdapter wraps the intelligent load balancer. Scale and restart
// commands land here.
type LoadBalancerAdapter struct {
	httpClient
}

// NewLoadBalancerAdapter constructs a client for the load balancer.
func NewLoadBalancerAdapter(baseURL, snapshotPath, commandPath string, timeout time.Duration) *LoadBalancerAdapter {
	return &LoadBalancerAdapter{
		httpClient: newHTTPClient(models.ComponentLoadBalancer, baseURL, snapshotPath, commandPath, timeout),
	}
}

// Snapshot fetches the balancer's instance pool state.
func (a *LoadBalancerAdapter) Snapshot(ctx context.Context) (models.AdapterSnapshot, error) {
	var response struct {
		HealthyInstances int           `json:"healthy_instances"`
		TotalInstances   int           `json:"total_instances"`
		AvgLatencyMs     float64       `json:"avg_latency_ms"`
		Trends           []wireTrend   `json:"trends"`
		Anomalies        []wireAnomaly `json:"anomalies"`
	}

	if err := a.fetchSnapshot(ctx, &response); err != nil {
		return models.AdapterSnapshot{}, err
	}

	healthyRatio := 1.0
	if response.TotalInstances > 0 {
		healthyRatio = float64(response.HealthyInstances) / float64(response.TotalInstances)
	}

	return models.AdapterSnapshot{
		Component:   models.ComponentLoadBalancer,
		CollectedAt: time.Now().UTC(),
		Metrics: map[string]float64{
			"healthy_instances": float64(response.HealthyInstances),
			"total_instances":   float64(response.TotalInstances),
			"healthy_ratio":     healthyRatio,
			"lb_latency":        response.AvgLatencyMs,
		},
		Trends:    decodeTrends(models.ComponentLoadBalancer, response.Trends),
		Anomalies: decodeAnomalies(response.Anomalies),
		LoadBalancer: &models.LoadBalancerStats{
			HealthyInstances: response.HealthyInstances,
			TotalInstances:   response.TotalInstances,
			AvgLatencyMs:     response.AvgLatencyMs,
		},
	}, nil
}
