package adapters

import (
	"context"
	"time"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// CacheAdapter wraps the multi-layer cache service.
type CacheAdapter struct {
	httpClient
}

// NewCacheAdapter constructs a client for the cache layer.
func NewCacheAdapter(baseURL, snapshotPath, commandPath string, timeout time.Duration) *CacheAdapter {
	return &CacheAdapter{
		httpClient: newHTTPClient(models.ComponentCache, baseURL, snapshotPath, commandPath, timeout),
	}
}

// Snapshot fetches hit-rate and memory pressure from the cache layer.
func (a *CacheAdapter) Snapshot(ctx context.Context) (models.AdapterSnapshot, error) {
	var response struct {
		HitRate      float64       `json:"hit_rate"`
		EvictionRate float64       `json:"eviction_rate"`
		MemoryUsedMB float64       `json:"memory_used_mb"`
		Keys         int64         `json:"keys"`
		Trends       []wireTrend   `json:"trends"`
		Anomalies    []wireAnomaly `json:"anomalies"`
	}

	if err := a.fetchSnapshot(ctx, &response); err != nil {
		return models.AdapterSnapshot{}, err
	}

	return models.AdapterSnapshot{
		Component:   models.ComponentCache,
		CollectedAt: time.Now().UTC(),
		Metrics: map[string]float64{
			"cache_hit_rate":      response.HitRate,
			"cache_eviction_rate": response.EvictionRate,
			"cache_memory_mb":     response.MemoryUsedMB,
		},
		Trends:    decodeTrends(models.ComponentCache, response.Trends),
		Anomalies: decodeAnomalies(response.Anomalies),
		Cache: &models.CacheStats{
			HitRate:      response.HitRate,
			EvictionRate: response.EvictionRate,
			MemoryUsedMB: response.MemoryUsedMB,
			Keys:         response.Keys,
		},
	}, nil
}
