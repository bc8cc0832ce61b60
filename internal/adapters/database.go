package adapters

import (
	"context"
	"time"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// DatabaseAdapter wraps the database tuner service.
type DatabaseAdapter struct {
	httpClient
}

// NewDatabaseAdapter constructs a client for the database tuner.
func NewDatabaseAdapter(baseURL, snapshotPath, commandPath string, timeout time.Duration) *DatabaseAdapter {
	return &DatabaseAdapter{
		httpClient: newHTTPClient(models.ComponentDatabase, baseURL, snapshotPath, commandPath, timeout),
	}
}

// Snapshot fetches the tuner's slow-query list and pool pressure.
func (a *DatabaseAdapter) Snapshot(ctx context.Context) (models.AdapterSnapshot, error) {
	var response struct {
		SlowQueries []struct {
			Query      string  `json:"query"`
			MeanTimeMs float64 `json:"mean_time_ms"`
			Calls      int     `json:"calls"`
		} `json:"slow_queries"`
		PoolUtilization  float64       `json:"pool_utilization"`
		CacheHitRatio    float64       `json:"cache_hit_ratio"`
		IndexSuggestions int           `json:"index_suggestions"`
		Trends           []wireTrend   `json:"trends"`
		Anomalies        []wireAnomaly `json:"anomalies"`
	}

	if err := a.fetchSnapshot(ctx, &response); err != nil {
		return models.AdapterSnapshot{}, err
	}

	slow := make([]models.SlowQuery, 0, len(response.SlowQueries))
	for _, q := range response.SlowQueries {
		slow = append(slow, models.SlowQuery{Query: q.Query, MeanTimeMs: q.MeanTimeMs, Calls: q.Calls})
	}

	return models.AdapterSnapshot{
		Component:   models.ComponentDatabase,
		CollectedAt: time.Now().UTC(),
		Metrics: map[string]float64{
			"db_pool_utilization": response.PoolUtilization,
			"db_cache_hit_ratio":  response.CacheHitRatio,
			"slow_queries":        float64(len(slow)),
		},
		Trends:    decodeTrends(models.ComponentDatabase, response.Trends),
		Anomalies: decodeAnomalies(response.Anomalies),
		Database: &models.DatabaseStats{
			SlowQueries:      slow,
			PoolUtilization:  response.PoolUtilization,
			CacheHitRatio:    response.CacheHitRatio,
			IndexSuggestions: response.IndexSuggestions,
		},
	}, nil
}
