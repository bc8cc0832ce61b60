package models

import "time"

// Component names for the fixed set of pluggable subsystems.
const (
	ComponentPerformance  = "performance"
	ComponentDatabase     = "database"
	ComponentCache        = "cache"
	ComponentLoadBalancer = "loadbalancer"
	ComponentCapacity     = "capacity"
)

// AdapterSnapshot is the read-only payload one subsystem adapter returns per
// collection round. Exactly one of the typed sections is populated depending
// on the adapter; Metrics carries the flat values threshold rules resolve
// against.
type AdapterSnapshot struct {
	Component   string             `json:"component"`
	CollectedAt time.Time          `json:"collectedAt"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Trends      []Trend            `json:"trends,omitempty"`
	Anomalies   []Anomaly          `json:"anomalies,omitempty"`

	Performance  *PerformanceStats  `json:"performance,omitempty"`
	Database     *DatabaseStats     `json:"database,omitempty"`
	Cache        *CacheStats        `json:"cache,omitempty"`
	LoadBalancer *LoadBalancerStats `json:"loadBalancer,omitempty"`
	Capacity     *CapacityStats     `json:"capacity,omitempty"`
}

// Anomaly is an open deviation the owning adapter has flagged.
type Anomaly struct {
	Metric      string    `json:"metric"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detectedAt"`
}

// PerformanceStats summarises the performance analyzer's view.
type PerformanceStats struct {
	AvgResponseTimeMs  float64 `json:"avgResponseTimeMs"`
	ErrorRatePercent   float64 `json:"errorRatePercent"`
	SlowEndpoints      int     `json:"slowEndpoints"`
	HighErrorEndpoints int     `json:"highErrorEndpoints"`
	RequestsPerMinute  float64 `json:"requestsPerMinute"`
}

// SlowQuery is one entry from the database tuner's slow-query list.
type SlowQuery struct {
	Query      string  `json:"query"`
	MeanTimeMs float64 `json:"meanTimeMs"`
	Calls      int     `json:"calls"`
}

// DatabaseStats summarises the database tuner's view.
type DatabaseStats struct {
	SlowQueries      []SlowQuery `json:"slowQueries,omitempty"`
	PoolUtilization  float64     `json:"poolUtilization"`
	CacheHitRatio    float64     `json:"cacheHitRatio"`
	IndexSuggestions int         `json:"indexSuggestions"`
}

// CacheStats summarises the cache layer's view. HitRate is a ratio in [0,1].
type CacheStats struct {
	HitRate      float64 `json:"hitRate"`
	EvictionRate float64 `json:"evictionRate"`
	MemoryUsedMB float64 `json:"memoryUsedMb"`
	Keys         int64   `json:"keys"`
}

// LoadBalancerStats summarises the load balancer's view.
type LoadBalancerStats struct {
	HealthyInstances int     `json:"healthyInstances"`
	TotalInstances   int     `json:"totalInstances"`
	AvgLatencyMs     float64 `json:"avgLatencyMs"`
}

// CapacityAlert is a headroom warning from the capacity planner.
type CapacityAlert struct {
	Resource string   `json:"resource"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// CapacityStats summarises the capacity planner's view.
type CapacityStats struct {
	Alerts        []CapacityAlert `json:"alerts,omitempty"`
	Bottlenecks   []Bottleneck    `json:"bottlenecks,omitempty"`
	CPUUsage      float64         `json:"cpuUsage"`
	MemoryUsage   float64         `json:"memoryUsage"`
	ForecastDays  int             `json:"forecastDays"`
}

// Score computes the adapter-defined health contribution for this snapshot.
func (s AdapterSnapshot) Score() float64 {
	switch {
	case s.Performance != nil:
		return clampScore(100 - float64(s.Performance.SlowEndpoints)*10 - float64(s.Performance.HighErrorEndpoints)*5)
	case s.Database != nil:
		score := 100 - float64(len(s.Database.SlowQueries))*8
		if s.Database.PoolUtilization > 0.85 {
			score -= 15
		}
		return clampScore(score)
	case s.Cache != nil:
		return clampScore(s.Cache.HitRate * 100)
	case s.LoadBalancer != nil:
		if s.LoadBalancer.TotalInstances == 0 {
			return 100
		}
		return clampScore(float64(s.LoadBalancer.HealthyInstances) / float64(s.LoadBalancer.TotalInstances) * 100)
	case s.Capacity != nil:
		critical := 0
		for _, alert := range s.Capacity.Alerts {
			if alert.Severity == SeverityCritical {
				critical++
			}
		}
		return clampScore(100 - float64(critical)*20)
	default:
		return 100
	}
}

// Issues lists human-readable problems the snapshot exposes, used for the
// per-component health detail.
func (s AdapterSnapshot) IssueList() []string {
	var issues []string
	if s.Performance != nil {
		if s.Performance.SlowEndpoints > 0 {
			issues = append(issues, "slow endpoints detected")
		}
		if s.Performance.HighErrorEndpoints > 0 {
			issues = append(issues, "endpoints with elevated error rates")
		}
	}
	if s.Database != nil {
		if len(s.Database.SlowQueries) > 0 {
			issues = append(issues, "slow queries present")
		}
		if s.Database.PoolUtilization > 0.85 {
			issues = append(issues, "connection pool near saturation")
		}
	}
	if s.Cache != nil && s.Cache.HitRate < 0.8 {
		issues = append(issues, "cache hit rate below target")
	}
	if s.LoadBalancer != nil && s.LoadBalancer.HealthyInstances < s.LoadBalancer.TotalInstances {
		issues = append(issues, "unhealthy backend instances")
	}
	if s.Capacity != nil {
		for _, alert := range s.Capacity.Alerts {
			issues = append(issues, alert.Message)
		}
	}
	return issues
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// CommandResult is the outcome of one adapter write operation.
type CommandResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}
