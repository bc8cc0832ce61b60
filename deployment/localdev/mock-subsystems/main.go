package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type slowQuery struct {
	Query      string  `json:"query"`
	MeanTimeMs float64 `json:"mean_time_ms"`
	Calls      int     `json:"calls"`
}

type capacityAlert struct {
	Resource string `json:"resource"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type anomaly struct {
	Metric      string    `json:"metric"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/performance/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"avg_response_time_ms": 340.0,
			"error_rate_percent":   1.2,
			"slow_endpoints":       2,
			"high_error_endpoints": 0,
			"requests_per_minute":  1850.0,
			"anomalies": []anomaly{
				{Metric: "response_time", Severity: "warning", Description: "lead scoring endpoint p95 above 800ms", DetectedAt: time.Now().Add(-2 * time.Minute)},
			},
		})
	})

	mux.HandleFunc("/api/v1/database/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"slow_queries": []slowQuery{
				{Query: "SELECT * FROM leads WHERE score > $1 ORDER BY created_at", MeanTimeMs: 420, Calls: 1380},
				{Query: "UPDATE lead_activities SET processed = true WHERE lead_id = $1", MeanTimeMs: 210, Calls: 950},
			},
			"pool_utilization":  0.62,
			"cache_hit_ratio":   0.94,
			"index_suggestions": 1,
		})
	})

	mux.HandleFunc("/api/v1/cache/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"hit_rate":       0.87,
			"eviction_rate":  12.0,
			"memory_used_mb": 412.0,
			"keys":           52304,
		})
	})

	mux.HandleFunc("/api/v1/loadbalancer/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"healthy_instances": 3,
			"total_instances":   4,
			"avg_latency_ms":    48.0,
		})
	})

	mux.HandleFunc("/api/v1/capacity/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"alerts": []capacityAlert{
				{Resource: "memory", Severity: "warning", Message: "projected to reach 90% within 14 days"},
			},
			"bottlenecks":   []any{},
			"cpu_usage":     64.0,
			"memory_usage":  78.0,
			"forecast_days": 30,
		})
	})

	// All five subsystems accept commands; the mock acknowledges everything.
	for _, path := range []string{
		"/api/v1/performance/command",
		"/api/v1/database/command",
		"/api/v1/cache/command",
		"/api/v1/loadbalancer/command",
		"/api/v1/capacity/command",
	} {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if !enforcePost(w, r) {
				return
			}
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, map[string]any{
				"success": true,
				"detail":  "accepted",
			})
		})
	}

	logger := log.New(log.Writer(), "subsystems-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
