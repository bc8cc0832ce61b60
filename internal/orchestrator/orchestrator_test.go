package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/leadstack/optimizer-engine/internal/config"
	"github.com/leadstack/optimizer-engine/internal/models"
)

// newSubsystemServer serves degraded performance and cache snapshots plus an
// always-successful command endpoint.
func newSubsystemServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/performance/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"avg_response_time_ms": 900.0,
			"error_rate_percent":   8.0,
			"slow_endpoints":       2,
			"requests_per_minute":  500.0,
		})
	})
	mux.HandleFunc("/api/v1/cache/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hit_rate":       0.6,
			"eviction_rate":  20.0,
			"memory_used_mb": 100.0,
			"keys":           1000,
		})
	})
	mux.HandleFunc("/api/v1/cache/command", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(models.CommandResult{Success: true})
	})
	return httptest.NewServer(mux)
}

func newTestOrchestrator(t *testing.T, serverURL string) *Orchestrator {
	t.Helper()
	t.Setenv("OPTIMIZER_CONFIG", "")
	t.Setenv("OPTIMIZER_PERFORMANCE_URL", serverURL)
	t.Setenv("OPTIMIZER_CACHE_ADAPTER_URL", serverURL)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Rules.Path = ""

	orch := New(cfg, nil, nil)
	if err := orch.Initialize(cfg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return orch
}

func TestTriggerCycleProducesConsistentReport(t *testing.T) {
	server := newSubsystemServer(t)
	defer server.Close()

	orch := newTestOrchestrator(t, server.URL)
	report, err := orch.TriggerOptimizationCycle(context.Background())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	if report.Summary.RecommendationsGenerated != len(report.Recommendations) {
		t.Fatalf("summary generated %d, list has %d",
			report.Summary.RecommendationsGenerated, len(report.Recommendations))
	}
	if report.Summary.RecommendationsImplemented > report.Summary.RecommendationsGenerated {
		t.Fatalf("implemented %d exceeds generated %d",
			report.Summary.RecommendationsImplemented, report.Summary.RecommendationsGenerated)
	}
	// Cache hit rate at 60% is an automated recommendation, and the command
	// endpoint succeeds.
	if report.Summary.RecommendationsImplemented == 0 {
		t.Fatalf("expected at least one implemented recommendation")
	}
	implemented := 0
	for _, rec := range report.Recommendations {
		if rec.Status == models.RecommendationImplemented {
			implemented++
		}
	}
	if implemented != report.Summary.RecommendationsImplemented {
		t.Fatalf("summary says %d implemented, statuses show %d",
			report.Summary.RecommendationsImplemented, implemented)
	}

	// Action items exist only for non-automated recommendations.
	for _, item := range report.ActionItems {
		if item.DueDate.Before(report.Timestamp) {
			t.Fatalf("action item due before report timestamp")
		}
	}
	manual := 0
	for _, rec := range report.Recommendations {
		if !rec.Automated && rec.Status != models.RecommendationImplemented {
			manual++
		}
	}
	if len(report.ActionItems) != manual {
		t.Fatalf("action items %d, manual recommendations %d",
			len(report.ActionItems), manual)
	}

	last, ok := orch.LastReport()
	if !ok || last.ID != report.ID {
		t.Fatalf("last report mismatch")
	}
	if orch.SystemHealth().Score != report.Summary.HealthScore {
		t.Fatalf("system health %f, summary %f",
			orch.SystemHealth().Score, report.Summary.HealthScore)
	}
}

func TestActionItemsSkipAutomatedRecommendations(t *testing.T) {
	now := time.Now().UTC()
	recs := []models.Recommendation{
		{ID: "a", Title: "tune pool", Priority: models.PriorityHigh,
			Status: models.RecommendationPending, Automated: false},
		{ID: "b", Title: "clear cache", Priority: models.PriorityMedium,
			Status: models.RecommendationPending, Automated: true},
		{ID: "c", Title: "add index", Priority: models.PriorityCritical,
			Status: models.RecommendationImplemented, Automated: true},
	}

	items := buildActionItems(recs, now)
	if len(items) != 1 {
		t.Fatalf("action items: got %d, want 1", len(items))
	}
	if items[0].RecommendationID != "a" {
		t.Fatalf("action item derived from %q, want the manual recommendation", items[0].RecommendationID)
	}
	if items[0].DueDate != now.Add(models.PriorityHigh.DueOffset()) {
		t.Fatalf("due date: got %v", items[0].DueDate)
	}
}

func TestTriggerCycleConcurrentReturnsInProgress(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/performance/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_ = json.NewEncoder(w).Encode(map[string]any{"avg_response_time_ms": 100.0})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	orch := newTestOrchestrator(t, server.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = orch.TriggerOptimizationCycle(context.Background())
	}()

	// Wait until the first cycle is blocked inside collection.
	deadline := time.After(2 * time.Second)
	for !orch.cycleActive.Load() {
		select {
		case <-deadline:
			t.Fatalf("first cycle never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if _, err := orch.TriggerOptimizationCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}

	close(release)
	wg.Wait()
}

func TestCycleWithAllAdaptersFailing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	orch := newTestOrchestrator(t, server.URL)
	report, err := orch.TriggerOptimizationCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle should still produce a report: %v", err)
	}
	if report.Summary.HealthScore != 0 {
		t.Fatalf("health score with no snapshots: got %f", report.Summary.HealthScore)
	}
	if len(report.ComponentReports) != 0 {
		t.Fatalf("component reports should be empty")
	}
	health := orch.SystemHealth()
	if health.Overall != models.HealthCritical {
		t.Fatalf("overall health: got %s", health.Overall)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	server := newSubsystemServer(t)
	defer server.Close()

	orch := newTestOrchestrator(t, server.URL)
	events := orch.Subscribe()

	if err := orch.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := orch.Start(); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	if !orch.Running() {
		t.Fatalf("orchestrator should be running")
	}

	select {
	case event := <-events:
		if event.Type != EventStarted {
			t.Fatalf("first event: got %s", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("started event not delivered")
	}

	orch.Stop()
	orch.Stop()
	if orch.Running() {
		t.Fatalf("orchestrator should be stopped")
	}
}

func TestStopMidCycleAppendsReportThenHalts(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/performance/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			close(entered)
			<-release
		})
		_ = json.NewEncoder(w).Encode(map[string]any{"avg_response_time_ms": 900.0})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	orch := newTestOrchestrator(t, server.URL)
	interval := 30 * time.Millisecond
	slow := time.Hour
	if _, err := orch.UpdateConfig(ConfigPatch{
		OptimizationInterval: &interval,
		HealthCheckInterval:  &slow,
		RuleSweepInterval:    &slow,
	}); err != nil {
		t.Fatalf("update config: %v", err)
	}

	if err := orch.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduled cycle never reached the adapter")
	}

	stopped := make(chan struct{})
	go func() {
		orch.Stop()
		close(stopped)
	}()

	// Stop must wait for the in-flight cycle, not abandon it.
	select {
	case <-stopped:
		t.Fatalf("Stop returned while a cycle was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return after the cycle finished")
	}

	if _, ok := orch.LastReport(); !ok {
		t.Fatalf("in-flight cycle's report was not appended")
	}
	count := len(orch.History(0))

	// No further cycles start once stopped, even after the interval elapses.
	time.Sleep(5 * interval)
	if got := len(orch.History(0)); got != count {
		t.Fatalf("cycles continued after Stop: history grew from %d to %d", count, got)
	}
	if orch.Running() {
		t.Fatalf("orchestrator still reports running")
	}
}

func TestCanceledHealthCheckKeepsLastRollup(t *testing.T) {
	server := newSubsystemServer(t)
	defer server.Close()

	orch := newTestOrchestrator(t, server.URL)
	if _, err := orch.TriggerOptimizationCycle(context.Background()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	before := orch.SystemHealth()
	if before.Overall == models.HealthCritical {
		t.Fatalf("expected a non-critical baseline, got %s", before.Overall)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	orch.checkHealth(ctx)

	after := orch.SystemHealth()
	if after.Score != before.Score || after.Overall != before.Overall {
		t.Fatalf("canceled health check overwrote the rollup: %f/%s became %f/%s",
			before.Score, before.Overall, after.Score, after.Overall)
	}
}

func TestUpdateConfig(t *testing.T) {
	server := newSubsystemServer(t)
	defer server.Close()

	orch := newTestOrchestrator(t, server.URL)

	interval := 5 * time.Minute
	top := 3
	updated, err := orch.UpdateConfig(ConfigPatch{
		OptimizationInterval: &interval,
		TopRecommendations:   &top,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.OptimizationInterval != interval || updated.TopRecommendations != 3 {
		t.Fatalf("patch not applied: %+v", updated)
	}

	bad := -time.Minute
	if _, err := orch.UpdateConfig(ConfigPatch{RuleSweepInterval: &bad}); err == nil {
		t.Fatalf("negative interval accepted")
	}

	// Capped recommendation count shows up on the next cycle.
	report, err := orch.TriggerOptimizationCycle(context.Background())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(report.Recommendations) > 3 {
		t.Fatalf("recommendations not capped: got %d", len(report.Recommendations))
	}
}

func TestRuleDelegates(t *testing.T) {
	server := newSubsystemServer(t)
	defer server.Close()

	orch := newTestOrchestrator(t, server.URL)
	rule := models.AutomationRule{
		ID:   "test-rule",
		Name: "test",
		Trigger: models.AutomationTrigger{
			Type:      models.TriggerThreshold,
			Metric:    "cpu_usage",
			Condition: models.ConditionGreaterThan,
			Value:     "90",
		},
		Actions: []models.AutomationAction{{Type: models.ActionSendAlert}},
		Enabled: true,
	}
	if err := orch.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if len(orch.Rules()) != 1 {
		t.Fatalf("rules: got %d", len(orch.Rules()))
	}
	if !orch.RemoveRule("test-rule") {
		t.Fatalf("remove rule failed")
	}
}
