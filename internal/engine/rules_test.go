package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leadstack/optimizer-engine/internal/adapters"
	"github.com/leadstack/optimizer-engine/internal/models"
)

func thresholdRule(id, metric string, condition models.Condition, value models.RuleValue, actions ...models.AutomationAction) models.AutomationRule {
	return models.AutomationRule{
		ID:   id,
		Name: id,
		Trigger: models.AutomationTrigger{
			Type:      models.TriggerThreshold,
			Metric:    metric,
			Condition: condition,
			Value:     value,
		},
		Actions:         actions,
		Enabled:         true,
		CooldownMinutes: 30,
	}
}

func highCPUSnapshots() map[string]models.AdapterSnapshot {
	return map[string]models.AdapterSnapshot{
		models.ComponentCapacity: {
			Component: models.ComponentCapacity,
			Metrics:   map[string]float64{"cpu_usage": 95, "memory_usage": 40},
		},
	}
}

func TestThresholdRuleFiresOncePerCooldown(t *testing.T) {
	registry := adapters.NewRegistry()
	lb := &fakeAdapter{name: models.ComponentLoadBalancer}
	if err := registry.Register(lb); err != nil {
		t.Fatalf("register: %v", err)
	}

	engine := NewRuleEngine(nil, registry, &fakeNotifier{})
	now := time.Date(2026, 8, 31, 10, 15, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	rule := thresholdRule("cpu-scale", "cpu_usage", models.ConditionGreaterThan, "80",
		models.AutomationAction{Type: models.ActionScaleUp, Target: models.ComponentLoadBalancer})
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	snapshots := highCPUSnapshots()
	engine.Sweep(context.Background(), snapshots, nil)
	engine.Sweep(context.Background(), snapshots, nil)
	engine.Sweep(context.Background(), snapshots, nil)

	if got := len(lb.commandLog()); got != 1 {
		t.Fatalf("commands inside cooldown window: got %d, want 1", got)
	}

	// Past the cooldown it is eligible again.
	now = now.Add(31 * time.Minute)
	engine.Sweep(context.Background(), snapshots, nil)
	if got := len(lb.commandLog()); got != 2 {
		t.Fatalf("commands after cooldown: got %d, want 2", got)
	}
}

func TestThresholdRuleWaitsForSustainedCondition(t *testing.T) {
	registry := adapters.NewRegistry()
	lb := &fakeAdapter{name: models.ComponentLoadBalancer}
	if err := registry.Register(lb); err != nil {
		t.Fatalf("register: %v", err)
	}

	engine := NewRuleEngine(nil, registry, &fakeNotifier{})
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	rule := thresholdRule("cpu-scale", "cpu_usage", models.ConditionGreaterThan, "80",
		models.AutomationAction{Type: models.ActionScaleUp, Target: models.ComponentLoadBalancer})
	rule.Trigger.DurationMinutes = 10
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	snapshots := highCPUSnapshots()
	engine.Sweep(context.Background(), snapshots, nil)
	if got := len(lb.commandLog()); got != 0 {
		t.Fatalf("fired on first true evaluation despite 10m duration: %d commands", got)
	}

	// Condition still true but the window has not elapsed.
	now = now.Add(5 * time.Minute)
	engine.Sweep(context.Background(), snapshots, nil)
	if got := len(lb.commandLog()); got != 0 {
		t.Fatalf("fired before the hold window elapsed: %d commands", got)
	}

	now = now.Add(6 * time.Minute)
	engine.Sweep(context.Background(), snapshots, nil)
	if got := len(lb.commandLog()); got != 1 {
		t.Fatalf("sustained condition did not fire: got %d commands, want 1", got)
	}
}

func TestSustainedConditionResetsWhenItClears(t *testing.T) {
	registry := adapters.NewRegistry()
	lb := &fakeAdapter{name: models.ComponentLoadBalancer}
	_ = registry.Register(lb)

	engine := NewRuleEngine(nil, registry, &fakeNotifier{})
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	rule := thresholdRule("cpu-scale", "cpu_usage", models.ConditionGreaterThan, "80",
		models.AutomationAction{Type: models.ActionScaleUp, Target: models.ComponentLoadBalancer})
	rule.Trigger.DurationMinutes = 10
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	healthy := map[string]models.AdapterSnapshot{
		models.ComponentCapacity: {
			Component: models.ComponentCapacity,
			Metrics:   map[string]float64{"cpu_usage": 40},
		},
	}

	engine.Sweep(context.Background(), highCPUSnapshots(), nil)
	now = now.Add(8 * time.Minute)
	engine.Sweep(context.Background(), healthy, nil)

	// The dip reset the hold window; 11 minutes from here is not enough
	// counted from the original start, but is from the new one.
	now = now.Add(time.Minute)
	engine.Sweep(context.Background(), highCPUSnapshots(), nil)
	now = now.Add(5 * time.Minute)
	engine.Sweep(context.Background(), highCPUSnapshots(), nil)
	if got := len(lb.commandLog()); got != 0 {
		t.Fatalf("fired across a cleared condition: %d commands", got)
	}

	now = now.Add(6 * time.Minute)
	engine.Sweep(context.Background(), highCPUSnapshots(), nil)
	if got := len(lb.commandLog()); got != 1 {
		t.Fatalf("restarted hold window did not fire: got %d commands, want 1", got)
	}
}

func TestThresholdRuleBelowLimitDoesNotFire(t *testing.T) {
	registry := adapters.NewRegistry()
	lb := &fakeAdapter{name: models.ComponentLoadBalancer}
	_ = registry.Register(lb)

	engine := NewRuleEngine(nil, registry, &fakeNotifier{})
	rule := thresholdRule("cpu-scale", "cpu_usage", models.ConditionGreaterThan, "80",
		models.AutomationAction{Type: models.ActionScaleUp, Target: models.ComponentLoadBalancer})
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	snapshots := map[string]models.AdapterSnapshot{
		models.ComponentCapacity: {
			Component: models.ComponentCapacity,
			Metrics:   map[string]float64{"cpu_usage": 40},
		},
	}
	engine.Sweep(context.Background(), snapshots, nil)
	if got := len(lb.commandLog()); got != 0 {
		t.Fatalf("rule fired below threshold: %d commands", got)
	}
}

func TestDisabledRuleNeverFires(t *testing.T) {
	registry := adapters.NewRegistry()
	lb := &fakeAdapter{name: models.ComponentLoadBalancer}
	_ = registry.Register(lb)

	engine := NewRuleEngine(nil, registry, &fakeNotifier{})
	rule := thresholdRule("cpu-scale", "cpu_usage", models.ConditionGreaterThan, "80",
		models.AutomationAction{Type: models.ActionScaleUp, Target: models.ComponentLoadBalancer})
	rule.Enabled = false
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	engine.Sweep(context.Background(), highCPUSnapshots(), nil)
	if got := len(lb.commandLog()); got != 0 {
		t.Fatalf("disabled rule fired: %d commands", got)
	}
}

func TestActionFailureRunsOnlyItsRollback(t *testing.T) {
	registry := adapters.NewRegistry()
	lb := &fakeAdapter{name: models.ComponentLoadBalancer, commandErr: errUnavailable}
	db := &fakeAdapter{name: models.ComponentDatabase}
	_ = registry.Register(lb)
	_ = registry.Register(db)

	notifier := &fakeNotifier{}
	engine := NewRuleEngine(nil, registry, notifier)

	rule := thresholdRule("cpu-remediate", "cpu_usage", models.ConditionGreaterThan, "80",
		models.AutomationAction{
			Type:   models.ActionScaleUp,
			Target: models.ComponentLoadBalancer,
			Rollback: &models.AutomationAction{
				Type:   models.ActionScaleDown,
				Target: models.ComponentLoadBalancer,
			},
		},
		models.AutomationAction{Type: models.ActionOptimizeDatabase, Target: models.ComponentDatabase},
	)
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	engine.Sweep(context.Background(), highCPUSnapshots(), nil)

	// Forward scale_up plus its rollback, both against the load balancer.
	lbLog := lb.commandLog()
	if len(lbLog) != 2 {
		t.Fatalf("load balancer commands: got %d, want 2", len(lbLog))
	}
	if lbLog[1].Type != models.ActionScaleDown {
		t.Fatalf("second lb command should be the rollback, got %s", lbLog[1].Type)
	}
	// The sibling action still runs after the failure.
	if got := len(db.commandLog()); got != 1 {
		t.Fatalf("database commands: got %d, want 1", got)
	}
}

func TestAlertAndIncidentActionsReachNotifier(t *testing.T) {
	notifier := &fakeNotifier{}
	engine := NewRuleEngine(nil, adapters.NewRegistry(), notifier)

	rule := thresholdRule("cpu-alert", "cpu_usage", models.ConditionGreaterThan, "80",
		models.AutomationAction{
			Type:       models.ActionSendAlert,
			Parameters: map[string]interface{}{"message": "cpu hot", "severity": "critical"},
		},
		models.AutomationAction{
			Type:       models.ActionCreateIncident,
			Parameters: map[string]interface{}{"message": "cpu saturated"},
		},
	)
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	engine.Sweep(context.Background(), highCPUSnapshots(), nil)

	if len(notifier.alerts) != 1 || notifier.alerts[0] != "cpu hot" {
		t.Fatalf("alerts: got %v", notifier.alerts)
	}
	if len(notifier.incidents) != 1 || notifier.incidents[0] != "cpu saturated" {
		t.Fatalf("incidents: got %v", notifier.incidents)
	}
}

func TestAnomalyTriggerMatchesMetricAndSeverity(t *testing.T) {
	notifier := &fakeNotifier{}
	engine := NewRuleEngine(nil, adapters.NewRegistry(), notifier)

	rule := models.AutomationRule{
		ID:   "latency-anomaly",
		Name: "latency anomaly",
		Trigger: models.AutomationTrigger{
			Type:   models.TriggerAnomaly,
			Metric: "response_time",
			Value:  "critical",
		},
		Actions: []models.AutomationAction{{
			Type:       models.ActionSendAlert,
			Parameters: map[string]interface{}{"message": "latency anomaly"},
		}},
		Enabled:         true,
		CooldownMinutes: 10,
	}
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	warningOnly := map[string]models.AdapterSnapshot{
		models.ComponentPerformance: {
			Component: models.ComponentPerformance,
			Anomalies: []models.Anomaly{{Metric: "response_time", Severity: models.SeverityWarning}},
		},
	}
	engine.Sweep(context.Background(), warningOnly, nil)
	if len(notifier.alerts) != 0 {
		t.Fatalf("warning anomaly should not match critical rule")
	}

	critical := map[string]models.AdapterSnapshot{
		models.ComponentPerformance: {
			Component: models.ComponentPerformance,
			Anomalies: []models.Anomaly{{Metric: "response_time", Severity: models.SeverityCritical}},
		},
	}
	engine.Sweep(context.Background(), critical, nil)
	if len(notifier.alerts) != 1 {
		t.Fatalf("critical anomaly should fire, alerts: %v", notifier.alerts)
	}
}

func TestScheduleRuleFiresOncePerBoundary(t *testing.T) {
	registry := adapters.NewRegistry()
	db := &fakeAdapter{name: models.ComponentDatabase}
	_ = registry.Register(db)

	engine := NewRuleEngine(nil, registry, &fakeNotifier{})
	now := time.Date(2026, 8, 31, 3, 0, 10, 0, time.UTC)
	engine.now = func() time.Time { return now }

	rule := models.AutomationRule{
		ID:      "hourly-maintenance",
		Name:    "hourly maintenance",
		Trigger: models.AutomationTrigger{Type: models.TriggerSchedule, Value: "hourly"},
		Actions: []models.AutomationAction{{
			Type:   models.ActionOptimizeDatabase,
			Target: models.ComponentDatabase,
		}},
		Enabled: true,
	}
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	// Two sweeps inside the same minute-zero boundary fire once.
	engine.Sweep(context.Background(), nil, nil)
	now = now.Add(20 * time.Second)
	engine.Sweep(context.Background(), nil, nil)
	if got := len(db.commandLog()); got != 1 {
		t.Fatalf("same boundary commands: got %d, want 1", got)
	}

	// Off the boundary nothing fires.
	now = now.Add(10 * time.Minute)
	engine.Sweep(context.Background(), nil, nil)
	if got := len(db.commandLog()); got != 1 {
		t.Fatalf("off-boundary fired: got %d commands", got)
	}

	// The next hour boundary fires again.
	now = time.Date(2026, 8, 31, 4, 0, 5, 0, time.UTC)
	engine.Sweep(context.Background(), nil, nil)
	if got := len(db.commandLog()); got != 2 {
		t.Fatalf("next boundary commands: got %d, want 2", got)
	}
}

func TestPerformanceDegradationTrigger(t *testing.T) {
	notifier := &fakeNotifier{}
	engine := NewRuleEngine(nil, adapters.NewRegistry(), notifier)

	rule := models.AutomationRule{
		ID:      "degradation-incident",
		Name:    "degradation incident",
		Trigger: models.AutomationTrigger{Type: models.TriggerPerformanceDegradation},
		Actions: []models.AutomationAction{{
			Type:       models.ActionCreateIncident,
			Parameters: map[string]interface{}{"message": "sustained degradation"},
		}},
		Enabled:         true,
		CooldownMinutes: 60,
	}
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	weak := []models.Trend{{Component: "performance", Metric: "response_time", Direction: models.TrendDegrading, Significance: 0.4}}
	engine.Sweep(context.Background(), nil, weak)
	if len(notifier.incidents) != 0 {
		t.Fatalf("weak degradation should not fire")
	}

	strong := []models.Trend{{Component: "performance", Metric: "response_time", Direction: models.TrendDegrading, Significance: 0.9}}
	engine.Sweep(context.Background(), nil, strong)
	if len(notifier.incidents) != 1 {
		t.Fatalf("strong degradation should fire, incidents: %v", notifier.incidents)
	}
}

func TestLoadPackMissingFileIsEmptyRuleSet(t *testing.T) {
	engine := NewRuleEngine(nil, adapters.NewRegistry(), &fakeNotifier{})
	if err := engine.LoadPack(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing rule pack should not error: %v", err)
	}
	if got := len(engine.Rules()); got != 0 {
		t.Fatalf("rules after missing pack: got %d", got)
	}
}

func TestLoadPackParsesRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := []byte(`rules:
  - id: high-cpu
    name: High CPU
    trigger:
      type: threshold
      metric: cpu_usage
      condition: greater_than
      value: 85
    actions:
      - type: scale_up
        target: loadbalancer
    enabled: true
    cooldownMinutes: 30
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	engine := NewRuleEngine(nil, adapters.NewRegistry(), &fakeNotifier{})
	if err := engine.LoadPack(path); err != nil {
		t.Fatalf("load pack: %v", err)
	}
	rules := engine.Rules()
	if len(rules) != 1 {
		t.Fatalf("rules loaded: got %d", len(rules))
	}
	if rules[0].Trigger.Condition != models.ConditionGreaterThan {
		t.Fatalf("condition not normalized: %q", rules[0].Trigger.Condition)
	}
	if v, ok := rules[0].Trigger.Value.Float(); !ok || v != 85 {
		t.Fatalf("value: got %q", rules[0].Trigger.Value)
	}
}

func TestAddRuleRejectsDuplicateID(t *testing.T) {
	engine := NewRuleEngine(nil, adapters.NewRegistry(), &fakeNotifier{})
	rule := thresholdRule("dup", "cpu_usage", models.ConditionGreaterThan, "80",
		models.AutomationAction{Type: models.ActionSendAlert})
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := engine.AddRule(rule); err == nil {
		t.Fatalf("duplicate rule accepted")
	}
}

func TestRemoveRule(t *testing.T) {
	engine := NewRuleEngine(nil, adapters.NewRegistry(), &fakeNotifier{})
	rule := thresholdRule("gone", "cpu_usage", models.ConditionGreaterThan, "80",
		models.AutomationAction{Type: models.ActionSendAlert})
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !engine.RemoveRule("gone") {
		t.Fatalf("remove existing rule returned false")
	}
	if engine.RemoveRule("gone") {
		t.Fatalf("remove absent rule returned true")
	}
}
