package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leadstack/optimizer-engine/internal/adapters"
	"github.com/leadstack/optimizer-engine/internal/metrics"
	"github.com/leadstack/optimizer-engine/internal/models"
)

// Notifier receives the alert/incident actions that do not map to an adapter
// command surface.
type Notifier interface {
	Alert(message string, severity models.Severity)
	Incident(description string, severity models.Severity, automated bool)
}

// RuleEngine evaluates automation rules against live snapshots on the sweep
// cadence. Each rule is a two-state machine: armed (eligible) and cooling
// (inside its cooldown window). The armed→cooling transition happens the
// instant a trigger evaluates true, before action dispatch, so a slow action
// list cannot cause re-entrant firing.
type RuleEngine struct {
	logger   *slog.Logger
	registry *adapters.Registry
	notifier Notifier

	mu            sync.Mutex
	rules         []*models.AutomationRule
	scheduleMarks map[string]string
	holdSince     map[string]time.Time

	now func() time.Time
}

// RulePackFile is the YAML root structure for rule packs.
type RulePackFile struct {
	Rules []models.AutomationRule `yaml:"rules"`
}

// NewRuleEngine constructs a RuleEngine with an empty rule table.
func NewRuleEngine(logger *slog.Logger, registry *adapters.Registry, notifier Notifier) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{
		logger:        logger,
		registry:      registry,
		notifier:      notifier,
		scheduleMarks: make(map[string]string),
		holdSince:     make(map[string]time.Time),
		now:           time.Now,
	}
}

// LoadPack reads an initial rule set from a YAML file. A missing file is not
// an error; the engine simply starts with no rules.
func (e *RuleEngine) LoadPack(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read rule pack: %w", err)
	}
	var pack RulePackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return fmt.Errorf("parse rule pack: %w", err)
	}
	for _, rule := range pack.Rules {
		if err := e.AddRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// AddRule validates and appends a rule; rule IDs must be unique.
func (e *RuleEngine) AddRule(rule models.AutomationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if normalized, err := models.NormalizeCondition(string(rule.Trigger.Condition)); err == nil {
		rule.Trigger.Condition = normalized
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.ID == rule.ID {
			return fmt.Errorf("rule %q already exists", rule.ID)
		}
	}
	stored := rule
	e.rules = append(e.rules, &stored)
	return nil
}

// RemoveRule deletes a rule by ID; returns false if it was not present.
func (e *RuleEngine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, rule := range e.rules {
		if rule.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			delete(e.scheduleMarks, id)
			delete(e.holdSince, id)
			return true
		}
	}
	return false
}

// Rules returns a copy of the current rule table in insertion order.
func (e *RuleEngine) Rules() []models.AutomationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.AutomationRule, 0, len(e.rules))
	for _, rule := range e.rules {
		copied := *rule
		if rule.LastTriggered != nil {
			t := *rule.LastTriggered
			copied.LastTriggered = &t
		}
		out = append(out, copied)
	}
	return out
}

// Sweep evaluates every rule once, in insertion order. Rules are independent:
// one rule firing, cooling or failing never blocks another.
func (e *RuleEngine) Sweep(ctx context.Context, snapshots map[string]models.AdapterSnapshot, trends []models.Trend) {
	e.mu.Lock()
	rules := append([]*models.AutomationRule(nil), e.rules...)
	e.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !e.evaluate(rule, snapshots, trends) {
			e.clearHold(rule.ID)
			continue
		}
		if !e.sustained(rule) {
			continue
		}
		if !e.arm(rule) {
			continue
		}
		metrics.ObserveRuleFiring(string(rule.Trigger.Type))
		e.logger.Info("automation rule fired",
			slog.String("rule", rule.ID),
			slog.String("trigger", string(rule.Trigger.Type)))
		e.execute(ctx, rule)
	}
}

// arm performs the armed→cooling transition: it re-checks the cooldown and
// schedule boundary under the lock and stamps lastTriggered atomically. A
// concurrent sweep observing the rule sees either the old or the new
// timestamp, never a partial write.
func (e *RuleEngine) arm(rule *models.AutomationRule) bool {
	now := e.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	if rule.LastTriggered != nil && now.Sub(*rule.LastTriggered) < rule.Cooldown() {
		return false
	}
	if rule.Trigger.Type == models.TriggerSchedule {
		key := boundaryKey(rule.Trigger.Value.String(), now)
		if e.scheduleMarks[rule.ID] == key {
			return false
		}
		e.scheduleMarks[rule.ID] = key
	}
	stamp := now
	rule.LastTriggered = &stamp
	// The hold window restarts after a firing: the condition must be
	// sustained again once the cooldown expires.
	delete(e.holdSince, rule.ID)
	return true
}

// sustained enforces the trigger's durationMinutes: the condition must hold
// across sweeps for at least that long before the rule fires. Rules without a
// duration, and schedule triggers, fire on the first true evaluation.
func (e *RuleEngine) sustained(rule *models.AutomationRule) bool {
	hold := time.Duration(rule.Trigger.DurationMinutes) * time.Minute
	if hold <= 0 || rule.Trigger.Type == models.TriggerSchedule {
		return true
	}
	now := e.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()
	since, ok := e.holdSince[rule.ID]
	if !ok {
		e.holdSince[rule.ID] = now
		return false
	}
	return now.Sub(since) >= hold
}

func (e *RuleEngine) clearHold(id string) {
	e.mu.Lock()
	delete(e.holdSince, id)
	e.mu.Unlock()
}

func (e *RuleEngine) evaluate(rule *models.AutomationRule, snapshots map[string]models.AdapterSnapshot, trends []models.Trend) bool {
	switch rule.Trigger.Type {
	case models.TriggerThreshold:
		return e.evaluateThreshold(rule.Trigger, snapshots)
	case models.TriggerAnomaly:
		return evaluateAnomaly(rule.Trigger, snapshots)
	case models.TriggerSchedule:
		return atScheduleBoundary(rule.Trigger.Value.String(), e.now().UTC())
	case models.TriggerPerformanceDegradation:
		for _, trend := range trends {
			if trend.Direction == models.TrendDegrading && trend.Significance > 0.7 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// metricSources is the fixed metric-name → adapter-snapshot-field map
// threshold triggers resolve against.
var metricSources = map[string]struct {
	component string
	key       string
}{
	"response_time":       {models.ComponentPerformance, "response_time"},
	"error_rate":          {models.ComponentPerformance, "error_rate"},
	"requests_per_minute": {models.ComponentPerformance, "requests_per_minute"},
	"db_pool_utilization": {models.ComponentDatabase, "db_pool_utilization"},
	"slow_queries":        {models.ComponentDatabase, "slow_queries"},
	"cache_hit_rate":      {models.ComponentCache, "cache_hit_rate"},
	"cache_eviction_rate": {models.ComponentCache, "cache_eviction_rate"},
	"healthy_ratio":       {models.ComponentLoadBalancer, "healthy_ratio"},
	"cpu_usage":           {models.ComponentCapacity, "cpu_usage"},
	"memory_usage":        {models.ComponentCapacity, "memory_usage"},
}

func (e *RuleEngine) evaluateThreshold(trigger models.AutomationTrigger, snapshots map[string]models.AdapterSnapshot) bool {
	source, ok := metricSources[trigger.Metric]
	if !ok {
		e.logger.Debug("threshold metric not in source map", slog.String("metric", trigger.Metric))
		return false
	}
	snapshot, ok := snapshots[source.component]
	if !ok {
		return false
	}
	current, ok := snapshot.Metrics[source.key]
	if !ok {
		return false
	}
	limit, ok := trigger.Value.Float()
	if !ok {
		return false
	}

	condition, err := models.NormalizeCondition(string(trigger.Condition))
	if err != nil {
		return false
	}
	switch condition {
	case models.ConditionGreaterThan:
		return current > limit
	case models.ConditionLessThan:
		return current < limit
	case models.ConditionEqual:
		return current == limit
	default:
		// Pattern conditions only make sense for string-valued signals,
		// which threshold metrics are not.
		return false
	}
}

func evaluateAnomaly(trigger models.AutomationTrigger, snapshots map[string]models.AdapterSnapshot) bool {
	wantSeverity := models.Severity(trigger.Value.String())
	for _, snapshot := range snapshots {
		for _, anomaly := range snapshot.Anomalies {
			if !strings.EqualFold(anomaly.Metric, trigger.Metric) {
				continue
			}
			if trigger.Value == "" || anomaly.Severity == wantSeverity {
				return true
			}
		}
	}
	return false
}

// atScheduleBoundary reports whether now sits on the minute/hour/weekday
// alignment the schedule value implies. Boundary dedup happens in arm.
func atScheduleBoundary(value string, now time.Time) bool {
	switch value {
	case "hourly":
		return now.Minute() == 0
	case "daily":
		return now.Hour() == 0 && now.Minute() == 0
	case "weekly":
		return now.Weekday() == time.Monday && now.Hour() == 0 && now.Minute() == 0
	default:
		return false
	}
}

func boundaryKey(value string, now time.Time) string {
	switch value {
	case "hourly":
		return now.Format("2006-01-02T15")
	case "daily":
		return now.Format("2006-01-02")
	case "weekly":
		year, week := now.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	default:
		return ""
	}
}

// execute runs the rule's actions strictly in list order. One action failing
// is logged and does not abort its siblings; a declared rollback runs only
// for the single action that failed.
func (e *RuleEngine) execute(ctx context.Context, rule *models.AutomationRule) {
	for i, action := range rule.Actions {
		if err := e.dispatch(ctx, rule, action); err != nil {
			e.logger.Warn("rule action failed",
				slog.String("rule", rule.ID),
				slog.Int("action", i),
				slog.String("type", string(action.Type)),
				slog.Any("error", err))
			if action.Rollback != nil {
				if rbErr := e.dispatch(ctx, rule, *action.Rollback); rbErr != nil {
					e.logger.Warn("rollback action failed",
						slog.String("rule", rule.ID),
						slog.Int("action", i),
						slog.Any("error", rbErr))
				}
			}
		}
	}
}

func (e *RuleEngine) dispatch(ctx context.Context, rule *models.AutomationRule, action models.AutomationAction) error {
	switch action.Type {
	case models.ActionSendAlert:
		if e.notifier != nil {
			e.notifier.Alert(actionMessage(rule, action), actionSeverity(action))
		}
		return nil
	case models.ActionCreateIncident:
		if e.notifier != nil {
			e.notifier.Incident(actionMessage(rule, action), actionSeverity(action), true)
		}
		return nil
	}

	adapter, ok := e.adapterFor(action)
	if !ok {
		return fmt.Errorf("no adapter for action %s (target %q)", action.Type, action.Target)
	}
	result, err := adapter.Command(ctx, action)
	if err != nil {
		metrics.ObserveAdapterFailure(adapter.Name(), "command")
		return err
	}
	if !result.Success {
		metrics.ObserveAdapterFailure(adapter.Name(), "command")
		return fmt.Errorf("adapter %s rejected %s: %s", adapter.Name(), action.Type, result.Detail)
	}
	return nil
}

// adapterFor resolves the owning adapter: an explicit registered target wins,
// otherwise the action type implies it.
func (e *RuleEngine) adapterFor(action models.AutomationAction) (adapters.Adapter, bool) {
	if action.Target != "" {
		if adapter, ok := e.registry.Get(action.Target); ok {
			return adapter, true
		}
	}
	var name string
	switch action.Type {
	case models.ActionScaleUp, models.ActionScaleDown, models.ActionRestartService:
		name = models.ComponentLoadBalancer
	case models.ActionClearCache:
		name = models.ComponentCache
	case models.ActionOptimizeDatabase:
		name = models.ComponentDatabase
	default:
		return nil, false
	}
	return e.registry.Get(name)
}

func actionMessage(rule *models.AutomationRule, action models.AutomationAction) string {
	if msg, ok := action.Parameters["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("automation rule %s triggered", rule.Name)
}

func actionSeverity(action models.AutomationAction) models.Severity {
	if sev, ok := action.Parameters["severity"].(string); ok && sev != "" {
		return models.Severity(sev)
	}
	return models.SeverityWarning
}
