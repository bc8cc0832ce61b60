package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TriggerType enumerates the ways an automation rule can fire.
type TriggerType string

const (
	TriggerThreshold              TriggerType = "threshold"
	TriggerAnomaly                TriggerType = "anomaly"
	TriggerSchedule               TriggerType = "schedule"
	TriggerPerformanceDegradation TriggerType = "performance_degradation"
)

// Condition compares a live metric against the trigger value.
type Condition string

const (
	ConditionGreaterThan Condition = "gt"
	ConditionLessThan    Condition = "lt"
	ConditionEqual       Condition = "eq"
	ConditionPattern     Condition = "pattern"
)

// NormalizeCondition accepts the long-form aliases used in rule files.
func NormalizeCondition(raw string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "gt", "greater_than", ">":
		return ConditionGreaterThan, nil
	case "lt", "less_than", "<":
		return ConditionLessThan, nil
	case "eq", "equals", "==":
		return ConditionEqual, nil
	case "pattern":
		return ConditionPattern, nil
	default:
		return "", fmt.Errorf("unknown condition %q", raw)
	}
}

// RuleValue holds a trigger comparison value. Depending on the trigger type it
// is numeric (threshold), a severity (anomaly), or a schedule keyword
// (hourly/daily/weekly); it unmarshals from either a scalar number or string.
type RuleValue string

// Float parses the value as a number.
func (v RuleValue) Float() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	return f, err == nil
}

func (v RuleValue) String() string { return string(v) }

// UnmarshalJSON accepts both `5` and `"hourly"`.
func (v *RuleValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = RuleValue(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("rule value must be a number or string: %w", err)
	}
	*v = RuleValue(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// MarshalJSON emits numbers as numbers so round-trips look natural.
func (v RuleValue) MarshalJSON() ([]byte, error) {
	if f, ok := v.Float(); ok {
		return json.Marshal(f)
	}
	return json.Marshal(string(v))
}

// UnmarshalYAML mirrors the JSON behaviour for rule pack files.
func (v *RuleValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = RuleValue(t)
	case int:
		*v = RuleValue(strconv.Itoa(t))
	case float64:
		*v = RuleValue(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("rule value must be a number or string, got %T", raw)
	}
	return nil
}

// AutomationTrigger defines when a rule fires. A positive DurationMinutes
// requires the condition to hold across sweep evaluations for at least that
// long before the rule is eligible.
type AutomationTrigger struct {
	Type            TriggerType `json:"type" yaml:"type"`
	Metric          string      `json:"metric,omitempty" yaml:"metric,omitempty"`
	Condition       Condition   `json:"condition,omitempty" yaml:"condition,omitempty"`
	Value           RuleValue   `json:"value" yaml:"value"`
	DurationMinutes int         `json:"durationMinutes,omitempty" yaml:"durationMinutes,omitempty"`
}

// ActionType enumerates remediation steps the rule engine can issue.
type ActionType string

const (
	ActionScaleUp          ActionType = "scale_up"
	ActionScaleDown        ActionType = "scale_down"
	ActionClearCache       ActionType = "clear_cache"
	ActionOptimizeDatabase ActionType = "optimize_database"
	ActionRestartService   ActionType = "restart_service"
	ActionSendAlert        ActionType = "send_alert"
	ActionCreateIncident   ActionType = "create_incident"
)

// AutomationAction is one remediation step. Rollback, when set, runs only if
// this action's forward dispatch reports failure; it never cascades to
// sibling actions.
type AutomationAction struct {
	Type       ActionType             `json:"type" yaml:"type"`
	Target     string                 `json:"target" yaml:"target"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Rollback   *AutomationAction      `json:"rollback,omitempty" yaml:"rollback,omitempty"`
}

// AutomationRule is a standing remediation policy. LastTriggered is written
// the instant action dispatch begins so a rule cannot re-fire mid-execution.
type AutomationRule struct {
	ID              string             `json:"id" yaml:"id"`
	Name            string             `json:"name" yaml:"name"`
	Trigger         AutomationTrigger  `json:"trigger" yaml:"trigger"`
	Actions         []AutomationAction `json:"actions" yaml:"actions"`
	Enabled         bool               `json:"enabled" yaml:"enabled"`
	CooldownMinutes int                `json:"cooldownMinutes" yaml:"cooldownMinutes"`
	LastTriggered   *time.Time         `json:"lastTriggered,omitempty" yaml:"-"`
}

// Cooldown returns the cooldown window as a duration.
func (r AutomationRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Validate checks the fields a rule needs before it can be evaluated.
func (r AutomationRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	switch r.Trigger.Type {
	case TriggerThreshold:
		if r.Trigger.Metric == "" {
			return fmt.Errorf("rule %s: threshold trigger requires a metric", r.ID)
		}
		if _, ok := r.Trigger.Value.Float(); !ok {
			return fmt.Errorf("rule %s: threshold trigger requires a numeric value", r.ID)
		}
		if _, err := NormalizeCondition(string(r.Trigger.Condition)); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	case TriggerAnomaly:
		if r.Trigger.Metric == "" {
			return fmt.Errorf("rule %s: anomaly trigger requires a metric", r.ID)
		}
	case TriggerSchedule:
		switch r.Trigger.Value.String() {
		case "hourly", "daily", "weekly":
		default:
			return fmt.Errorf("rule %s: schedule value must be hourly, daily or weekly", r.ID)
		}
	case TriggerPerformanceDegradation:
	default:
		return fmt.Errorf("rule %s: unknown trigger type %q", r.ID, r.Trigger.Type)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %s: at least one action is required", r.ID)
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("rule %s: cooldown must not be negative", r.ID)
	}
	return nil
}
