package models

import "time"

// Priority orders recommendations and action items.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the sort weight for a priority; lower sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// DueOffset maps a priority to the action-item due window.
func (p Priority) DueOffset() time.Duration {
	switch p {
	case PriorityCritical:
		return 24 * time.Hour
	case PriorityHigh:
		return 7 * 24 * time.Hour
	case PriorityMedium:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Category identifies the subsystem a recommendation belongs to.
type Category string

const (
	CategoryDatabase       Category = "database"
	CategoryCache          Category = "cache"
	CategoryInfrastructure Category = "infrastructure"
	CategoryApplication    Category = "application"
	CategoryMonitoring     Category = "monitoring"
)

// RecommendationStatus tracks a recommendation through its lifecycle.
type RecommendationStatus string

const (
	RecommendationPending     RecommendationStatus = "pending"
	RecommendationApproved    RecommendationStatus = "approved"
	RecommendationImplemented RecommendationStatus = "implemented"
	RecommendationRejected    RecommendationStatus = "rejected"
)

// Impact carries the qualitative effect tags for a recommendation.
type Impact struct {
	Performance string `json:"performance"`
	Cost        string `json:"cost"`
	Risk        string `json:"risk"`
}

// ImplementationPlan describes how a recommendation would be carried out.
type ImplementationPlan struct {
	Effort   string   `json:"effort"`
	Timeline string   `json:"timeline"`
	Steps    []string `json:"steps"`
}

// Recommendation is a proposed remediation produced by one optimization cycle.
// When Automated is true, Action holds the single adapter command the
// implementer will dispatch; non-automated recommendations only ever yield an
// ActionItem.
type Recommendation struct {
	ID              string               `json:"id"`
	RuleID          string               `json:"ruleId"`
	Priority        Priority             `json:"priority"`
	Category        Category             `json:"category"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	Impact          Impact               `json:"impact"`
	Implementation  ImplementationPlan   `json:"implementation"`
	ExpectedOutcome string               `json:"expectedOutcome"`
	Status          RecommendationStatus `json:"status"`
	Automated       bool                 `json:"automated"`
	Action          *AutomationAction    `json:"action,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// ActionItemStatus tracks a human follow-up task.
type ActionItemStatus string

const (
	ActionItemOpen       ActionItemStatus = "open"
	ActionItemInProgress ActionItemStatus = "in_progress"
	ActionItemCompleted  ActionItemStatus = "completed"
	ActionItemBlocked    ActionItemStatus = "blocked"
)

// ActionItem is a human task derived 1:1 from a non-automated recommendation.
// RecommendationID is a lookup key, never an ownership edge.
type ActionItem struct {
	ID               string           `json:"id"`
	RecommendationID string           `json:"recommendationId"`
	Title            string           `json:"title"`
	DueDate          time.Time        `json:"dueDate"`
	Status           ActionItemStatus `json:"status"`
	Priority         Priority         `json:"priority"`
}

// TrendDirection labels the movement of a metric over the observation window.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDegrading TrendDirection = "degrading"
	TrendStable    TrendDirection = "stable"
)

// Trend describes per-metric movement as reported by a subsystem adapter.
type Trend struct {
	Component     string         `json:"component"`
	Metric        string         `json:"metric"`
	Direction     TrendDirection `json:"direction"`
	ChangePercent float64        `json:"changePercent"`
	Significance  float64        `json:"significance"`
}

// Correlation links two component metrics that degrade together.
type Correlation struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Strength    float64 `json:"strength"`
	Description string  `json:"description"`
}

// Bottleneck is a capacity constraint surfaced by the capacity planner.
type Bottleneck struct {
	Resource    string   `json:"resource"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Analysis is the cross-component view derived from one round of snapshots.
type Analysis struct {
	Trends       []Trend       `json:"trends"`
	Correlations []Correlation `json:"correlations"`
	Bottlenecks  []Bottleneck  `json:"bottlenecks"`
}

// ReportSummary rolls one cycle up into headline numbers.
type ReportSummary struct {
	HealthScore                float64 `json:"healthScore"`
	CriticalIssues             int     `json:"criticalIssues"`
	RecommendationsGenerated   int     `json:"recommendationsGenerated"`
	RecommendationsImplemented int     `json:"recommendationsImplemented"`
	EstimatedPerformanceGain   float64 `json:"estimatedPerformanceGain"`
	EstimatedCostSavings       float64 `json:"estimatedCostSavings"`
}

// OptimizationReport is the immutable output of one optimization cycle.
type OptimizationReport struct {
	ID               string                     `json:"id"`
	Timestamp        time.Time                  `json:"timestamp"`
	Summary          ReportSummary              `json:"summary"`
	ComponentReports map[string]AdapterSnapshot `json:"componentReports"`
	Recommendations  []Recommendation           `json:"recommendations"`
	ActionItems      []ActionItem               `json:"actionItems"`
	Trends           []Trend                    `json:"trends"`
	Correlations     []Correlation              `json:"correlations,omitempty"`
	NextReview       time.Time                  `json:"nextReview"`
}

// HealthState bands an aggregate score.
type HealthState string

const (
	HealthExcellent HealthState = "excellent"
	HealthGood      HealthState = "good"
	HealthWarning   HealthState = "warning"
	HealthCritical  HealthState = "critical"
)

// HealthStateForScore maps a 0-100 score onto the fixed bands.
func HealthStateForScore(score float64) HealthState {
	switch {
	case score >= 90:
		return HealthExcellent
	case score >= 75:
		return HealthGood
	case score >= 50:
		return HealthWarning
	default:
		return HealthCritical
	}
}

// ComponentHealth is the per-adapter slice of SystemHealth.
type ComponentHealth struct {
	Status    HealthState `json:"status"`
	Score     float64     `json:"score"`
	Issues    []string    `json:"issues,omitempty"`
	LastCheck time.Time   `json:"lastCheck"`
}

// AlertCounts tallies open alerts by severity class.
type AlertCounts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// SystemHealth is the point-in-time rollup recomputed on the health cadence.
type SystemHealth struct {
	Overall         HealthState                `json:"overall"`
	Score           float64                    `json:"score"`
	Components      map[string]ComponentHealth `json:"components"`
	Alerts          AlertCounts                `json:"alerts"`
	Recommendations []Recommendation           `json:"recommendations,omitempty"`
	CheckedAt       time.Time                  `json:"checkedAt"`
}

// Severity captures impact levels for anomalies and capacity alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)
