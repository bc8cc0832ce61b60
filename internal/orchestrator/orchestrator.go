package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leadstack/optimizer-engine/internal/adapters"
	"github.com/leadstack/optimizer-engine/internal/cache"
	"github.com/leadstack/optimizer-engine/internal/config"
	"github.com/leadstack/optimizer-engine/internal/engine"
	"github.com/leadstack/optimizer-engine/internal/metrics"
	"github.com/leadstack/optimizer-engine/internal/models"
	"github.com/leadstack/optimizer-engine/internal/utils"
)

const (
	cacheKeyLatestReport = "optimizer:report:latest"
	cacheKeyLatestHealth = "optimizer:health:latest"

	// cycleDeadline bounds a single optimization cycle end to end.
	cycleDeadline = 2 * time.Minute
)

// ErrCycleInProgress is returned by TriggerOptimizationCycle while another
// cycle holds the reentrancy guard.
var ErrCycleInProgress = errors.New("optimization cycle already in progress")

// Orchestrator owns the three control loops (optimization cycle, health
// check, rule sweep) and the engine stages they drive. All public methods are
// safe for concurrent use.
type Orchestrator struct {
	logger *slog.Logger
	store  cache.Provider

	registry    *adapters.Registry
	collector   *engine.Collector
	analyzer    *engine.Analyzer
	generator   *engine.Generator
	implementer *engine.Implementer
	scorer      *engine.HealthScorer
	rules       *engine.RuleEngine

	history *ReportHistory
	events  *Emitter
	latency *utils.LatencyTracker

	mu        sync.RWMutex
	cfg       config.OptimizerConfig
	cacheTTL  time.Duration
	health    models.SystemHealth
	running   bool
	automated bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	cycleActive atomic.Bool
}

// New wires an Orchestrator from configuration. store may be a NoopProvider;
// snapshot publication then becomes a no-op.
func New(cfg *config.Config, logger *slog.Logger, store cache.Provider) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = cache.NoopProvider{}
	}

	o := &Orchestrator{
		logger:    logger,
		store:     store,
		registry:  adapters.NewRegistry(),
		history:   NewReportHistory(cfg.Optimizer.ReportHistoryLimit),
		events:    NewEmitter(),
		latency:   utils.NewLatencyTracker(256),
		cfg:       cfg.Optimizer,
		cacheTTL:  cfg.Cache.SnapshotTTL,
		automated: cfg.Optimizer.EnableAutomatedOptimization,
	}
	o.collector = engine.NewCollector(logger, o.registry, 0)
	o.analyzer = engine.NewAnalyzer(cfg.Optimizer.EnableAdvancedAnalytics)
	o.generator = engine.NewGenerator()
	o.implementer = engine.NewImplementer(logger, o.registry)
	o.scorer = engine.NewHealthScorer()
	o.rules = engine.NewRuleEngine(logger, o.registry, o)
	return o
}

// Initialize registers the subsystem adapters the feature gates allow and
// loads the initial rule pack. Must be called before Start.
func (o *Orchestrator) Initialize(cfg *config.Config) error {
	type candidate struct {
		enabled bool
		build   func(config.AdapterConfig) adapters.Adapter
		conf    config.AdapterConfig
	}
	candidates := []candidate{
		{true, func(c config.AdapterConfig) adapters.Adapter {
			return adapters.NewPerformanceAdapter(c.BaseURL, c.SnapshotPath, c.CommandPath, c.Timeout)
		}, cfg.Adapters.Performance},
		{cfg.Optimizer.EnableDatabaseOptimization, func(c config.AdapterConfig) adapters.Adapter {
			return adapters.NewDatabaseAdapter(c.BaseURL, c.SnapshotPath, c.CommandPath, c.Timeout)
		}, cfg.Adapters.Database},
		{cfg.Optimizer.EnableMultiLayerCaching, func(c config.AdapterConfig) adapters.Adapter {
			return adapters.NewCacheAdapter(c.BaseURL, c.SnapshotPath, c.CommandPath, c.Timeout)
		}, cfg.Adapters.Cache},
		{cfg.Optimizer.EnableIntelligentLoadBalancing, func(c config.AdapterConfig) adapters.Adapter {
			return adapters.NewLoadBalancerAdapter(c.BaseURL, c.SnapshotPath, c.CommandPath, c.Timeout)
		}, cfg.Adapters.LoadBalancer},
		{cfg.Optimizer.EnableCapacityPlanning, func(c config.AdapterConfig) adapters.Adapter {
			return adapters.NewCapacityAdapter(c.BaseURL, c.SnapshotPath, c.CommandPath, c.Timeout)
		}, cfg.Adapters.Capacity},
	}
	for _, c := range candidates {
		if !c.enabled || c.conf.BaseURL == "" {
			continue
		}
		if err := o.registry.Register(c.build(c.conf)); err != nil {
			return fmt.Errorf("register adapter: %w", err)
		}
	}

	if err := o.rules.LoadPack(cfg.Rules.Path); err != nil {
		return fmt.Errorf("load rule pack: %w", err)
	}

	o.logger.Info("orchestrator initialized",
		slog.Int("adapters", o.registry.Len()),
		slog.Int("rules", len(o.rules.Rules())))
	return nil
}

// Start launches the control loops. Calling Start on a running orchestrator
// logs a warning and returns nil. The automated-optimization gate is latched
// here; flipping it via UpdateConfig takes effect on the next Start.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.logger.Warn("orchestrator already running")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.running = true
	o.automated = o.cfg.EnableAutomatedOptimization
	o.mu.Unlock()

	o.wg.Add(3)
	go o.optimizationLoop(ctx)
	go o.healthLoop(ctx)
	go o.ruleLoop(ctx)

	o.logger.Info("orchestrator started",
		slog.Duration("optimizationInterval", o.interval(intervalOptimization)),
		slog.Duration("healthCheckInterval", o.interval(intervalHealth)),
		slog.Duration("ruleSweepInterval", o.interval(intervalRuleSweep)))
	o.events.Emit(Event{Type: EventStarted, Message: "orchestrator started"})
	return nil
}

// Stop halts the control loops and waits for them to exit. An in-flight
// optimization cycle runs to completion; only the loops stop scheduling new
// work. Calling Stop on a stopped orchestrator logs a warning and returns.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		o.logger.Warn("orchestrator not running")
		return
	}
	o.running = false
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
	o.events.Emit(Event{Type: EventStopped, Message: "orchestrator stopped"})
}

// Close stops the orchestrator if running and shuts down the event emitter.
func (o *Orchestrator) Close() {
	o.mu.RLock()
	running := o.running
	o.mu.RUnlock()
	if running {
		o.Stop()
	}
	o.events.Close()
}

// Running reports whether the control loops are active.
func (o *Orchestrator) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// Subscribe returns a channel of orchestrator events.
func (o *Orchestrator) Subscribe() <-chan Event {
	return o.events.Subscribe()
}

type intervalKind int

const (
	intervalOptimization intervalKind = iota
	intervalHealth
	intervalRuleSweep
)

func (o *Orchestrator) interval(kind intervalKind) time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch kind {
	case intervalHealth:
		return o.cfg.HealthCheckInterval
	case intervalRuleSweep:
		return o.cfg.RuleSweepInterval
	default:
		return o.cfg.OptimizationInterval
	}
}

// optimizationLoop re-reads the interval every iteration so UpdateConfig
// changes apply on the next tick without a restart.
func (o *Orchestrator) optimizationLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		timer := time.NewTimer(o.interval(intervalOptimization))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if _, err := o.runCycle(); err != nil && !errors.Is(err, ErrCycleInProgress) {
			o.logger.Error("optimization cycle failed", slog.Any("error", err))
		}
	}
}

func (o *Orchestrator) healthLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		timer := time.NewTimer(o.interval(intervalHealth))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		o.checkHealth(ctx)
	}
}

func (o *Orchestrator) ruleLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		timer := time.NewTimer(o.interval(intervalRuleSweep))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		o.sweepRules(ctx)
	}
}

// TriggerOptimizationCycle runs one cycle immediately and returns its report.
// Returns ErrCycleInProgress if the scheduled loop (or another caller) is
// mid-cycle.
func (o *Orchestrator) TriggerOptimizationCycle(ctx context.Context) (models.OptimizationReport, error) {
	report, err := o.runCycle()
	if err != nil {
		return models.OptimizationReport{}, err
	}
	return report, nil
}

// runCycle holds the reentrancy guard for the duration of one cycle. A tick
// arriving while a cycle is active is skipped, never queued.
func (o *Orchestrator) runCycle() (models.OptimizationReport, error) {
	if !o.cycleActive.CompareAndSwap(false, true) {
		metrics.ObserveCycle(0, metrics.OutcomeSkipped)
		o.logger.Debug("optimization cycle skipped, previous cycle still active")
		return models.OptimizationReport{}, ErrCycleInProgress
	}
	defer o.cycleActive.Store(false)

	// The cycle context deliberately does not descend from the loop context:
	// Stop cancels scheduling, not work already in flight.
	ctx, cancel := context.WithTimeout(context.Background(), cycleDeadline)
	defer cancel()

	start := time.Now()
	report, err := o.cycle(ctx)
	elapsed := time.Since(start)

	if err != nil {
		metrics.ObserveCycle(elapsed, metrics.OutcomeError)
		return models.OptimizationReport{}, err
	}

	metrics.ObserveCycle(elapsed, metrics.OutcomeSuccess)
	o.latency.Observe(elapsed)
	if o.latency.Count()%20 == 0 {
		o.logger.Info("optimization cycle latency",
			slog.Duration("p95", o.latency.Percentile(95)),
			slog.Uint64("samples", o.latency.Count()))
	}
	return report, nil
}

func (o *Orchestrator) cycle(ctx context.Context) (models.OptimizationReport, error) {
	o.mu.RLock()
	cfg := o.cfg
	automated := o.automated
	o.mu.RUnlock()

	now := time.Now().UTC()
	snapshots := o.collector.Collect(ctx)
	analysis := o.analyzer.Analyze(snapshots)

	recommendations := o.generator.Generate(snapshots, analysis, cfg.AlertThresholds)
	if cfg.TopRecommendations > 0 && len(recommendations) > cfg.TopRecommendations {
		recommendations = recommendations[:cfg.TopRecommendations]
	}

	implemented := 0
	if automated {
		implemented = o.implementer.Implement(ctx, recommendations)
	}

	health := o.scorer.Score(snapshots)
	actionItems := buildActionItems(recommendations, now)
	perfGain, costSavings := engine.EstimateGains(recommendations)

	report := models.OptimizationReport{
		ID:        uuid.NewString(),
		Timestamp: now,
		Summary: models.ReportSummary{
			HealthScore:                health.Score,
			CriticalIssues:             countCritical(recommendations),
			RecommendationsGenerated:   len(recommendations),
			RecommendationsImplemented: implemented,
			EstimatedPerformanceGain:   perfGain,
			EstimatedCostSavings:       costSavings,
		},
		ComponentReports: snapshots,
		Recommendations:  recommendations,
		ActionItems:      actionItems,
		Trends:           analysis.Trends,
		Correlations:     analysis.Correlations,
		NextReview:       now.Add(cfg.OptimizationInterval),
	}

	o.history.Append(report)
	health.Recommendations = pendingRecommendations(recommendations, 5)
	o.setHealth(health)
	metrics.ObserveRecommendations(len(recommendations), implemented)

	o.publish(ctx, cacheKeyLatestReport, report)
	o.publish(ctx, cacheKeyLatestHealth, health)

	o.logger.Info("optimization cycle completed",
		slog.String("report", report.ID),
		slog.Float64("healthScore", health.Score),
		slog.Int("recommendations", len(recommendations)),
		slog.Int("implemented", implemented))
	o.events.Emit(Event{
		Type:    EventCycleCompleted,
		Message: "optimization cycle completed",
		Fields: map[string]interface{}{
			"reportId":        report.ID,
			"healthScore":     health.Score,
			"recommendations": len(recommendations),
			"implemented":     implemented,
		},
	})
	return report, nil
}

func (o *Orchestrator) checkHealth(ctx context.Context) {
	snapshots := o.collector.Collect(ctx)
	// A canceled loop context yields an empty collection; keep the last
	// good rollup rather than overwriting it with a zero score.
	if ctx.Err() != nil {
		return
	}
	o.setHealth(o.scorer.Score(snapshots))
}

func (o *Orchestrator) sweepRules(ctx context.Context) {
	snapshots := o.collector.Collect(ctx)
	analysis := o.analyzer.Analyze(snapshots)
	o.rules.Sweep(ctx, snapshots, analysis.Trends)
}

func (o *Orchestrator) setHealth(health models.SystemHealth) {
	o.mu.Lock()
	o.health = health
	o.mu.Unlock()

	metrics.SetHealthScore("overall", health.Score)
	for name, component := range health.Components {
		metrics.SetHealthScore(name, component.Score)
	}
}

// publish writes a JSON snapshot to the cache provider. Failures are logged,
// never fatal; the cache is a read-side convenience.
func (o *Orchestrator) publish(ctx context.Context, key string, value interface{}) {
	o.mu.RLock()
	ttl := o.cacheTTL
	o.mu.RUnlock()
	if err := cache.SetJSON(ctx, o.store, key, value, ttl); err != nil {
		o.logger.Warn("snapshot publish failed", slog.String("key", key), slog.Any("error", err))
	}
}

// SystemHealth returns the most recent health rollup. Before the first check
// completes, the zero value is returned with empty components.
func (o *Orchestrator) SystemHealth() models.SystemHealth {
	o.mu.RLock()
	defer o.mu.RUnlock()
	health := o.health
	if health.Components != nil {
		components := make(map[string]models.ComponentHealth, len(health.Components))
		for k, v := range health.Components {
			components[k] = v
		}
		health.Components = components
	}
	health.Recommendations = append([]models.Recommendation(nil), health.Recommendations...)
	return health
}

// LastReport returns the most recent optimization report.
func (o *Orchestrator) LastReport() (models.OptimizationReport, bool) {
	return o.history.Last()
}

// History returns up to limit reports, most recent first.
func (o *Orchestrator) History(limit int) []models.OptimizationReport {
	return o.history.List(limit)
}

// Insights aggregates recurring issues across the report history.
func (o *Orchestrator) Insights() []RecurringIssue {
	return MineInsights(o.history.List(0))
}

// AddRule installs an automation rule.
func (o *Orchestrator) AddRule(rule models.AutomationRule) error {
	return o.rules.AddRule(rule)
}

// RemoveRule deletes an automation rule by ID.
func (o *Orchestrator) RemoveRule(id string) bool {
	return o.rules.RemoveRule(id)
}

// Rules lists the installed automation rules.
func (o *Orchestrator) Rules() []models.AutomationRule {
	return o.rules.Rules()
}

// ConfigPatch carries the runtime-adjustable settings; nil fields are left
// unchanged.
type ConfigPatch struct {
	OptimizationInterval        *time.Duration `json:"optimizationInterval,omitempty"`
	HealthCheckInterval         *time.Duration `json:"healthCheckInterval,omitempty"`
	RuleSweepInterval           *time.Duration `json:"ruleSweepInterval,omitempty"`
	TopRecommendations          *int           `json:"topRecommendations,omitempty"`
	EnableAutomatedOptimization *bool          `json:"enableAutomatedOptimization,omitempty"`
}

// UpdateConfig applies a patch and returns the resulting settings. Interval
// changes apply on each loop's next tick; the automated-optimization gate
// applies on the next Start.
func (o *Orchestrator) UpdateConfig(patch ConfigPatch) (config.OptimizerConfig, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	next := o.cfg
	if patch.OptimizationInterval != nil {
		next.OptimizationInterval = *patch.OptimizationInterval
	}
	if patch.HealthCheckInterval != nil {
		next.HealthCheckInterval = *patch.HealthCheckInterval
	}
	if patch.RuleSweepInterval != nil {
		next.RuleSweepInterval = *patch.RuleSweepInterval
	}
	if patch.TopRecommendations != nil {
		next.TopRecommendations = *patch.TopRecommendations
	}
	if patch.EnableAutomatedOptimization != nil {
		next.EnableAutomatedOptimization = *patch.EnableAutomatedOptimization
	}

	if next.OptimizationInterval <= 0 || next.HealthCheckInterval <= 0 || next.RuleSweepInterval <= 0 {
		return o.cfg, errors.New("intervals must be positive")
	}
	if next.TopRecommendations <= 0 {
		return o.cfg, errors.New("topRecommendations must be positive")
	}

	o.cfg = next
	return next, nil
}

// Alert implements engine.Notifier.
func (o *Orchestrator) Alert(message string, severity models.Severity) {
	o.logger.Warn("automation alert",
		slog.String("message", message),
		slog.String("severity", string(severity)))
	o.events.Emit(Event{Type: EventAlert, Message: message, Severity: string(severity)})
}

// Incident implements engine.Notifier.
func (o *Orchestrator) Incident(description string, severity models.Severity, automated bool) {
	o.logger.Error("incident created",
		slog.String("description", description),
		slog.String("severity", string(severity)),
		slog.Bool("automated", automated))
	o.events.Emit(Event{
		Type:     EventIncidentCreated,
		Message:  description,
		Severity: string(severity),
		Fields:   map[string]interface{}{"automated": automated},
	})
}

// buildActionItems derives a human task per non-automated recommendation.
// Automated ones never become action items: if their command failed they stay
// pending and retry on the next cycle instead.
func buildActionItems(recommendations []models.Recommendation, now time.Time) []models.ActionItem {
	items := make([]models.ActionItem, 0, len(recommendations))
	for _, rec := range recommendations {
		if rec.Automated || rec.Status == models.RecommendationImplemented {
			continue
		}
		items = append(items, models.ActionItem{
			ID:               uuid.NewString(),
			RecommendationID: rec.ID,
			Title:            rec.Title,
			DueDate:          now.Add(rec.Priority.DueOffset()),
			Status:           models.ActionItemOpen,
			Priority:         rec.Priority,
		})
	}
	return items
}

func countCritical(recommendations []models.Recommendation) int {
	n := 0
	for _, rec := range recommendations {
		if rec.Priority == models.PriorityCritical {
			n++
		}
	}
	return n
}

func pendingRecommendations(recommendations []models.Recommendation, limit int) []models.Recommendation {
	out := make([]models.Recommendation, 0, limit)
	for _, rec := range recommendations {
		if rec.Status != models.RecommendationPending {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out
}
