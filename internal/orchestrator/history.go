package orchestrator

import (
	"sync"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// ReportHistory keeps the most recent optimization reports in a bounded
// in-memory ring. When full, appending evicts the oldest report.
type ReportHistory struct {
	mu      sync.RWMutex
	reports []models.OptimizationReport
	limit   int
}

func NewReportHistory(limit int) *ReportHistory {
	if limit <= 0 {
		limit = 50
	}
	return &ReportHistory{limit: limit}
}

// Append stores a report, evicting the oldest entry if the ring is full.
func (h *ReportHistory) Append(report models.OptimizationReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, report)
	if len(h.reports) > h.limit {
		copy(h.reports[0:], h.reports[1:])
		h.reports = h.reports[:h.limit]
	}
}

// Last returns the most recent report, or false if none exist yet.
func (h *ReportHistory) Last() (models.OptimizationReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.reports) == 0 {
		return models.OptimizationReport{}, false
	}
	return h.reports[len(h.reports)-1], true
}

// List returns up to limit reports, most recent first. limit <= 0 means all.
func (h *ReportHistory) List(limit int) []models.OptimizationReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.reports)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.OptimizationReport, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, h.reports[i])
	}
	return out
}

// Len returns the number of stored reports.
func (h *ReportHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.reports)
}
