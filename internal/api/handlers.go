package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/leadstack/optimizer-engine/internal/models"
	"github.com/leadstack/optimizer-engine/internal/orchestrator"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler exposes the orchestrator control surface over HTTP.
type Handler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

func NewHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{orch: orch, logger: logger}
}

// RegisterRoutes attaches all v1 routes to the group.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	r.GET("/health", h.GetHealth)
	r.GET("/reports/latest", h.GetLatestReport)
	r.GET("/reports", h.ListReports)
	r.POST("/optimize", h.TriggerOptimization)
	r.GET("/rules", h.ListRules)
	r.POST("/rules", h.AddRule)
	r.DELETE("/rules/:id", h.RemoveRule)
	r.PATCH("/config", h.UpdateConfig)
	r.GET("/insights", h.GetInsights)
}

// GetHealth returns the most recent system health rollup.
func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.SystemHealth())
}

// GetLatestReport returns the most recent optimization report, or 404 before
// the first cycle completes.
func (h *Handler) GetLatestReport(c *gin.Context) {
	report, ok := h.orch.LastReport()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "no reports yet",
			Message: "no optimization cycle has completed",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListReports returns up to ?limit= reports, most recent first.
func (h *Handler) ListReports(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid limit",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, gin.H{"reports": h.orch.History(limit)})
}

// TriggerOptimization runs a cycle immediately. Returns 409 if one is
// already running.
func (h *Handler) TriggerOptimization(c *gin.Context) {
	report, err := h.orch.TriggerOptimizationCycle(c.Request.Context())
	if err != nil {
		if errors.Is(err, orchestrator.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("manual optimization failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "optimization cycle failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListRules returns the installed automation rules.
func (h *Handler) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.orch.Rules()})
}

// AddRule validates and installs an automation rule.
func (h *Handler) AddRule(c *gin.Context) {
	var rule models.AutomationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Message: err.Error(),
		})
		return
	}
	if err := h.orch.AddRule(rule); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "rule rejected",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// RemoveRule deletes a rule by ID.
func (h *Handler) RemoveRule(c *gin.Context) {
	id := c.Param("id")
	if !h.orch.RemoveRule(id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "rule not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateConfig applies a runtime configuration patch.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var patch orchestrator.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Message: err.Error(),
		})
		return
	}
	cfg, err := h.orch.UpdateConfig(patch)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid configuration",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// GetInsights returns recurring issues mined from the report history.
func (h *Handler) GetInsights(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"insights": h.orch.Insights()})
}
