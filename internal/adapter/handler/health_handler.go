package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/usecase"
)

// HealthHandler serves the unauthenticated probe endpoints
type HealthHandler struct {
	health *usecase.HealthUseCase
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(health *usecase.HealthUseCase) *HealthHandler {
	return &HealthHandler{health: health}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.Engine) {
	probes := router.Group("/health")
	probes.GET("", h.Report)
	probes.GET("/live", h.Live)
	probes.GET("/ready", h.Ready)
}

// Report returns database, disk and session health. Partial still answers 200.
// @Router /health [get]
func (h *HealthHandler) Report(c *gin.Context) {
	report := h.health.Check(c.Request.Context())
	if report.Status == entities.HealthStatusDown {
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Live answers as long as the process can serve HTTP
// @Router /health/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "uptime": h.health.Uptime().String()})
}

// @Router /health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ready, message := h.health.Ready(c.Request.Context())
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "message": message})
}
