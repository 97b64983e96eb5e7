package handler

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/usecase"
)

// AdminHandler exposes disk and scratch space administration
type AdminHandler struct {
	allocator *usecase.DiskAllocator
	janitor   *usecase.Janitor
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(allocator *usecase.DiskAllocator, janitor *usecase.Janitor) *AdminHandler {
	return &AdminHandler{allocator: allocator, janitor: janitor}
}

// RegisterRoutes registers admin routes on a group already guarded for admins
func (h *AdminHandler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/storage", h.Storage)
	admin.GET("/storage/report", h.StorageReport)
	admin.GET("/temp/info", h.TempInfo)
	admin.POST("/temp/cleanup", h.Cleanup)
	admin.POST("/temp/cleanup/:hours", h.Cleanup)
}

// Storage returns capacity of every configured disk
// @Router /api/admin/storage [get]
func (h *AdminHandler) Storage(c *gin.Context) {
	c.JSON(http.StatusOK, h.allocator.Report(c.Request.Context()))
}

// StorageReport returns a plain text disk usage report
// @Router /api/admin/storage/report [get]
func (h *AdminHandler) StorageReport(c *gin.Context) {
	c.String(http.StatusOK, h.allocator.UsageReport(c.Request.Context()))
}

// TempInfo summarizes scratch space
// @Router /api/admin/temp/info [get]
func (h *AdminHandler) TempInfo(c *gin.Context) {
	info, err := h.janitor.TempInfo(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// maxCleanupHours keeps hours * time.Hour inside a Duration
const maxCleanupHours = uint64(math.MaxInt64 / int64(time.Hour))

// Cleanup runs a sweep now. Without an hours parameter the configured
// threshold applies.
// @Router /api/admin/temp/cleanup/{hours} [post]
func (h *AdminHandler) Cleanup(c *gin.Context) {
	maxAge := h.janitor.Settings().MaxAge
	if raw := c.Param("hours"); raw != "" {
		hours, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || hours > maxCleanupHours {
			writeError(c, fmt.Errorf("%w: hours must be an integer in 0..%d", entities.ErrInvalidRequest, maxCleanupHours))
			return
		}
		maxAge = time.Duration(hours) * time.Hour
	}

	result, err := h.janitor.Sweep(c.Request.Context(), maxAge)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          "temp cleanup completed",
		"max_age_hours":    maxAge.Hours(),
		"cleaned_sessions": result.CleanedSessions,
		"cleaned_orphans":  result.CleanedOrphans,
		"freed_space":      result.FreedBytes,
	})
}
