package config

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConfigHandler exposes the running configuration to administrators
type ConfigHandler struct {
	configManager *ConfigManager
}

// NewConfigHandler creates a new configuration handler
func NewConfigHandler(configManager *ConfigManager) *ConfigHandler {
	return &ConfigHandler{configManager: configManager}
}

// RegisterRoutes registers config routes on an admin group
func (h *ConfigHandler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/config", h.Show)
	admin.POST("/config/reload", h.Reload)
}

// Show returns the current configuration. Secrets are never serialized.
func (h *ConfigHandler) Show(c *gin.Context) {
	config := h.configManager.GetConfig()
	if config == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "configuration not available",
			"code":  "internal_error",
		})
		return
	}
	c.JSON(http.StatusOK, config)
}

// Reload re-reads the config file and applies hot-reloadable settings
func (h *ConfigHandler) Reload(c *gin.Context) {
	if err := h.configManager.Reload(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
			"code":  "invalid_request",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "configuration reloaded"})
}
