package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/zots0127/drive/pkg/config"
	"github.com/zots0127/drive/pkg/middleware"
)

// Handlers groups every HTTP handler the server mounts
type Handlers struct {
	Health *HealthHandler
	Upload *UploadHandler
	Files  *FileHandler
	Admin  *AdminHandler
	// Config is optional; when set its routes are mounted under /api/admin
	Config *config.ConfigHandler
}

// NewRouter builds the gin engine: health endpoints are public, everything
// under /api requires a bearer token and /api/admin additionally the admin claim
func NewRouter(h Handlers, auth *middleware.Authentication, global ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(global...)
	router.Use(middleware.SecurityHeaders())

	h.Health.RegisterRoutes(router)

	api := router.Group("/api", auth.Middleware())
	h.Upload.RegisterRoutes(api)
	h.Files.RegisterRoutes(api)

	admin := api.Group("/admin", auth.RequireAdmin())
	h.Admin.RegisterRoutes(admin)
	if h.Config != nil {
		h.Config.RegisterRoutes(admin)
	}

	return router
}
