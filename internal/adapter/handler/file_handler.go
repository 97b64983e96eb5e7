package handler

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/drive/internal/usecase"
	"github.com/zots0127/drive/pkg/middleware"
)

// FileHandler exposes finalized files and the trash
type FileHandler struct {
	files     *usecase.FileUseCase
	allocator *usecase.DiskAllocator
}

// NewFileHandler creates a new file handler
func NewFileHandler(files *usecase.FileUseCase, allocator *usecase.DiskAllocator) *FileHandler {
	return &FileHandler{files: files, allocator: allocator}
}

// RegisterRoutes registers file, trash and per-user storage routes
func (h *FileHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/files", h.List)
	api.GET("/files/:id/download", h.Download)
	api.DELETE("/files/:id", h.Delete)

	api.GET("/trash", h.Trash)
	api.POST("/trash/:id/restore", h.Restore)
	api.DELETE("/trash/:id", h.Purge)

	api.GET("/user/storage", h.StorageInfo)
}

// List returns the caller's files
// @Router /api/files [get]
func (h *FileHandler) List(c *gin.Context) {
	files, err := h.files.List(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// Download streams a file's bytes
// @Router /api/files/{id}/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	file, r, err := h.files.Open(c.Request.Context(), middleware.Owner(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer r.Close()

	if file.MimeType != "" {
		c.Header("Content-Type", file.MimeType)
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": file.OriginalFilename,
	}))
	http.ServeContent(c.Writer, c.Request, file.OriginalFilename, file.CreatedAt, r)
}

// Delete moves a file to the trash
// @Router /api/files/{id} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), middleware.Owner(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Trash lists soft-deleted files
// @Router /api/trash [get]
func (h *FileHandler) Trash(c *gin.Context) {
	files, err := h.files.Trash(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// Restore takes a file out of the trash
// @Router /api/trash/{id}/restore [post]
func (h *FileHandler) Restore(c *gin.Context) {
	if err := h.files.Restore(c.Request.Context(), middleware.Owner(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file restored", "id": c.Param("id")})
}

// Purge permanently deletes a trashed file
// @Router /api/trash/{id} [delete]
func (h *FileHandler) Purge(c *gin.Context) {
	if err := h.files.Purge(c.Request.Context(), middleware.Owner(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StorageInfo reports disk capacity together with the caller's usage
// @Router /api/user/storage [get]
func (h *FileHandler) StorageInfo(c *gin.Context) {
	usage, err := h.files.Usage(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"storage": h.allocator.Report(c.Request.Context()),
		"usage":   usage,
	})
}
