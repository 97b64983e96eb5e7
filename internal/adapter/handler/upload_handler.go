package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/usecase"
	"github.com/zots0127/drive/pkg/middleware"
)

// UploadHandler exposes the chunked upload session API
type UploadHandler struct {
	uploads *usecase.UploadUseCase
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(uploads *usecase.UploadUseCase) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// RegisterRoutes registers upload routes on an authenticated group
func (h *UploadHandler) RegisterRoutes(api *gin.RouterGroup) {
	upload := api.Group("/upload")
	upload.POST("/initiate", h.Initiate)
	upload.POST("/:upload_id/chunk/:chunk_number", h.UploadChunk)
	upload.POST("/:upload_id/complete", h.Complete)
	upload.GET("/:upload_id/status", h.Status)
	upload.DELETE("/:upload_id/cancel", h.Cancel)
}

// Initiate opens a new upload session
// @Router /api/upload/initiate [post]
func (h *UploadHandler) Initiate(c *gin.Context) {
	var req entities.InitiateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := h.uploads.Initiate(c.Request.Context(), middleware.Owner(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UploadChunk stores the raw request body as one chunk
// @Router /api/upload/{upload_id}/chunk/{chunk_number} [post]
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("chunk_number"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: %q is not a chunk number", entities.ErrIndexOutOfRange, c.Param("chunk_number")))
		return
	}

	receipt, err := h.uploads.ReceiveChunk(c.Request.Context(), middleware.Owner(c), c.Param("upload_id"), index, c.Request.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// Complete assembles the received chunks into the final file
// @Router /api/upload/{upload_id}/complete [post]
func (h *UploadHandler) Complete(c *gin.Context) {
	file, err := h.uploads.Complete(c.Request.Context(), middleware.Owner(c), c.Param("upload_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, file.Info())
}

// Status reports which chunks have been received
// @Router /api/upload/{upload_id}/status [get]
func (h *UploadHandler) Status(c *gin.Context) {
	view, err := h.uploads.Status(c.Request.Context(), middleware.Owner(c), c.Param("upload_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Cancel abandons the session and frees its scratch space
// @Router /api/upload/{upload_id}/cancel [delete]
func (h *UploadHandler) Cancel(c *gin.Context) {
	result, err := h.uploads.Cancel(c.Request.Context(), middleware.Owner(c), c.Param("upload_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "upload cancelled",
		"upload_id":   result.UploadID,
		"freed_space": result.FreedBytes,
	})
}
