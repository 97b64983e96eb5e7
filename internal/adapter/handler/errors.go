package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/drive/internal/domain/entities"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	MissingChunks []int  `json:"missing_chunks,omitempty"`
}

// statusFor maps a domain error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrSessionNotFound), errors.Is(err, entities.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entities.ErrSessionInactive),
		errors.Is(err, entities.ErrInvalidTransition),
		errors.Is(err, entities.ErrIncompleteUpload),
		errors.Is(err, entities.ErrFileNotDeleted):
		return http.StatusConflict
	case errors.Is(err, entities.ErrIndexOutOfRange),
		errors.Is(err, entities.ErrInvalidChunk),
		errors.Is(err, entities.ErrSizeMismatch),
		errors.Is(err, entities.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrNoSpaceAvailable):
		return http.StatusInsufficientStorage
	case errors.Is(err, entities.ErrDiskInaccessible):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as an ErrorResponse. Internal errors are recorded
// on the context for the logging middleware and not echoed to the client.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := ErrorResponse{
		Error: err.Error(),
		Code:  entities.ErrorCode(err),
	}

	var incomplete *entities.IncompleteUploadError
	if errors.As(err, &incomplete) {
		resp.MissingChunks = incomplete.Missing
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		resp.Error = "internal server error"
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: message,
		Code:  entities.CodeInvalidRequest,
	})
}
