package entities

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Upload and storage errors. Validation failures are returned to the caller
// as rejections and never mutate session state.
var (
	ErrSessionNotFound   = errors.New("upload session not found")
	ErrSessionInactive   = errors.New("upload session is not active")
	ErrIndexOutOfRange   = errors.New("chunk index out of range")
	ErrSizeMismatch      = errors.New("size mismatch")
	ErrIncompleteUpload  = errors.New("upload is incomplete")
	ErrNoSpaceAvailable  = errors.New("no disk has enough space available")
	ErrDiskInaccessible  = errors.New("no storage disk is accessible")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrInvalidChunk      = errors.New("invalid chunk")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrForbidden         = errors.New("access denied")
	ErrFileNotFound      = errors.New("file not found")
	ErrFileNotDeleted    = errors.New("file is not in trash")
	ErrCancelled         = errors.New("upload cancelled")
)

// IncompleteUploadError lists the chunk indices still missing at completion time
type IncompleteUploadError struct {
	Missing []int
}

func (e *IncompleteUploadError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for i, idx := range e.Missing {
		if i == 10 {
			parts = append(parts, fmt.Sprintf("... (%d total)", len(e.Missing)))
			break
		}
		parts = append(parts, strconv.Itoa(idx))
	}
	return fmt.Sprintf("%s: missing chunks [%s]", ErrIncompleteUpload, strings.Join(parts, ", "))
}

func (e *IncompleteUploadError) Unwrap() error {
	return ErrIncompleteUpload
}

// ErrorCode values used on the wire
const (
	CodeSessionNotFound   = "session_not_found"
	CodeSessionInactive   = "session_inactive"
	CodeIndexOutOfRange   = "index_out_of_range"
	CodeSizeMismatch      = "size_mismatch"
	CodeIncompleteUpload  = "incomplete_upload"
	CodeNoSpaceAvailable  = "no_space_available"
	CodeDiskInaccessible  = "disk_inaccessible"
	CodeInvalidTransition = "invalid_transition"
	CodeInvalidRequest    = "invalid_request"
	CodeForbidden         = "forbidden"
	CodeFileNotFound      = "file_not_found"
	CodeFileNotDeleted    = "file_not_deleted"
	CodeInternal          = "internal_error"
)

var codeTable = []struct {
	err  error
	code string
}{
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrSessionInactive, CodeSessionInactive},
	{ErrIndexOutOfRange, CodeIndexOutOfRange},
	{ErrSizeMismatch, CodeSizeMismatch},
	{ErrIncompleteUpload, CodeIncompleteUpload},
	{ErrNoSpaceAvailable, CodeNoSpaceAvailable},
	{ErrDiskInaccessible, CodeDiskInaccessible},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrInvalidChunk, CodeIndexOutOfRange},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrForbidden, CodeForbidden},
	{ErrFileNotFound, CodeFileNotFound},
	{ErrFileNotDeleted, CodeFileNotDeleted},
}

// ErrorCode returns the wire code for err, or CodeInternal when unknown
func ErrorCode(err error) string {
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// ErrorFromCode maps a wire code back to its sentinel, or nil when unknown
func ErrorFromCode(code string) error {
	for _, entry := range codeTable {
		if entry.code == code {
			return entry.err
		}
	}
	return nil
}
