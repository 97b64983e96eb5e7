package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zots0127/drive/internal/domain/entities"
)

// Transport carries the upload protocol to the server
type Transport interface {
	Initiate(ctx context.Context, req *entities.InitiateUploadRequest) (*entities.InitiateUploadResponse, error)
	UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (*entities.ChunkReceipt, error)
	Complete(ctx context.Context, uploadID string) (*entities.FileInfo, error)
	Status(ctx context.Context, uploadID string) (*entities.UploadSessionView, error)
	Cancel(ctx context.Context, uploadID string) error
}

// APIError is a rejection returned by the server
type APIError struct {
	Status        int
	Code          string
	Message       string
	MissingChunks []int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the wire code back to its sentinel so callers can use errors.Is
func (e *APIError) Unwrap() error {
	if e.Code == entities.CodeIncompleteUpload {
		return &entities.IncompleteUploadError{Missing: e.MissingChunks}
	}
	return entities.ErrorFromCode(e.Code)
}

// HTTPTransport talks to the drive HTTP API with a bearer token
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPTransport creates a transport for baseURL. A nil client gets a
// default one with a generous per-request timeout.
func NewHTTPTransport(baseURL, token string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (t *HTTPTransport) Initiate(ctx context.Context, req *entities.InitiateUploadRequest) (*entities.InitiateUploadResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var resp entities.InitiateUploadResponse
	if err := t.do(ctx, http.MethodPost, "/api/upload/initiate", "application/json", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *HTTPTransport) UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (*entities.ChunkReceipt, error) {
	path := "/api/upload/" + url.PathEscape(uploadID) + "/chunk/" + strconv.Itoa(index)

	var receipt entities.ChunkReceipt
	if err := t.do(ctx, http.MethodPost, path, "application/octet-stream", data, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (t *HTTPTransport) Complete(ctx context.Context, uploadID string) (*entities.FileInfo, error) {
	var info entities.FileInfo
	if err := t.do(ctx, http.MethodPost, "/api/upload/"+url.PathEscape(uploadID)+"/complete", "", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (t *HTTPTransport) Status(ctx context.Context, uploadID string) (*entities.UploadSessionView, error) {
	var view entities.UploadSessionView
	if err := t.do(ctx, http.MethodGet, "/api/upload/"+url.PathEscape(uploadID)+"/status", "", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (t *HTTPTransport) Cancel(ctx context.Context, uploadID string) error {
	return t.do(ctx, http.MethodDelete, "/api/upload/"+url.PathEscape(uploadID)+"/cancel", "", nil, nil)
}

func (t *HTTPTransport) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Error         string `json:"error"`
		Code          string `json:"code"`
		MissingChunks []int  `json:"missing_chunks"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
		apiErr.MissingChunks = payload.MissingChunks
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Retryable reports whether a failed request may succeed when repeated.
// Network failures and server-side faults are retryable; rejections of the
// request itself are not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests:
			return true
		case apiErr.Status == http.StatusInsufficientStorage:
			return false
		default:
			return apiErr.Status >= 500
		}
	}
	return true
}
