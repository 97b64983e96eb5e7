package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/adapter/handler"
	"github.com/zots0127/drive/internal/domain/entities"
	infra "github.com/zots0127/drive/internal/infrastructure/repository"
	"github.com/zots0127/drive/internal/usecase"
	"github.com/zots0127/drive/pkg/middleware"
)

var secret = []byte("handler-test-secret")

type server struct {
	router *gin.Engine
	disk   string
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := infra.OpenDatabase(filepath.Join(t.TempDir(), "drive.db"), infra.DatabaseOptions{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	disk := t.TempDir()
	disks := []string{disk}
	logger := zap.NewNop().Sugar()

	sessions := infra.NewSessionRepository(db)
	files := infra.NewFileRepository(db)
	storage := infra.NewDiskStorage()
	probe := infra.NewDiskProbe()
	locks := usecase.NewSessionLocker()

	allocator := usecase.NewDiskAllocator(disks, probe, 0)
	receiver := usecase.NewChunkReceiver(sessions, storage, locks, logger)
	finalizer := usecase.NewFinalizer(sessions, files, storage, locks, nil, logger)
	uploads := usecase.NewUploadUseCase(sessions, storage, allocator, locks, receiver, finalizer, usecase.UploadLimits{}, logger)
	janitor := usecase.NewJanitor(sessions, storage, disks, locks, usecase.JanitorSettings{Enabled: true}, logger)
	health := usecase.NewHealthUseCase(infra.NewHealthRepository(db, disks, probe, sessions), "test")

	router := handler.NewRouter(handler.Handlers{
		Health: handler.NewHealthHandler(health),
		Upload: handler.NewUploadHandler(uploads),
		Files:  handler.NewFileHandler(usecase.NewFileUseCase(files, storage, logger), allocator),
		Admin:  handler.NewAdminHandler(allocator, janitor),
	}, middleware.NewAuthentication(middleware.AuthConfig{Secret: secret}, logger))

	return &server{router: router, disk: disk}
}

func token(t *testing.T, owner string, admin bool) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func (s *server) do(t *testing.T, method, path, owner string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, owner, owner == "admin"))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) initiate(t *testing.T, owner string, size, chunk int64) entities.InitiateUploadResponse {
	t.Helper()
	body := fmt.Sprintf(`{"filename":"notes.txt","total_size":%d,"chunk_size":%d}`, size, chunk)
	w := s.do(t, http.MethodPost, "/api/upload/initiate", owner, bytes.NewBufferString(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp entities.InitiateUploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestUploadRoundTrip(t *testing.T) {
	s := newServer(t)
	data := []byte("hello, chunked world")

	init := s.initiate(t, "alice", int64(len(data)), 8)
	assert.Equal(t, 3, init.TotalChunks)
	assert.EqualValues(t, 8, init.ChunkSize)

	base := "/api/upload/" + init.UploadID
	order := []int{3, 1, 2}
	for n, idx := range order {
		start := (idx - 1) * 8
		end := min(start+8, len(data))
		w := s.do(t, http.MethodPost, fmt.Sprintf("%s/chunk/%d", base, idx), "alice", bytes.NewReader(data[start:end]))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var receipt entities.ChunkReceipt
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
		assert.Equal(t, idx, receipt.ChunkNumber)
		assert.True(t, receipt.Uploaded)
		assert.Equal(t, n == len(order)-1, receipt.UploadCompleted)
	}

	w := s.do(t, http.MethodGet, base+"/status", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view entities.UploadSessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, []int{1, 2, 3}, view.ReceivedChunks)
	assert.Equal(t, entities.UploadStatusActive, view.Status)

	w = s.do(t, http.MethodPost, base+"/complete", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var info entities.FileInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "notes.txt", info.OriginalFilename)
	assert.EqualValues(t, len(data), info.FileSize)

	w = s.do(t, http.MethodGet, "/api/files/"+info.ID+"/download", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, data, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename=notes.txt`)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	w = s.do(t, http.MethodPost, base+"/complete", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var again entities.FileInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.Equal(t, info.ID, again.ID)
}

func TestUploadErrors(t *testing.T) {
	s := newServer(t)
	init := s.initiate(t, "alice", 20, 8)
	base := "/api/upload/" + init.UploadID

	tests := []struct {
		name       string
		method     string
		path       string
		owner      string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "unauthenticated", method: http.MethodGet, path: base + "/status", wantStatus: http.StatusUnauthorized},
		{name: "unknown session", method: http.MethodGet, path: "/api/upload/nope/status", owner: "alice", wantStatus: http.StatusNotFound, wantCode: entities.CodeSessionNotFound},
		{name: "other owner", method: http.MethodGet, path: base + "/status", owner: "bob", wantStatus: http.StatusForbidden, wantCode: entities.CodeForbidden},
		{name: "index zero", method: http.MethodPost, path: base + "/chunk/0", owner: "alice", body: "12345678", wantStatus: http.StatusBadRequest, wantCode: entities.CodeIndexOutOfRange},
		{name: "index past end", method: http.MethodPost, path: base + "/chunk/4", owner: "alice", body: "1234", wantStatus: http.StatusBadRequest, wantCode: entities.CodeIndexOutOfRange},
		{name: "index not a number", method: http.MethodPost, path: base + "/chunk/x", owner: "alice", body: "1234", wantStatus: http.StatusBadRequest, wantCode: entities.CodeIndexOutOfRange},
		{name: "short chunk", method: http.MethodPost, path: base + "/chunk/1", owner: "alice", body: "1234", wantStatus: http.StatusBadRequest, wantCode: entities.CodeSizeMismatch},
		{name: "long last chunk", method: http.MethodPost, path: base + "/chunk/3", owner: "alice", body: "12345", wantStatus: http.StatusBadRequest, wantCode: entities.CodeSizeMismatch},
		{name: "bad initiate body", method: http.MethodPost, path: "/api/upload/initiate", owner: "alice", body: `{"filename":`, wantStatus: http.StatusBadRequest, wantCode: entities.CodeInvalidRequest},
		{name: "zero size", method: http.MethodPost, path: "/api/upload/initiate", owner: "alice", body: `{"filename":"a","total_size":0}`, wantStatus: http.StatusBadRequest, wantCode: entities.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.owner, bytes.NewBufferString(tt.body))
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
			}
		})
	}

	t.Run("early complete lists missing chunks", func(t *testing.T) {
		w := s.do(t, http.MethodPost, base+"/chunk/2", "alice", bytes.NewBufferString("abcdefgh"))
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, http.MethodPost, base+"/complete", "alice", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, entities.CodeIncompleteUpload, resp.Code)
		assert.Equal(t, []int{1, 3}, resp.MissingChunks)
	})

	t.Run("cancel then chunk is rejected", func(t *testing.T) {
		w := s.do(t, http.MethodDelete, base+"/cancel", "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"freed_space":8`)

		w = s.do(t, http.MethodPost, base+"/chunk/1", "alice", bytes.NewBufferString("abcdefgh"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, entities.CodeSessionInactive, decodeError(t, w).Code)

		w = s.do(t, http.MethodDelete, base+"/cancel", "alice", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestTrashRoutes(t *testing.T) {
	s := newServer(t)
	init := s.initiate(t, "alice", 4, 4)
	base := "/api/upload/" + init.UploadID
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/chunk/1", "alice", bytes.NewBufferString("data")).Code)
	w := s.do(t, http.MethodPost, base+"/complete", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info entities.FileInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))

	w = s.do(t, http.MethodDelete, "/api/trash/"+info.ID, "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, entities.CodeFileNotDeleted, decodeError(t, w).Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/api/files/"+info.ID, "bob", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/files/"+info.ID, "alice", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/files/"+info.ID+"/download", "alice", nil).Code)

	w = s.do(t, http.MethodGet, "/api/trash", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trash []entities.FileInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trash))
	require.Len(t, trash, 1)
	assert.NotNil(t, trash[0].DeletedAt)

	w = s.do(t, http.MethodGet, "/api/user/storage", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"trash_space":4`)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/trash/"+info.ID+"/restore", "alice", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/files/"+info.ID+"/download", "alice", nil).Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/files/"+info.ID, "alice", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/trash/"+info.ID, "alice", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/trash/"+info.ID+"/restore", "alice", nil).Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/storage", "alice", nil).Code)

	w := s.do(t, http.MethodGet, "/api/admin/storage", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info entities.StorageInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 1, info.DiskCount)
	assert.True(t, info.Disks[0].IsAccessible)

	w = s.do(t, http.MethodGet, "/api/admin/storage/report", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Disk Usage Report:")

	init := s.initiate(t, "alice", 16, 8)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/upload/"+init.UploadID+"/chunk/1", "alice", bytes.NewBufferString("abcdefgh")).Code)

	w = s.do(t, http.MethodGet, "/api/admin/temp/info", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var temp entities.TempFilesInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &temp))
	assert.Equal(t, 1, temp.TotalFiles)
	assert.EqualValues(t, 8, temp.TotalSize)

	w = s.do(t, http.MethodPost, "/api/admin/temp/cleanup", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleaned_sessions":0`)

	w = s.do(t, http.MethodPost, "/api/admin/temp/cleanup/x", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// would wrap to a negative or tiny Duration and sweep live sessions
	for _, hours := range []string{"2562048", "4294967295", "18446744073709551615"} {
		w = s.do(t, http.MethodPost, "/api/admin/temp/cleanup/"+hours, "admin", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, hours)
	}
	w = s.do(t, http.MethodPost, "/api/admin/temp/cleanup/2562047", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleaned_sessions":0`)

	w = s.do(t, http.MethodPost, "/api/admin/temp/cleanup/0", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleaned_sessions":1`)
	assert.Contains(t, w.Body.String(), `"freed_space":8`)

	w = s.do(t, http.MethodGet, "/api/upload/"+init.UploadID+"/status", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"expired"`)
}

func TestHealthRoutes(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health entities.HealthCheck
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "test", health.Version)
	assert.Contains(t, health.Checks, "database")
	assert.Contains(t, health.Checks, "disks")

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", "", nil).Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
