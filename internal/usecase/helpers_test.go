package usecase_test

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
	infra "github.com/zots0127/drive/internal/infrastructure/repository"
	"github.com/zots0127/drive/internal/usecase"
	"github.com/zots0127/drive/internal/usecase/mocks"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testEnv wires the upload stack over a real SQLite file and a temp disk
type testEnv struct {
	disk     string
	clock    *testClock
	sessions *infra.SessionRepositoryImpl
	files    *infra.FileRepositoryImpl
	storage  repository.DiskStorage
	locks    *usecase.SessionLocker
	uploads  *usecase.UploadUseCase
	janitor  *usecase.Janitor
	fileUC   *usecase.FileUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := infra.OpenDatabase(filepath.Join(t.TempDir(), "drive.db"), infra.DatabaseOptions{MaxOpenConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	disk := t.TempDir()
	clock := newTestClock()
	logger := zap.NewNop().Sugar()

	sessions := infra.NewSessionRepository(db).WithClock(clock.Now)
	files := infra.NewFileRepository(db)
	storage := infra.NewDiskStorage()
	locks := usecase.NewSessionLocker()

	probe := new(mocks.MockDiskProbe)
	probe.On("Probe", mock.Anything, disk).Return(entities.DiskRecord{
		Path:           disk,
		TotalSpace:     1 << 40,
		AvailableSpace: 1 << 39,
		IsAccessible:   true,
	})
	allocator := usecase.NewDiskAllocator([]string{disk}, probe, 0)

	receiver := usecase.NewChunkReceiver(sessions, storage, locks, logger)
	finalizer := usecase.NewFinalizer(sessions, files, storage, locks, nil, logger)
	uploads := usecase.NewUploadUseCase(sessions, storage, allocator, locks, receiver, finalizer, usecase.UploadLimits{}, logger)
	janitor := usecase.NewJanitor(sessions, storage, []string{disk}, locks, usecase.JanitorSettings{}, logger).WithClock(clock.Now)

	return &testEnv{
		disk:     disk,
		clock:    clock,
		sessions: sessions,
		files:    files,
		storage:  storage,
		locks:    locks,
		uploads:  uploads,
		janitor:  janitor,
		fileUC:   usecase.NewFileUseCase(files, storage, logger),
	}
}

func (e *testEnv) initiate(t *testing.T, owner string, totalSize, chunkSize int64) string {
	t.Helper()
	resp, err := e.uploads.Initiate(context.Background(), owner, &entities.InitiateUploadRequest{
		Filename:  "data.bin",
		TotalSize: totalSize,
		ChunkSize: chunkSize,
	})
	require.NoError(t, err)
	return resp.UploadID
}

func (e *testEnv) send(t *testing.T, owner, id string, index int, payload []byte) *entities.ChunkReceipt {
	t.Helper()
	receipt, err := e.uploads.ReceiveChunk(context.Background(), owner, id, index, bytes.NewReader(payload))
	require.NoError(t, err)
	return receipt
}

func randomBytes(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func chunkOf(data []byte, chunkSize int64, index int) []byte {
	start := int64(index-1) * chunkSize
	end := start + chunkSize
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[start:end]
}
