package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/usecase"
	"github.com/zots0127/drive/internal/usecase/mocks"
)

func newMockUploadUseCase(sessions *mocks.MockSessionRepository, storage *mocks.MockDiskStorage, allocator *usecase.DiskAllocator) *usecase.UploadUseCase {
	logger := zap.NewNop().Sugar()
	locks := usecase.NewSessionLocker()
	return usecase.NewUploadUseCase(
		sessions, storage, allocator, locks,
		usecase.NewChunkReceiver(sessions, storage, locks, logger),
		usecase.NewFinalizer(sessions, new(mocks.MockFileRepository), storage, locks, nil, logger),
		usecase.UploadLimits{MaxFileSize: 1 << 30},
		logger,
	)
}

func roomyAllocator() *usecase.DiskAllocator {
	probe := new(mocks.MockDiskProbe)
	probe.On("Probe", mock.Anything, "/d").Return(disk("/d", 1<<40, 1<<40))
	return usecase.NewDiskAllocator([]string{"/d"}, probe, 0)
}

func TestUploadUseCase_Initiate(t *testing.T) {
	tests := []struct {
		name        string
		req         entities.InitiateUploadRequest
		allocator   func() *usecase.DiskAllocator
		setupMock   func(*mocks.MockSessionRepository, *mocks.MockDiskStorage)
		expectError error
		chunkSize   int64
	}{
		{
			name:      "default chunk size",
			req:       entities.InitiateUploadRequest{Filename: "a.txt", TotalSize: 12 << 20},
			allocator: roomyAllocator,
			setupMock: func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {
				d.On("CreateTempDir", "/d", mock.Anything).Return("/d/temp/x", nil)
				s.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
			chunkSize: usecase.DefaultChunkSize,
		},
		{
			name:        "empty filename",
			req:         entities.InitiateUploadRequest{Filename: "  ", TotalSize: 10},
			allocator:   roomyAllocator,
			setupMock:   func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {},
			expectError: entities.ErrInvalidRequest,
		},
		{
			name:        "zero total size",
			req:         entities.InitiateUploadRequest{Filename: "a", TotalSize: 0},
			allocator:   roomyAllocator,
			setupMock:   func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {},
			expectError: entities.ErrInvalidRequest,
		},
		{
			name:        "file above limit",
			req:         entities.InitiateUploadRequest{Filename: "a", TotalSize: 1<<30 + 1},
			allocator:   roomyAllocator,
			setupMock:   func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {},
			expectError: entities.ErrInvalidRequest,
		},
		{
			name:        "negative chunk size",
			req:         entities.InitiateUploadRequest{Filename: "a", TotalSize: 10, ChunkSize: -1},
			allocator:   roomyAllocator,
			setupMock:   func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {},
			expectError: entities.ErrInvalidRequest,
		},
		{
			name:        "chunk size above limit",
			req:         entities.InitiateUploadRequest{Filename: "a", TotalSize: 10, ChunkSize: usecase.DefaultMaxChunkSize + 1},
			allocator:   roomyAllocator,
			setupMock:   func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {},
			expectError: entities.ErrInvalidRequest,
		},
		{
			name: "no space leaves nothing behind",
			req:  entities.InitiateUploadRequest{Filename: "a", TotalSize: 1000, ChunkSize: 100},
			allocator: func() *usecase.DiskAllocator {
				probe := new(mocks.MockDiskProbe)
				probe.On("Probe", mock.Anything, "/d").Return(disk("/d", 1000, 999))
				return usecase.NewDiskAllocator([]string{"/d"}, probe, 0)
			},
			setupMock:   func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {},
			expectError: entities.ErrNoSpaceAvailable,
		},
		{
			name:      "record failure removes the temp dir",
			req:       entities.InitiateUploadRequest{Filename: "a", TotalSize: 10, ChunkSize: 5},
			allocator: roomyAllocator,
			setupMock: func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {
				d.On("CreateTempDir", "/d", mock.Anything).Return("/d/temp/x", nil)
				s.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk I/O error"))
				d.On("RemoveTempDir", "/d/temp/x").Return(uint64(0), nil)
			},
			expectError: errors.New("disk I/O error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := new(mocks.MockSessionRepository)
			storage := new(mocks.MockDiskStorage)
			tt.setupMock(sessions, storage)

			uc := newMockUploadUseCase(sessions, storage, tt.allocator())
			resp, err := uc.Initiate(context.Background(), "alice", &tt.req)

			if tt.expectError != nil {
				require.Error(t, err)
				if errors.Is(tt.expectError, entities.ErrInvalidRequest) || errors.Is(tt.expectError, entities.ErrNoSpaceAvailable) {
					assert.ErrorIs(t, err, tt.expectError)
				} else {
					assert.Contains(t, err.Error(), tt.expectError.Error())
				}
				assert.Nil(t, resp)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.chunkSize, resp.ChunkSize)
				assert.NotEmpty(t, resp.UploadID)
			}

			sessions.AssertExpectations(t)
			storage.AssertExpectations(t)
		})
	}
}

func TestUploadUseCase_InitiateStripsPath(t *testing.T) {
	sessions := new(mocks.MockSessionRepository)
	storage := new(mocks.MockDiskStorage)
	storage.On("CreateTempDir", "/d", mock.Anything).Return("/d/temp/x", nil)
	sessions.On("Create", mock.Anything, mock.MatchedBy(func(s *entities.UploadSession) bool {
		return s.Filename == "passwd" && !strings.Contains(s.Filename, "/")
	})).Return(nil)

	uc := newMockUploadUseCase(sessions, storage, roomyAllocator())
	_, err := uc.Initiate(context.Background(), "alice", &entities.InitiateUploadRequest{
		Filename: "../../etc/passwd", TotalSize: 10,
	})
	require.NoError(t, err)
	sessions.AssertExpectations(t)
}

func TestFinalizer_FailuresLeaveSessionActive(t *testing.T) {
	active := func() *entities.UploadSession {
		return &entities.UploadSession{
			ID: "u1", Owner: "alice", Filename: "a.txt", TotalSize: 10, ChunkSize: 5, TotalChunks: 2,
			ReceivedChunks: []int{1, 2}, TempPath: "/d/temp/u1", DiskPath: "/d",
			Status: entities.UploadStatusActive,
		}
	}

	tests := []struct {
		name      string
		setupMock func(*mocks.MockSessionRepository, *mocks.MockDiskStorage)
		wantErr   error
	}{
		{
			name: "assembled size differs",
			setupMock: func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {
				d.On("Assemble", mock.Anything, "/d/temp/u1", 2, "/d/users/alice/f.txt").Return("/d/users/alice/.stage", int64(9), nil)
				d.On("RemoveFile", "/d/users/alice/.stage").Return(nil)
			},
			wantErr: entities.ErrSizeMismatch,
		},
		{
			name: "publish fails",
			setupMock: func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {
				d.On("Assemble", mock.Anything, "/d/temp/u1", 2, "/d/users/alice/f.txt").Return("/d/users/alice/.stage", int64(10), nil)
				d.On("DetectMime", "/d/users/alice/.stage").Return("text/plain")
				d.On("Publish", "/d/users/alice/.stage", "/d/users/alice/f.txt").Return(errors.New("rename failed"))
				d.On("RemoveFile", "/d/users/alice/.stage").Return(nil)
			},
		},
		{
			name: "record fails after publish",
			setupMock: func(s *mocks.MockSessionRepository, d *mocks.MockDiskStorage) {
				d.On("Assemble", mock.Anything, "/d/temp/u1", 2, "/d/users/alice/f.txt").Return("/d/users/alice/.stage", int64(10), nil)
				d.On("DetectMime", "/d/users/alice/.stage").Return("text/plain")
				d.On("Publish", "/d/users/alice/.stage", "/d/users/alice/f.txt").Return(nil)
				s.On("CommitFinalization", mock.Anything, "u1", mock.Anything).Return(errors.New("database is locked"))
				d.On("RemoveFile", "/d/users/alice/f.txt").Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := new(mocks.MockSessionRepository)
			storage := new(mocks.MockDiskStorage)
			sessions.On("Get", mock.Anything, "u1").Return(active(), nil)
			storage.On("FinalPath", "/d", "alice", mock.AnythingOfType("string")).Return("/d/users/alice/f.txt")
			tt.setupMock(sessions, storage)

			uc := newMockUploadUseCase(sessions, storage, roomyAllocator())
			file, err := uc.Complete(context.Background(), "alice", "u1")

			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Nil(t, file)

			sessions.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything)
			storage.AssertNotCalled(t, "RemoveTempDir", mock.Anything)
			sessions.AssertExpectations(t)
			storage.AssertExpectations(t)
		})
	}
}

func TestFinalizer_ReplicatesCompletedFile(t *testing.T) {
	sessions := new(mocks.MockSessionRepository)
	storage := new(mocks.MockDiskStorage)
	replicator := new(mocks.MockFileReplicator)

	sessions.On("Get", mock.Anything, "u1").Return(&entities.UploadSession{
		ID: "u1", Owner: "alice", Filename: "a.TXT", TotalSize: 4, ChunkSize: 4, TotalChunks: 1,
		ReceivedChunks: []int{1}, TempPath: "/d/temp/u1", DiskPath: "/d", Status: entities.UploadStatusActive,
	}, nil)
	storage.On("FinalPath", "/d", "alice", mock.MatchedBy(func(name string) bool {
		return strings.HasSuffix(name, ".txt")
	})).Return("/d/users/alice/f.txt")
	storage.On("Assemble", mock.Anything, "/d/temp/u1", 1, "/d/users/alice/f.txt").Return("/d/users/alice/.stage", int64(4), nil)
	storage.On("DetectMime", "/d/users/alice/.stage").Return("text/plain; charset=utf-8")
	storage.On("Publish", "/d/users/alice/.stage", "/d/users/alice/f.txt").Return(nil)
	sessions.On("CommitFinalization", mock.Anything, "u1", mock.Anything).Return(nil)
	storage.On("RemoveTempDir", "/d/temp/u1").Return(uint64(4), nil)
	replicator.On("Enqueue", mock.MatchedBy(func(f *entities.StoredFile) bool {
		return f.UploadID == "u1" && f.Size == 4 && f.MimeType == "text/plain; charset=utf-8"
	})).Return()

	logger := zap.NewNop().Sugar()
	locks := usecase.NewSessionLocker()
	finalizer := usecase.NewFinalizer(sessions, new(mocks.MockFileRepository), storage, locks, replicator, logger)

	file, err := finalizer.Complete(context.Background(), "alice", "u1")
	require.NoError(t, err)
	assert.Equal(t, "/d/users/alice/f.txt", file.FilePath)

	sessions.AssertExpectations(t)
	storage.AssertExpectations(t)
	replicator.AssertExpectations(t)
}

func TestFinalizer_RepeatedCompleteReturnsStoredFile(t *testing.T) {
	sessions := new(mocks.MockSessionRepository)
	files := new(mocks.MockFileRepository)
	storage := new(mocks.MockDiskStorage)

	sessions.On("Get", mock.Anything, "u1").Return(&entities.UploadSession{
		ID: "u1", Owner: "alice", Filename: "a.txt", TotalSize: 4, ChunkSize: 4, TotalChunks: 1,
		ReceivedChunks: []int{1}, DiskPath: "/d", Status: entities.UploadStatusCompleted,
	}, nil)
	files.On("GetByUpload", mock.Anything, "u1").Return(&entities.StoredFile{
		ID: "f1", Owner: "alice", UploadID: "u1", FilePath: "/d/users/alice/f1.txt", Size: 4,
	}, nil)

	finalizer := usecase.NewFinalizer(sessions, files, storage, usecase.NewSessionLocker(), nil, zap.NewNop().Sugar())

	file, err := finalizer.Complete(context.Background(), "alice", "u1")
	require.NoError(t, err)
	assert.Equal(t, "f1", file.ID)

	_, err = finalizer.Complete(context.Background(), "mallory", "u1")
	assert.ErrorIs(t, err, entities.ErrForbidden)

	storage.AssertNotCalled(t, "Assemble", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	sessions.AssertNotCalled(t, "CommitFinalization", mock.Anything, mock.Anything, mock.Anything)
	files.AssertExpectations(t)
}
