package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

// MockDiskProbe is a mock implementation of DiskProbe
type MockDiskProbe struct {
	mock.Mock
}

func (m *MockDiskProbe) Probe(ctx context.Context, path string) entities.DiskRecord {
	args := m.Called(ctx, path)
	return args.Get(0).(entities.DiskRecord)
}

// MockDiskStorage is a mock implementation of DiskStorage
type MockDiskStorage struct {
	mock.Mock
}

func (m *MockDiskStorage) CreateTempDir(diskPath, uploadID string) (string, error) {
	args := m.Called(diskPath, uploadID)
	return args.String(0), args.Error(1)
}

func (m *MockDiskStorage) WriteChunkPart(tempPath string, index int, r io.Reader, limit int64) (string, int64, error) {
	args := m.Called(tempPath, index, r, limit)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

func (m *MockDiskStorage) CommitChunkPart(tempPath string, index int, partPath string) error {
	args := m.Called(tempPath, index, partPath)
	return args.Error(0)
}

func (m *MockDiskStorage) DiscardPart(partPath string) {
	m.Called(partPath)
}

func (m *MockDiskStorage) Assemble(ctx context.Context, tempPath string, totalChunks int, finalPath string) (string, int64, error) {
	args := m.Called(ctx, tempPath, totalChunks, finalPath)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

func (m *MockDiskStorage) Publish(stagingPath, finalPath string) error {
	args := m.Called(stagingPath, finalPath)
	return args.Error(0)
}

func (m *MockDiskStorage) FinalPath(diskPath, owner, storedName string) string {
	args := m.Called(diskPath, owner, storedName)
	return args.String(0)
}

func (m *MockDiskStorage) RemoveTempDir(tempPath string) (uint64, error) {
	args := m.Called(tempPath)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockDiskStorage) RemoveFile(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockDiskStorage) Open(path string) (io.ReadSeekCloser, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadSeekCloser), args.Error(1)
}

func (m *MockDiskStorage) DetectMime(path string) string {
	args := m.Called(path)
	return args.String(0)
}

func (m *MockDiskStorage) ListTempDirs(diskPath string) ([]repository.TempDir, error) {
	args := m.Called(diskPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.TempDir), args.Error(1)
}

// MockFileReplicator is a mock implementation of FileReplicator
type MockFileReplicator struct {
	mock.Mock
}

func (m *MockFileReplicator) Enqueue(file *entities.StoredFile) {
	m.Called(file)
}
