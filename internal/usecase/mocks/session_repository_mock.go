package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/drive/internal/domain/entities"
)

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *entities.UploadSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*entities.UploadSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UploadSession), args.Error(1)
}

func (m *MockSessionRepository) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) MarkChunkReceived(ctx context.Context, id string, index int, size int64) error {
	args := m.Called(ctx, id, index, size)
	return args.Error(0)
}

func (m *MockSessionRepository) Transition(ctx context.Context, id string, status entities.UploadStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockSessionRepository) CommitFinalization(ctx context.Context, id string, file *entities.StoredFile) error {
	args := m.Called(ctx, id, file)
	return args.Error(0)
}

func (m *MockSessionRepository) ListActive(ctx context.Context, olderThan time.Time) ([]*entities.UploadSession, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.UploadSession), args.Error(1)
}

func (m *MockSessionRepository) CountActive(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
