package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/drive/internal/domain/entities"
)

// MockFileRepository is a mock implementation of FileRepository
type MockFileRepository struct {
	mock.Mock
}

func (m *MockFileRepository) Get(ctx context.Context, id string) (*entities.StoredFile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.StoredFile), args.Error(1)
}

func (m *MockFileRepository) GetByUpload(ctx context.Context, uploadID string) (*entities.StoredFile, error) {
	args := m.Called(ctx, uploadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.StoredFile), args.Error(1)
}

func (m *MockFileRepository) ListByOwner(ctx context.Context, owner string, deleted bool) ([]*entities.StoredFile, error) {
	args := m.Called(ctx, owner, deleted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.StoredFile), args.Error(1)
}

func (m *MockFileRepository) SoftDelete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFileRepository) Restore(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFileRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
