package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/drive/internal/domain/entities"
)

// MockHealthRepository is a mock implementation of HealthRepository
type MockHealthRepository struct {
	mock.Mock
}

func (m *MockHealthRepository) CheckDatabase(ctx context.Context) entities.CheckResult {
	args := m.Called(ctx)
	return args.Get(0).(entities.CheckResult)
}

func (m *MockHealthRepository) CheckDisks(ctx context.Context) entities.CheckResult {
	args := m.Called(ctx)
	return args.Get(0).(entities.CheckResult)
}

func (m *MockHealthRepository) UploadStats(ctx context.Context) (entities.UploadStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(entities.UploadStats), args.Error(1)
}
