package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/usecase"
	"github.com/zots0127/drive/internal/usecase/mocks"
)

var (
	up      = entities.CheckResult{Status: entities.HealthStatusUp}
	partial = entities.CheckResult{Status: entities.HealthStatusPartial, Message: "some disks are unavailable or nearly full"}
	down    = entities.CheckResult{Status: entities.HealthStatusDown, Message: "no storage disk is accessible"}
)

func TestHealthUseCase_Check(t *testing.T) {
	tests := []struct {
		name       string
		database   entities.CheckResult
		disks      entities.CheckResult
		statsErr   error
		wantStatus entities.HealthStatus
	}{
		{name: "everything up", database: up, disks: up, wantStatus: entities.HealthStatusUp},
		{name: "one disk degraded", database: up, disks: partial, wantStatus: entities.HealthStatusPartial},
		{name: "store down", database: down, disks: up, wantStatus: entities.HealthStatusDown},
		{name: "session count fails", database: up, disks: up, statsErr: errors.New("database is locked"), wantStatus: entities.HealthStatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probes := new(mocks.MockHealthRepository)
			probes.On("CheckDatabase", mock.Anything).Return(tt.database)
			probes.On("CheckDisks", mock.Anything).Return(tt.disks)
			probes.On("UploadStats", mock.Anything).Return(entities.UploadStats{ActiveSessions: 3, Goroutines: 12}, tt.statsErr)

			report := usecase.NewHealthUseCase(probes, "1.0.0").Check(context.Background())

			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, "1.0.0", report.Version)
			assert.False(t, report.Timestamp.IsZero())
			assert.Len(t, report.Checks, 3)
			if tt.statsErr != nil {
				assert.Equal(t, tt.statsErr.Error(), report.Checks["uploads"].Message)
			} else {
				assert.Equal(t, 3, report.Uploads.ActiveSessions)
			}
			probes.AssertExpectations(t)
		})
	}
}

func TestHealthUseCase_Ready(t *testing.T) {
	tests := []struct {
		name      string
		database  entities.CheckResult
		disks     entities.CheckResult
		wantReady bool
		wantMsg   string
	}{
		{name: "ready", database: up, disks: up, wantReady: true, wantMsg: "accepting uploads"},
		{name: "degraded disks still ready", database: up, disks: partial, wantReady: true, wantMsg: "accepting uploads"},
		{name: "no disks", database: up, disks: down, wantMsg: "storage: no storage disk is accessible"},
		{name: "store down", database: entities.CheckResult{Status: entities.HealthStatusDown, Message: "ping failed"}, disks: up, wantMsg: "database: ping failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probes := new(mocks.MockHealthRepository)
			probes.On("CheckDatabase", mock.Anything).Return(tt.database)
			probes.On("CheckDisks", mock.Anything).Return(tt.disks).Maybe()

			ready, msg := usecase.NewHealthUseCase(probes, "1.0.0").Ready(context.Background())
			assert.Equal(t, tt.wantReady, ready)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}
