package repository

import (
	"context"

	"github.com/zots0127/drive/internal/domain/entities"
)

// HealthRepository probes the components the upload path depends on
type HealthRepository interface {
	// CheckDatabase pings the session store
	CheckDatabase(ctx context.Context) entities.CheckResult

	// CheckDisks probes every configured disk
	CheckDisks(ctx context.Context) entities.CheckResult

	UploadStats(ctx context.Context) (entities.UploadStats, error)
}
