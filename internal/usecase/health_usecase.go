package usecase

import (
	"context"
	"time"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

// HealthUseCase composes component probes into the service health report
type HealthUseCase struct {
	probes  repository.HealthRepository
	started time.Time
	version string
	now     func() time.Time
}

// NewHealthUseCase creates a new health use case
func NewHealthUseCase(probes repository.HealthRepository, version string) *HealthUseCase {
	return &HealthUseCase{
		probes:  probes,
		started: time.Now(),
		version: version,
		now:     time.Now,
	}
}

// Uptime since the use case was built
func (h *HealthUseCase) Uptime() time.Duration {
	return h.now().Sub(h.started).Round(time.Second)
}

// Check runs every probe. A failing session count only degrades the report.
func (h *HealthUseCase) Check(ctx context.Context) *entities.HealthCheck {
	database := h.probes.CheckDatabase(ctx)
	disks := h.probes.CheckDisks(ctx)

	uploads := entities.CheckResult{Status: entities.HealthStatusUp}
	stats, err := h.probes.UploadStats(ctx)
	if err != nil {
		uploads = entities.CheckResult{Status: entities.HealthStatusPartial, Message: err.Error()}
	} else {
		uploads.Details = map[string]interface{}{"active_sessions": stats.ActiveSessions}
	}

	return &entities.HealthCheck{
		Status:    entities.Worst(database, disks, uploads),
		Version:   h.version,
		Timestamp: h.now(),
		Uptime:    h.Uptime().String(),
		Checks: map[string]entities.CheckResult{
			"database": database,
			"disks":    disks,
			"uploads":  uploads,
		},
		Uploads: stats,
	}
}

// Ready reports whether an initiate call could succeed: the session store
// answers and at least one disk is accessible.
func (h *HealthUseCase) Ready(ctx context.Context) (bool, string) {
	if db := h.probes.CheckDatabase(ctx); db.Status == entities.HealthStatusDown {
		return false, "database: " + db.Message
	}
	if disks := h.probes.CheckDisks(ctx); disks.Status == entities.HealthStatusDown {
		return false, "storage: " + disks.Message
	}
	return true, "accepting uploads"
}
