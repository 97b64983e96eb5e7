package repository

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

// HealthRepositoryImpl implements HealthRepository
type HealthRepositoryImpl struct {
	db       *sql.DB
	disks    []string
	probe    repository.DiskProbe
	sessions repository.SessionRepository
}

// NewHealthRepository creates a new health repository
func NewHealthRepository(db *sql.DB, disks []string, probe repository.DiskProbe, sessions repository.SessionRepository) repository.HealthRepository {
	return &HealthRepositoryImpl{
		db:       db,
		disks:    disks,
		probe:    probe,
		sessions: sessions,
	}
}

// UploadStats counts live sessions; goroutines approximate in-flight chunk writes
func (h *HealthRepositoryImpl) UploadStats(ctx context.Context) (entities.UploadStats, error) {
	stats := entities.UploadStats{Goroutines: runtime.NumGoroutine()}
	if h.sessions == nil {
		return stats, nil
	}
	n, err := h.sessions.CountActive(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to count active sessions: %w", err)
	}
	stats.ActiveSessions = n
	return stats, nil
}

// CheckDatabase pings the sqlite session store and reports pool usage
func (h *HealthRepositoryImpl) CheckDatabase(ctx context.Context) entities.CheckResult {
	if h.db == nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "session store is not open",
		}
	}

	if err := h.db.PingContext(ctx); err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("session store ping failed: %v", err),
		}
	}

	stats := h.db.Stats()
	details := map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": stats.MaxOpenConnections,
	}

	status := entities.HealthStatusUp
	message := "session store reachable"

	if stats.MaxOpenConnections > 0 && stats.InUse > stats.MaxOpenConnections*8/10 {
		status = entities.HealthStatusPartial
		message = "session store connection pool nearly exhausted"
	}

	return entities.CheckResult{
		Status:  status,
		Message: message,
		Details: details,
	}
}

// CheckDisks probes every configured disk. All disks down is Down, any disk
// down or above 90% usage is Partial.
func (h *HealthRepositoryImpl) CheckDisks(ctx context.Context) entities.CheckResult {
	if len(h.disks) == 0 {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "no storage disks configured",
		}
	}

	details := make(map[string]interface{}, len(h.disks))
	accessible := 0
	degraded := false

	for _, path := range h.disks {
		record := h.probe.Probe(ctx, path)
		details[path] = map[string]interface{}{
			"accessible":      record.IsAccessible,
			"available_bytes": record.AvailableSpace,
			"usage_percent":   record.UsagePercentage,
		}
		if !record.IsAccessible {
			degraded = true
			continue
		}
		accessible++
		if record.UsagePercentage > 90 {
			degraded = true
		}
	}

	switch {
	case accessible == 0:
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "no storage disk is accessible",
			Details: details,
		}
	case degraded:
		return entities.CheckResult{
			Status:  entities.HealthStatusPartial,
			Message: "some disks are unavailable or nearly full",
			Details: details,
		}
	}

	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "all disks accepting chunks",
		Details: details,
	}
}
