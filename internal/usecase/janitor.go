package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

const (
	DefaultJanitorInterval = 6 * time.Hour
	DefaultJanitorMaxAge   = 24 * time.Hour
)

// JanitorSettings controls the periodic sweep
type JanitorSettings struct {
	Enabled  bool
	Interval time.Duration
	MaxAge   time.Duration
}

// Janitor reclaims scratch space of sessions that stopped receiving chunks
// and of temp dirs left behind without an Active session
type Janitor struct {
	sessions repository.SessionRepository
	storage  repository.DiskStorage
	disks    []string
	locks    *SessionLocker
	logger   *zap.SugaredLogger
	now      func() time.Time

	mu       sync.Mutex
	settings JanitorSettings
	updated  chan struct{}
}

// NewJanitor creates a janitor over the given disks
func NewJanitor(
	sessions repository.SessionRepository,
	storage repository.DiskStorage,
	disks []string,
	locks *SessionLocker,
	settings JanitorSettings,
	logger *zap.SugaredLogger,
) *Janitor {
	return &Janitor{
		sessions: sessions,
		storage:  storage,
		disks:    append([]string(nil), disks...),
		locks:    locks,
		logger:   logger,
		now:      time.Now,
		settings: normalizeSettings(settings),
		updated:  make(chan struct{}, 1),
	}
}

// WithClock replaces the clock used to compute sweep cutoffs
func (j *Janitor) WithClock(now func() time.Time) *Janitor {
	j.now = now
	return j
}

// Settings returns the current sweep settings
func (j *Janitor) Settings() JanitorSettings {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.settings
}

// UpdateSettings swaps the sweep settings; a running loop picks them up
// without restarting
func (j *Janitor) UpdateSettings(settings JanitorSettings) {
	j.mu.Lock()
	j.settings = normalizeSettings(settings)
	j.mu.Unlock()

	select {
	case j.updated <- struct{}{}:
	default:
	}
}

func normalizeSettings(s JanitorSettings) JanitorSettings {
	if s.Interval <= 0 {
		s.Interval = DefaultJanitorInterval
	}
	if s.MaxAge <= 0 {
		s.MaxAge = DefaultJanitorMaxAge
	}
	return s
}

// Run sweeps once on start and then on every interval until ctx is done
func (j *Janitor) Run(ctx context.Context) {
	swept := false
	for {
		settings := j.Settings()

		if !settings.Enabled {
			select {
			case <-ctx.Done():
				return
			case <-j.updated:
				continue
			}
		}

		if !swept {
			j.runOnce(ctx, settings.MaxAge)
			swept = true
		}

		ticker := time.NewTicker(settings.Interval)
		reset := false
		for !reset {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-j.updated:
				reset = true
			case <-ticker.C:
				j.runOnce(ctx, j.Settings().MaxAge)
			}
		}
		ticker.Stop()
	}
}

func (j *Janitor) runOnce(ctx context.Context, maxAge time.Duration) {
	result, err := j.Sweep(ctx, maxAge)
	if err != nil {
		j.logger.Errorw("temp cleanup failed", "error", err)
		return
	}
	j.logger.Infow("temp cleanup finished",
		"max_age", maxAge,
		"cleaned_sessions", result.CleanedSessions,
		"cleaned_orphans", result.CleanedOrphans,
		"freed_bytes", result.FreedBytes,
	)
}

// Sweep expires Active sessions whose last activity is older than maxAge and
// removes orphaned temp dirs older than maxAge
func (j *Janitor) Sweep(ctx context.Context, maxAge time.Duration) (*entities.CleanupResult, error) {
	if maxAge < 0 {
		return nil, entities.ErrInvalidRequest
	}
	cutoff := j.now().Add(-maxAge)
	result := &entities.CleanupResult{}

	stale, err := j.sessions.ListActive(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	for _, s := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		freed, expired, err := j.expire(ctx, s.ID, cutoff)
		if err != nil {
			j.logger.Warnw("failed to expire session", "upload_id", s.ID, "error", err)
			continue
		}
		if expired {
			result.CleanedSessions++
			result.FreedBytes += freed
		}
	}

	for _, disk := range j.disks {
		dirs, err := j.storage.ListTempDirs(disk)
		if err != nil {
			j.logger.Warnw("failed to list temp dirs", "disk", disk, "error", err)
			continue
		}
		for _, dir := range dirs {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if !dir.ModTime.Before(cutoff) {
				continue
			}
			freed, removed := j.reclaimOrphan(ctx, dir)
			if removed {
				result.CleanedOrphans++
				result.FreedBytes += freed
			}
		}
	}

	return result, nil
}

// expire re-checks eligibility under the session lock so a concurrent
// completion or chunk write wins over the sweep
func (j *Janitor) expire(ctx context.Context, id string, cutoff time.Time) (uint64, bool, error) {
	unlock := j.locks.Lock(id)
	defer unlock()

	session, err := j.sessions.Get(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if session.Status != entities.UploadStatusActive || !session.UpdatedAt.Before(cutoff) {
		return 0, false, nil
	}

	if err := j.sessions.Transition(ctx, id, entities.UploadStatusExpired); err != nil {
		if errors.Is(err, entities.ErrInvalidTransition) {
			return 0, false, nil
		}
		return 0, false, err
	}

	freed, err := j.storage.RemoveTempDir(session.TempPath)
	if err != nil {
		j.logger.Warnw("failed to remove expired temp dir", "upload_id", id, "error", err)
	}

	j.logger.Infow("upload expired",
		"upload_id", id,
		"owner", session.Owner,
		"last_activity", session.UpdatedAt,
		"freed_bytes", freed,
	)
	return freed, true, nil
}

func (j *Janitor) reclaimOrphan(ctx context.Context, dir repository.TempDir) (uint64, bool) {
	unlock := j.locks.Lock(dir.UploadID)
	defer unlock()

	session, err := j.sessions.Get(ctx, dir.UploadID)
	switch {
	case err == nil && session.Status == entities.UploadStatusActive:
		return 0, false
	case err != nil && !errors.Is(err, entities.ErrSessionNotFound):
		j.logger.Warnw("failed to check temp dir owner", "path", dir.Path, "error", err)
		return 0, false
	}

	freed, err := j.storage.RemoveTempDir(dir.Path)
	if err != nil {
		j.logger.Warnw("failed to remove orphaned temp dir", "path", dir.Path, "error", err)
		return 0, false
	}

	j.logger.Infow("orphaned temp dir removed", "path", dir.Path, "freed_bytes", freed)
	return freed, true
}

// TempInfo summarizes the scratch dirs on every disk
func (j *Janitor) TempInfo(ctx context.Context) (*entities.TempFilesInfo, error) {
	info := &entities.TempFilesInfo{}
	var oldest time.Time

	for _, disk := range j.disks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dirs, err := j.storage.ListTempDirs(disk)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			info.TotalFiles += dir.Files
			info.TotalSize += dir.Size
			if dir.Files > 0 && (oldest.IsZero() || dir.Oldest.Before(oldest)) {
				oldest = dir.Oldest
			}
		}
	}

	if !oldest.IsZero() {
		hours := j.now().Sub(oldest).Hours()
		if hours < 0 {
			hours = 0
		}
		hours = math.Round(hours*100) / 100
		info.OldestFileAgeHours = &hours
	}

	return info, nil
}
