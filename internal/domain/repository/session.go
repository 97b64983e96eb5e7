package repository

import (
	"context"
	"time"

	"github.com/zots0127/drive/internal/domain/entities"
)

// SessionRepository is the durable record of upload sessions and their
// per-chunk receipt state
type SessionRepository interface {
	// Create persists a new Active session
	Create(ctx context.Context, session *entities.UploadSession) error

	// Get returns the session with its received chunk set, or entities.ErrSessionNotFound
	Get(ctx context.Context, id string) (*entities.UploadSession, error)

	// Exists reports whether a session record exists in any status
	Exists(ctx context.Context, id string) (bool, error)

	// MarkChunkReceived records index as durably written and refreshes updated_at.
	// Re-marking an index is idempotent. Fails with entities.ErrInvalidTransition
	// on a non-Active session and entities.ErrInvalidChunk for an index outside
	// 1..total_chunks or a size other than the chunk's expected size.
	MarkChunkReceived(ctx context.Context, id string, index int, size int64) error

	// Transition moves an Active session to status, or fails with
	// entities.ErrInvalidTransition
	Transition(ctx context.Context, id string, status entities.UploadStatus) error

	// CommitFinalization inserts the stored file and marks the session
	// Completed in a single transaction
	CommitFinalization(ctx context.Context, id string, file *entities.StoredFile) error

	// ListActive returns Active sessions last updated before olderThan.
	// A zero olderThan returns every Active session.
	ListActive(ctx context.Context, olderThan time.Time) ([]*entities.UploadSession, error)

	// CountActive returns the number of Active sessions
	CountActive(ctx context.Context) (int, error)
}
