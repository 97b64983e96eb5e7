package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

const (
	DefaultChunkSize    int64 = 5 * 1024 * 1024
	DefaultMaxChunkSize int64 = 64 * 1024 * 1024
)

// UploadLimits bounds what a client may declare at initiate time
type UploadLimits struct {
	DefaultChunkSize int64
	MaxChunkSize     int64
	// MaxFileSize of zero means unlimited
	MaxFileSize int64
}

// UploadUseCase drives the session lifecycle: initiate, chunk receipt,
// status, completion and cancellation
type UploadUseCase struct {
	sessions  repository.SessionRepository
	storage   repository.DiskStorage
	allocator *DiskAllocator
	locks     *SessionLocker
	receiver  *ChunkReceiver
	finalizer *Finalizer
	limits    UploadLimits
	logger    *zap.SugaredLogger
}

// NewUploadUseCase creates a new upload use case
func NewUploadUseCase(
	sessions repository.SessionRepository,
	storage repository.DiskStorage,
	allocator *DiskAllocator,
	locks *SessionLocker,
	receiver *ChunkReceiver,
	finalizer *Finalizer,
	limits UploadLimits,
	logger *zap.SugaredLogger,
) *UploadUseCase {
	if limits.DefaultChunkSize <= 0 {
		limits.DefaultChunkSize = DefaultChunkSize
	}
	if limits.MaxChunkSize <= 0 {
		limits.MaxChunkSize = DefaultMaxChunkSize
	}
	return &UploadUseCase{
		sessions:  sessions,
		storage:   storage,
		allocator: allocator,
		locks:     locks,
		receiver:  receiver,
		finalizer: finalizer,
		limits:    limits,
		logger:    logger,
	}
}

// Initiate validates the request, picks a disk and opens an Active session.
// Allocation failures abort before any scratch space is created.
func (uc *UploadUseCase) Initiate(ctx context.Context, owner string, req *entities.InitiateUploadRequest) (*entities.InitiateUploadResponse, error) {
	filename := cleanFilename(req.Filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", entities.ErrInvalidRequest)
	}
	if req.TotalSize <= 0 {
		return nil, fmt.Errorf("%w: total_size must be positive", entities.ErrInvalidRequest)
	}
	if uc.limits.MaxFileSize > 0 && req.TotalSize > uc.limits.MaxFileSize {
		return nil, fmt.Errorf("%w: total_size exceeds limit of %d bytes", entities.ErrInvalidRequest, uc.limits.MaxFileSize)
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = uc.limits.DefaultChunkSize
	}
	if chunkSize < 0 || chunkSize > uc.limits.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk_size must be in 1..%d", entities.ErrInvalidRequest, uc.limits.MaxChunkSize)
	}

	disk, err := uc.allocator.ChooseDisk(ctx, req.TotalSize)
	if err != nil {
		uc.logger.Warnw("upload rejected", "owner", owner, "total_size", req.TotalSize, "error", err)
		return nil, err
	}

	id := uuid.New().String()

	// Held until the record exists so the orphan sweep never sees a bare dir.
	unlock := uc.locks.Lock(id)
	defer unlock()

	tempPath, err := uc.storage.CreateTempDir(disk.Path, id)
	if err != nil {
		return nil, err
	}

	session := &entities.UploadSession{
		ID:             id,
		Owner:          owner,
		Filename:       filename,
		TotalSize:      req.TotalSize,
		ChunkSize:      chunkSize,
		TotalChunks:    entities.TotalChunks(req.TotalSize, chunkSize),
		ReceivedChunks: []int{},
		TempPath:       tempPath,
		DiskPath:       disk.Path,
		Status:         entities.UploadStatusActive,
	}
	if err := uc.sessions.Create(ctx, session); err != nil {
		uc.storage.RemoveTempDir(tempPath)
		return nil, err
	}

	uc.logger.Infow("upload initiated",
		"upload_id", id,
		"owner", owner,
		"filename", filename,
		"total_size", req.TotalSize,
		"total_chunks", session.TotalChunks,
		"disk", disk.Path,
	)

	return &entities.InitiateUploadResponse{
		UploadID:    id,
		ChunkSize:   chunkSize,
		TotalChunks: session.TotalChunks,
	}, nil
}

// ReceiveChunk stores one chunk of an owned session
func (uc *UploadUseCase) ReceiveChunk(ctx context.Context, owner, uploadID string, index int, payload io.Reader) (*entities.ChunkReceipt, error) {
	return uc.receiver.Receive(ctx, owner, uploadID, index, payload)
}

// Complete finalizes an owned session
func (uc *UploadUseCase) Complete(ctx context.Context, owner, uploadID string) (*entities.StoredFile, error) {
	return uc.finalizer.Complete(ctx, owner, uploadID)
}

// Status returns the durably confirmed view of an owned session
func (uc *UploadUseCase) Status(ctx context.Context, owner, uploadID string) (*entities.UploadSessionView, error) {
	session, err := loadOwnedSession(ctx, uc.sessions, owner, uploadID)
	if err != nil {
		return nil, err
	}
	return session.View(), nil
}

// Cancel moves an Active session to Cancelled and reclaims its scratch space
func (uc *UploadUseCase) Cancel(ctx context.Context, owner, uploadID string) (*entities.CancelResult, error) {
	session, err := loadOwnedSession(ctx, uc.sessions, owner, uploadID)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(uploadID)
	defer unlock()

	if err := uc.sessions.Transition(ctx, uploadID, entities.UploadStatusCancelled); err != nil {
		if errors.Is(err, entities.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %v", entities.ErrSessionInactive, err)
		}
		return nil, err
	}

	freed, err := uc.storage.RemoveTempDir(session.TempPath)
	if err != nil {
		// the orphan sweep reclaims it later
		uc.logger.Warnw("failed to remove temp dir on cancel", "upload_id", uploadID, "error", err)
	}

	uc.logger.Infow("upload cancelled",
		"upload_id", uploadID,
		"owner", owner,
		"received_chunks", len(session.ReceivedChunks),
		"freed_bytes", freed,
	)

	return &entities.CancelResult{UploadID: uploadID, FreedBytes: freed}, nil
}

func loadOwnedSession(ctx context.Context, sessions repository.SessionRepository, owner, uploadID string) (*entities.UploadSession, error) {
	session, err := sessions.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if session.Owner != owner {
		return nil, entities.ErrForbidden
	}
	return session, nil
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
