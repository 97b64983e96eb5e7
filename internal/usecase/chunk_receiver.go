package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

// ChunkReceiver validates and persists individual chunks into a session's
// scratch directory
type ChunkReceiver struct {
	sessions repository.SessionRepository
	storage  repository.DiskStorage
	locks    *SessionLocker
	logger   *zap.SugaredLogger
}

// NewChunkReceiver creates a new chunk receiver
func NewChunkReceiver(sessions repository.SessionRepository, storage repository.DiskStorage, locks *SessionLocker, logger *zap.SugaredLogger) *ChunkReceiver {
	return &ChunkReceiver{
		sessions: sessions,
		storage:  storage,
		locks:    locks,
		logger:   logger,
	}
}

// Receive writes payload as chunk index of uploadID. The chunk is only marked
// received after its bytes are synced and renamed into place, and a rejected
// payload never changes session state.
func (r *ChunkReceiver) Receive(ctx context.Context, owner, uploadID string, index int, payload io.Reader) (*entities.ChunkReceipt, error) {
	session, err := loadOwnedSession(ctx, r.sessions, owner, uploadID)
	if err != nil {
		return nil, err
	}
	if session.Status != entities.UploadStatusActive {
		return nil, fmt.Errorf("%w: session is %s", entities.ErrSessionInactive, session.Status)
	}
	if index < 1 || index > session.TotalChunks {
		return nil, fmt.Errorf("%w: chunk %d not in 1..%d", entities.ErrIndexOutOfRange, index, session.TotalChunks)
	}

	expected := session.ExpectedChunkSize(index)

	// Written outside the lock so different indices stream in parallel.
	partPath, n, err := r.storage.WriteChunkPart(session.TempPath, index, payload, expected)
	if err != nil {
		if current, getErr := r.sessions.Get(ctx, uploadID); getErr == nil && current.Status != entities.UploadStatusActive {
			return nil, fmt.Errorf("%w: session is %s", entities.ErrSessionInactive, current.Status)
		}
		return nil, err
	}
	if n != expected {
		r.storage.DiscardPart(partPath)
		if n > expected {
			return nil, fmt.Errorf("%w: chunk %d expected %d bytes, got more", entities.ErrSizeMismatch, index, expected)
		}
		return nil, fmt.Errorf("%w: chunk %d expected %d bytes, got %d", entities.ErrSizeMismatch, index, expected, n)
	}

	unlock := r.locks.Lock(uploadID)
	defer unlock()

	current, err := r.sessions.Get(ctx, uploadID)
	if err != nil {
		r.storage.DiscardPart(partPath)
		return nil, err
	}
	if current.Status != entities.UploadStatusActive {
		r.storage.DiscardPart(partPath)
		return nil, fmt.Errorf("%w: session is %s", entities.ErrSessionInactive, current.Status)
	}

	if err := r.storage.CommitChunkPart(current.TempPath, index, partPath); err != nil {
		r.storage.DiscardPart(partPath)
		return nil, err
	}

	if err := r.sessions.MarkChunkReceived(ctx, uploadID, index, n); err != nil {
		if errors.Is(err, entities.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %v", entities.ErrSessionInactive, err)
		}
		return nil, err
	}

	received := len(current.ReceivedChunks)
	if !current.HasChunk(index) {
		received++
	}

	r.logger.Debugw("chunk received",
		"upload_id", uploadID,
		"chunk", index,
		"size", n,
		"received", received,
		"total", current.TotalChunks,
	)

	return &entities.ChunkReceipt{
		ChunkNumber:     index,
		Uploaded:        true,
		UploadCompleted: received == current.TotalChunks,
		UploadedChunks:  received,
		TotalChunks:     current.TotalChunks,
	}, nil
}
