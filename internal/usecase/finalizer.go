package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

// Finalizer assembles a fully received session into a StoredFile
type Finalizer struct {
	sessions   repository.SessionRepository
	files      repository.FileRepository
	storage    repository.DiskStorage
	locks      *SessionLocker
	replicator repository.FileReplicator
	logger     *zap.SugaredLogger
}

// NewFinalizer creates a new finalizer. replicator may be nil.
func NewFinalizer(sessions repository.SessionRepository, files repository.FileRepository, storage repository.DiskStorage, locks *SessionLocker, replicator repository.FileReplicator, logger *zap.SugaredLogger) *Finalizer {
	return &Finalizer{
		sessions:   sessions,
		files:      files,
		storage:    storage,
		locks:      locks,
		replicator: replicator,
		logger:     logger,
	}
}

// Complete concatenates the chunks of uploadID into its final file. Any
// failure leaves the session Active with no file record and no visible artifact.
// Completing an already Completed session returns the file it produced.
func (f *Finalizer) Complete(ctx context.Context, owner, uploadID string) (*entities.StoredFile, error) {
	if _, err := loadOwnedSession(ctx, f.sessions, owner, uploadID); err != nil {
		return nil, err
	}

	unlock := f.locks.Lock(uploadID)
	defer unlock()

	session, err := f.sessions.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case entities.UploadStatusActive:
	case entities.UploadStatusCompleted:
		file, err := f.files.GetByUpload(ctx, uploadID)
		if err != nil {
			return nil, fmt.Errorf("failed to load completed file: %w", err)
		}
		f.logger.Debugw("repeated completion", "upload_id", uploadID, "file_id", file.ID)
		return file, nil
	default:
		return nil, fmt.Errorf("%w: session is %s", entities.ErrSessionInactive, session.Status)
	}
	if missing := session.MissingChunks(); len(missing) > 0 {
		return nil, &entities.IncompleteUploadError{Missing: missing}
	}

	fileID := uuid.New().String()
	storedName := fileID + strings.ToLower(filepath.Ext(session.Filename))
	finalPath := f.storage.FinalPath(session.DiskPath, session.Owner, storedName)

	stagingPath, n, err := f.storage.Assemble(ctx, session.TempPath, session.TotalChunks, finalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble upload: %w", err)
	}
	if n != session.TotalSize {
		f.storage.RemoveFile(stagingPath)
		return nil, fmt.Errorf("%w: assembled %d bytes, expected %d", entities.ErrSizeMismatch, n, session.TotalSize)
	}

	mimeType := f.storage.DetectMime(stagingPath)

	if err := f.storage.Publish(stagingPath, finalPath); err != nil {
		f.storage.RemoveFile(stagingPath)
		return nil, err
	}

	file := &entities.StoredFile{
		ID:               fileID,
		Owner:            session.Owner,
		UploadID:         uploadID,
		OriginalFilename: session.Filename,
		StoredName:       storedName,
		FilePath:         finalPath,
		DiskPath:         session.DiskPath,
		Size:             n,
		MimeType:         mimeType,
	}
	if err := f.sessions.CommitFinalization(ctx, uploadID, file); err != nil {
		f.storage.RemoveFile(finalPath)
		return nil, fmt.Errorf("failed to record file: %w", err)
	}

	if _, err := f.storage.RemoveTempDir(session.TempPath); err != nil {
		f.logger.Warnw("failed to remove temp dir after completion", "upload_id", uploadID, "error", err)
	}

	f.logger.Infow("upload completed",
		"upload_id", uploadID,
		"file_id", fileID,
		"owner", session.Owner,
		"size", n,
		"mime_type", mimeType,
		"disk", session.DiskPath,
	)

	if f.replicator != nil {
		f.replicator.Enqueue(file)
	}

	return file, nil
}
