package usecase

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

// FileUseCase handles finalized files: listing, download and the trash
type FileUseCase struct {
	files   repository.FileRepository
	storage repository.DiskStorage
	logger  *zap.SugaredLogger
}

// NewFileUseCase creates a new file use case
func NewFileUseCase(files repository.FileRepository, storage repository.DiskStorage, logger *zap.SugaredLogger) *FileUseCase {
	return &FileUseCase{
		files:   files,
		storage: storage,
		logger:  logger,
	}
}

// List returns the owner's live files, newest first
func (uc *FileUseCase) List(ctx context.Context, owner string) ([]*entities.FileInfo, error) {
	return uc.list(ctx, owner, false)
}

// Trash returns the owner's soft-deleted files
func (uc *FileUseCase) Trash(ctx context.Context, owner string) ([]*entities.FileInfo, error) {
	return uc.list(ctx, owner, true)
}

func (uc *FileUseCase) list(ctx context.Context, owner string, deleted bool) ([]*entities.FileInfo, error) {
	files, err := uc.files.ListByOwner(ctx, owner, deleted)
	if err != nil {
		return nil, err
	}

	infos := make([]*entities.FileInfo, 0, len(files))
	for _, f := range files {
		infos = append(infos, f.Info())
	}
	return infos, nil
}

// Usage sums the owner's live and trashed files
func (uc *FileUseCase) Usage(ctx context.Context, owner string) (*entities.OwnerUsage, error) {
	usage := &entities.OwnerUsage{}
	for _, deleted := range []bool{false, true} {
		files, err := uc.files.ListByOwner(ctx, owner, deleted)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if deleted {
				usage.TrashFiles++
				usage.TrashBytes += uint64(f.Size)
			} else {
				usage.Files++
				usage.UsedBytes += uint64(f.Size)
			}
		}
	}
	return usage, nil
}

// Open returns a live file and a reader over its bytes. The caller closes the reader.
func (uc *FileUseCase) Open(ctx context.Context, owner, id string) (*entities.StoredFile, io.ReadSeekCloser, error) {
	file, err := uc.owned(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}
	if file.IsDeleted() {
		return nil, nil, entities.ErrFileNotFound
	}

	r, err := uc.storage.Open(file.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return file, r, nil
}

// Delete moves a live file to the trash
func (uc *FileUseCase) Delete(ctx context.Context, owner, id string) error {
	file, err := uc.owned(ctx, owner, id)
	if err != nil {
		return err
	}
	if file.IsDeleted() {
		return entities.ErrFileNotFound
	}

	if err := uc.files.SoftDelete(ctx, id); err != nil {
		return err
	}
	uc.logger.Infow("file moved to trash", "file_id", id, "owner", owner)
	return nil
}

// Restore takes a file out of the trash
func (uc *FileUseCase) Restore(ctx context.Context, owner, id string) error {
	if _, err := uc.owned(ctx, owner, id); err != nil {
		return err
	}
	if err := uc.files.Restore(ctx, id); err != nil {
		return err
	}
	uc.logger.Infow("file restored", "file_id", id, "owner", owner)
	return nil
}

// Purge permanently removes a trashed file and its bytes
func (uc *FileUseCase) Purge(ctx context.Context, owner, id string) error {
	file, err := uc.owned(ctx, owner, id)
	if err != nil {
		return err
	}
	if !file.IsDeleted() {
		return entities.ErrFileNotDeleted
	}

	if err := uc.storage.RemoveFile(file.FilePath); err != nil {
		return err
	}
	if err := uc.files.Delete(ctx, id); err != nil {
		return err
	}
	uc.logger.Infow("file purged", "file_id", id, "owner", owner, "size", file.Size)
	return nil
}

func (uc *FileUseCase) owned(ctx context.Context, owner, id string) (*entities.StoredFile, error) {
	file, err := uc.files.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.Owner != owner {
		return nil, entities.ErrForbidden
	}
	return file, nil
}
