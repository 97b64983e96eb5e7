package repository

import (
	"context"

	"github.com/zots0127/drive/internal/domain/entities"
)

// FileRepository manages finalized file records
type FileRepository interface {
	// Get returns a file by id, including trashed ones, or entities.ErrFileNotFound
	Get(ctx context.Context, id string) (*entities.StoredFile, error)

	// GetByUpload returns the file produced by an upload session
	GetByUpload(ctx context.Context, uploadID string) (*entities.StoredFile, error)

	// ListByOwner returns the owner's files, newest first. Trashed files are
	// returned only when deleted is true, and then exclusively.
	ListByOwner(ctx context.Context, owner string, deleted bool) ([]*entities.StoredFile, error)

	// SoftDelete moves a file to the trash
	SoftDelete(ctx context.Context, id string) error

	// Restore takes a file out of the trash
	Restore(ctx context.Context, id string) error

	// Delete removes the record permanently
	Delete(ctx context.Context, id string) error
}
