package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

// FileRepositoryImpl implements FileRepository on SQLite
type FileRepositoryImpl struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.FileRepository = (*FileRepositoryImpl)(nil)

// NewFileRepository creates a new file repository
func NewFileRepository(db *sql.DB) *FileRepositoryImpl {
	return &FileRepositoryImpl{db: db, now: time.Now}
}

const fileColumns = `id, owner, upload_id, original_filename, stored_name,
	file_path, disk_path, size, mime_type, created_at, deleted_at`

// Get returns a file by id, including trashed ones
func (r *FileRepositoryImpl) Get(ctx context.Context, id string) (*entities.StoredFile, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM stored_files WHERE id = ?", id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	return file, nil
}

// GetByUpload returns the file produced by an upload session
func (r *FileRepositoryImpl) GetByUpload(ctx context.Context, uploadID string) (*entities.StoredFile, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM stored_files WHERE upload_id = ?", uploadID)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	return file, nil
}

// ListByOwner returns the owner's live or trashed files, newest first
func (r *FileRepositoryImpl) ListByOwner(ctx context.Context, owner string, deleted bool) ([]*entities.StoredFile, error) {
	query := "SELECT " + fileColumns + " FROM stored_files WHERE owner = ? AND deleted_at IS NULL ORDER BY created_at DESC"
	if deleted {
		query = "SELECT " + fileColumns + " FROM stored_files WHERE owner = ? AND deleted_at IS NOT NULL ORDER BY deleted_at DESC"
	}

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files := make([]*entities.StoredFile, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// SoftDelete moves a live file to the trash
func (r *FileRepositoryImpl) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE stored_files SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		toUnix(r.now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return requireRow(res, entities.ErrFileNotFound)
}

// Restore takes a trashed file back out of the trash
func (r *FileRepositoryImpl) Restore(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE stored_files SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL", id)
	if err != nil {
		return fmt.Errorf("failed to restore file: %w", err)
	}
	if err := requireRow(res, nil); err == nil {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return entities.ErrFileNotDeleted
}

// Delete removes the record permanently
func (r *FileRepositoryImpl) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM stored_files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	return requireRow(res, entities.ErrFileNotFound)
}

// requireRow returns missing when res touched no rows. A nil missing still
// signals the miss with a generic error.
func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if missing == nil {
			return sql.ErrNoRows
		}
		return missing
	}
	return nil
}

func scanFile(row rowScanner) (*entities.StoredFile, error) {
	var f entities.StoredFile
	var mime sql.NullString
	var createdAt int64
	var deletedAt sql.NullInt64

	err := row.Scan(
		&f.ID, &f.Owner, &f.UploadID, &f.OriginalFilename, &f.StoredName,
		&f.FilePath, &f.DiskPath, &f.Size, &mime, &createdAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	f.MimeType = mime.String
	f.CreatedAt = fromUnix(createdAt)
	if deletedAt.Valid {
		t := fromUnix(deletedAt.Int64)
		f.DeletedAt = &t
	}
	return &f, nil
}
