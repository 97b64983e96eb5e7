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

// SessionRepositoryImpl implements SessionRepository on SQLite
type SessionRepositoryImpl struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.SessionRepository = (*SessionRepositoryImpl)(nil)

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB) *SessionRepositoryImpl {
	return &SessionRepositoryImpl{
		db:  db,
		now: time.Now,
	}
}

// WithClock replaces the clock used for updated_at stamps
func (r *SessionRepositoryImpl) WithClock(now func() time.Time) *SessionRepositoryImpl {
	r.now = now
	return r
}

// Create persists a new Active session
func (r *SessionRepositoryImpl) Create(ctx context.Context, s *entities.UploadSession) error {
	if s.Status == "" {
		s.Status = entities.UploadStatusActive
	}
	if s.Status != entities.UploadStatusActive {
		return fmt.Errorf("%w: new session must be active, got %s", entities.ErrInvalidTransition, s.Status)
	}

	now := r.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO upload_sessions (
			id, owner, filename, total_size, chunk_size, total_chunks,
			temp_path, disk_path, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Owner, s.Filename, s.TotalSize, s.ChunkSize, s.TotalChunks,
		s.TempPath, s.DiskPath, string(s.Status), toUnix(s.CreatedAt), toUnix(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create upload session: %w", err)
	}
	return nil
}

// Get returns a session with its received chunk set
func (r *SessionRepositoryImpl) Get(ctx context.Context, id string) (*entities.UploadSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner, filename, total_size, chunk_size, total_chunks,
			temp_path, disk_path, status, created_at, updated_at
		FROM upload_sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upload session: %w", err)
	}

	chunks, err := r.receivedChunks(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	session.ReceivedChunks = chunks

	return session, nil
}

// Exists reports whether a session record exists in any status
func (r *SessionRepositoryImpl) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM upload_sessions WHERE id = ?)", id).Scan(&exists)
	return exists, err
}

// MarkChunkReceived records a durably written chunk
func (r *SessionRepositoryImpl) MarkChunkReceived(ctx context.Context, id string, index int, size int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	var totalChunks int
	var totalSize, chunkSize int64
	err = tx.QueryRowContext(ctx,
		"SELECT status, total_chunks, total_size, chunk_size FROM upload_sessions WHERE id = ?", id,
	).Scan(&status, &totalChunks, &totalSize, &chunkSize)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	if entities.UploadStatus(status) != entities.UploadStatusActive {
		return fmt.Errorf("%w: session %s is %s", entities.ErrInvalidTransition, id, status)
	}
	if index < 1 || index > totalChunks {
		return fmt.Errorf("%w: index %d not in 1..%d", entities.ErrInvalidChunk, index, totalChunks)
	}
	if want := entities.ExpectedChunkSize(totalSize, chunkSize, index); size != want {
		return fmt.Errorf("%w: chunk %d is %d bytes, expected %d", entities.ErrInvalidChunk, index, size, want)
	}

	now := toUnix(r.now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO upload_chunks (upload_id, chunk_index, size, received_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(upload_id, chunk_index) DO UPDATE SET
			size = excluded.size,
			received_at = excluded.received_at`,
		id, index, size, now,
	)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "UPDATE upload_sessions SET updated_at = ? WHERE id = ?", now, id); err != nil {
		return err
	}

	return tx.Commit()
}

// Transition moves an Active session to a terminal status
func (r *SessionRepositoryImpl) Transition(ctx context.Context, id string, status entities.UploadStatus) error {
	if !status.Valid() || !status.IsTerminal() {
		return fmt.Errorf("%w: cannot move to %q", entities.ErrInvalidTransition, status)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.transitionTx(ctx, tx, id, status); err != nil {
		return err
	}
	return tx.Commit()
}

// CommitFinalization inserts the stored file and completes the session atomically
func (r *SessionRepositoryImpl) CommitFinalization(ctx context.Context, id string, file *entities.StoredFile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.transitionTx(ctx, tx, id, entities.UploadStatusCompleted); err != nil {
		return err
	}

	if file.CreatedAt.IsZero() {
		file.CreatedAt = r.now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stored_files (
			id, owner, upload_id, original_filename, stored_name,
			file_path, disk_path, size, mime_type, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.Owner, id, file.OriginalFilename, file.StoredName,
		file.FilePath, file.DiskPath, file.Size, file.MimeType, toUnix(file.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	file.UploadID = id

	return tx.Commit()
}

// ListActive returns Active sessions last updated before olderThan
func (r *SessionRepositoryImpl) ListActive(ctx context.Context, olderThan time.Time) ([]*entities.UploadSession, error) {
	query := `
		SELECT id, owner, filename, total_size, chunk_size, total_chunks,
			temp_path, disk_path, status, created_at, updated_at
		FROM upload_sessions WHERE status = ?`
	args := []interface{}{string(entities.UploadStatusActive)}

	if !olderThan.IsZero() {
		query += " AND updated_at < ?"
		args = append(args, toUnix(olderThan))
	}
	query += " ORDER BY updated_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	var sessions []*entities.UploadSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, s := range sessions {
		chunks, err := r.receivedChunks(ctx, r.db, s.ID)
		if err != nil {
			return nil, err
		}
		s.ReceivedChunks = chunks
	}

	return sessions, nil
}

// CountActive returns the number of Active sessions
func (r *SessionRepositoryImpl) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM upload_sessions WHERE status = ?", string(entities.UploadStatusActive),
	).Scan(&n)
	return n, err
}

func (r *SessionRepositoryImpl) transitionTx(ctx context.Context, tx *sql.Tx, id string, status entities.UploadStatus) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE upload_sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(status), toUnix(r.now()), id, string(entities.UploadStatusActive),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM upload_sessions WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s is %s, cannot move to %s", entities.ErrInvalidTransition, id, current, status)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (r *SessionRepositoryImpl) receivedChunks(ctx context.Context, q queryer, id string) ([]int, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT chunk_index FROM upload_chunks WHERE upload_id = ? ORDER BY chunk_index", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load received chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]int, 0)
	for rows.Next() {
		var index int
		if err := rows.Scan(&index); err != nil {
			return nil, err
		}
		chunks = append(chunks, index)
	}
	return chunks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*entities.UploadSession, error) {
	var s entities.UploadSession
	var status string
	var createdAt, updatedAt int64

	err := row.Scan(
		&s.ID, &s.Owner, &s.Filename, &s.TotalSize, &s.ChunkSize, &s.TotalChunks,
		&s.TempPath, &s.DiskPath, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = entities.UploadStatus(status)
	s.CreatedAt = fromUnix(createdAt)
	s.UpdatedAt = fromUnix(updatedAt)
	return &s, nil
}
