package repository

import (
	"context"
	"io"
	"time"

	"github.com/zots0127/drive/internal/domain/entities"
)

// DiskProbe reads live filesystem statistics for a backing disk
type DiskProbe interface {
	// Probe returns the current record for path. An unreadable disk is
	// reported with IsAccessible false rather than an error.
	Probe(ctx context.Context, path string) entities.DiskRecord
}

// TempDir describes one session scratch directory found on disk
type TempDir struct {
	UploadID string
	Path     string
	DiskPath string
	Files    int
	Size     uint64
	// ModTime is the most recent modification inside the directory
	ModTime time.Time
	// Oldest is the modification time of the oldest file inside it
	Oldest time.Time
}

// DiskStorage owns the on-disk layout: session scratch dirs addressed by
// (upload_id, chunk_index) and the final per-owner file tree
type DiskStorage interface {
	// CreateTempDir creates the scratch directory for uploadID on diskPath
	CreateTempDir(diskPath, uploadID string) (string, error)

	// WriteChunkPart streams at most limit+1 bytes from r into a new part file
	// inside tempPath and returns its path and the byte count
	WriteChunkPart(tempPath string, index int, r io.Reader, limit int64) (string, int64, error)

	// CommitChunkPart atomically replaces the chunk file for index with partPath
	CommitChunkPart(tempPath string, index int, partPath string) error

	// DiscardPart removes an uncommitted part file
	DiscardPart(partPath string)

	// Assemble concatenates chunks 1..totalChunks of tempPath, in index order,
	// into a staging file next to finalPath and returns the staging path and
	// the realized length
	Assemble(ctx context.Context, tempPath string, totalChunks int, finalPath string) (string, int64, error)

	// Publish exposes a staged artifact under its final name
	Publish(stagingPath, finalPath string) error

	// FinalPath returns the permanent location for a file on diskPath
	FinalPath(diskPath, owner, storedName string) string

	// RemoveTempDir deletes a scratch directory and returns the bytes freed
	RemoveTempDir(tempPath string) (uint64, error)

	// RemoveFile deletes a file, ignoring missing files
	RemoveFile(path string) error

	// Open opens a stored file for reading
	Open(path string) (io.ReadSeekCloser, error)

	// DetectMime sniffs the content type of a file
	DetectMime(path string) string

	// ListTempDirs enumerates scratch directories on diskPath
	ListTempDirs(diskPath string) ([]TempDir, error)
}

// FileReplicator mirrors finalized files off-site
type FileReplicator interface {
	// Enqueue schedules file for replication without blocking
	Enqueue(file *entities.StoredFile)
}
