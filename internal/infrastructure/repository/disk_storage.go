package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

const (
	tempDirName  = "temp"
	usersDirName = "users"
	chunkExt     = ".chunk"
	partMarker   = ".part-"
)

// LocalDiskStorage lays out session scratch space and finished files on
// locally mounted disks
type LocalDiskStorage struct{}

var _ repository.DiskStorage = LocalDiskStorage{}

// NewDiskStorage creates a local disk storage
func NewDiskStorage() LocalDiskStorage {
	return LocalDiskStorage{}
}

// TempRoot returns the scratch root of a disk
func TempRoot(diskPath string) string {
	return filepath.Join(diskPath, tempDirName)
}

// ChunkPath returns the committed location of a chunk
func ChunkPath(tempPath string, index int) string {
	return filepath.Join(tempPath, strconv.Itoa(index)+chunkExt)
}

// CreateTempDir creates <disk>/temp/<upload_id>
func (LocalDiskStorage) CreateTempDir(diskPath, uploadID string) (string, error) {
	dir := filepath.Join(TempRoot(diskPath), safeSegment(uploadID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	return dir, nil
}

// WriteChunkPart streams r into a fresh part file. At most limit+1 bytes are
// read so callers can detect oversized payloads without buffering them.
func (LocalDiskStorage) WriteChunkPart(tempPath string, index int, r io.Reader, limit int64) (string, int64, error) {
	f, err := os.CreateTemp(tempPath, strconv.Itoa(index)+chunkExt+partMarker+"*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create chunk part: %w", err)
	}
	partPath := f.Name()

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partPath)
		return "", n, fmt.Errorf("failed to write chunk %d: %w", index, err)
	}

	return partPath, n, nil
}

// CommitChunkPart renames the part onto <index>.chunk, replacing any earlier write
func (LocalDiskStorage) CommitChunkPart(tempPath string, index int, partPath string) error {
	if err := os.Rename(partPath, ChunkPath(tempPath, index)); err != nil {
		return fmt.Errorf("failed to commit chunk %d: %w", index, err)
	}
	syncDir(tempPath)
	return nil
}

// DiscardPart removes an uncommitted part file
func (LocalDiskStorage) DiscardPart(partPath string) {
	if partPath != "" {
		os.Remove(partPath)
	}
}

// Assemble concatenates chunks 1..totalChunks into a staging file next to finalPath
func (LocalDiskStorage) Assemble(ctx context.Context, tempPath string, totalChunks int, finalPath string) (string, int64, error) {
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create target dir: %w", err)
	}

	staging, err := os.CreateTemp(dir, "."+filepath.Base(finalPath)+".staging-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	stagingPath := staging.Name()

	n, err := appendChunks(ctx, staging, tempPath, totalChunks)
	if err == nil {
		err = staging.Sync()
	}
	if closeErr := staging.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(stagingPath)
		return "", 0, err
	}

	return stagingPath, n, nil
}

func appendChunks(ctx context.Context, w io.Writer, tempPath string, totalChunks int) (int64, error) {
	var written int64
	for i := 1; i <= totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		chunk, err := os.Open(ChunkPath(tempPath, i))
		if errors.Is(err, fs.ErrNotExist) {
			return written, &entities.IncompleteUploadError{Missing: []int{i}}
		}
		if err != nil {
			return written, fmt.Errorf("failed to open chunk %d: %w", i, err)
		}

		n, err := io.Copy(w, chunk)
		chunk.Close()
		written += n
		if err != nil {
			return written, fmt.Errorf("failed to append chunk %d: %w", i, err)
		}
	}
	return written, nil
}

// Publish renames the staged artifact to its final name
func (LocalDiskStorage) Publish(stagingPath, finalPath string) error {
	if err := os.Rename(stagingPath, finalPath); err != nil {
		return fmt.Errorf("failed to publish file: %w", err)
	}
	syncDir(filepath.Dir(finalPath))
	return nil
}

// FinalPath returns <disk>/users/<owner>/<storedName>
func (LocalDiskStorage) FinalPath(diskPath, owner, storedName string) string {
	return filepath.Join(diskPath, usersDirName, safeSegment(owner), safeSegment(storedName))
}

// RemoveTempDir deletes a scratch dir and reports the bytes it held
func (LocalDiskStorage) RemoveTempDir(tempPath string) (uint64, error) {
	size, _, _, _, err := scanDir(tempPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if err := os.RemoveAll(tempPath); err != nil {
		return 0, fmt.Errorf("failed to remove temp dir: %w", err)
	}
	return size, nil
}

// RemoveFile deletes path; a missing file is not an error
func (LocalDiskStorage) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Open opens a stored file for reading
func (LocalDiskStorage) Open(path string) (io.ReadSeekCloser, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, entities.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// DetectMime sniffs the content type of path
func (LocalDiskStorage) DetectMime(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}

// ListTempDirs enumerates the scratch dirs under <disk>/temp
func (LocalDiskStorage) ListTempDirs(diskPath string) ([]repository.TempDir, error) {
	root := TempRoot(diskPath)
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read temp root: %w", err)
	}

	dirs := make([]repository.TempDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		size, files, newest, oldest, err := scanDir(path)
		if err != nil {
			// Removed concurrently by a finalizer or cancel.
			continue
		}
		dirs = append(dirs, repository.TempDir{
			UploadID: entry.Name(),
			Path:     path,
			DiskPath: diskPath,
			Files:    files,
			Size:     size,
			ModTime:  newest,
			Oldest:   oldest,
		})
	}
	return dirs, nil
}

// scanDir sums regular files under dir and returns the newest and oldest
// modification times. An empty dir reports its own mtime for both.
func scanDir(dir string) (size uint64, files int, newest, oldest time.Time, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, 0, time.Time{}, time.Time{}, err
	}
	newest = info.ModTime()

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}

		files++
		size += uint64(fi.Size())
		mt := fi.ModTime()
		if mt.After(newest) {
			newest = mt
		}
		if oldest.IsZero() || mt.Before(oldest) {
			oldest = mt
		}
		return nil
	})
	if oldest.IsZero() {
		oldest = info.ModTime()
	}
	return size, files, newest, oldest, err
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

func safeSegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_").Replace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
