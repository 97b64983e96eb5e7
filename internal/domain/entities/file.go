package entities

import (
	"time"
)

// StoredFile represents a finalized, downloadable artifact
type StoredFile struct {
	ID               string
	Owner            string
	UploadID         string
	OriginalFilename string
	StoredName       string
	FilePath         string
	DiskPath         string
	Size             int64
	MimeType         string
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

// IsDeleted reports whether the file is in the trash
func (f *StoredFile) IsDeleted() bool {
	return f.DeletedAt != nil
}

// FileInfo is the client-facing projection of a stored file
type FileInfo struct {
	ID               string     `json:"id"`
	Filename         string     `json:"filename"`
	OriginalFilename string     `json:"original_filename"`
	DiskPath         string     `json:"disk_path"`
	FileSize         int64      `json:"file_size"`
	MimeType         string     `json:"mime_type,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

// Info builds the client-facing projection
func (f *StoredFile) Info() *FileInfo {
	return &FileInfo{
		ID:               f.ID,
		Filename:         f.StoredName,
		OriginalFilename: f.OriginalFilename,
		DiskPath:         f.DiskPath,
		FileSize:         f.Size,
		MimeType:         f.MimeType,
		CreatedAt:        f.CreatedAt,
		DeletedAt:        f.DeletedAt,
	}
}

// OwnerUsage totals the space one owner's files occupy
type OwnerUsage struct {
	Files      int    `json:"file_count"`
	UsedBytes  uint64 `json:"used_space"`
	TrashFiles int    `json:"trash_file_count"`
	TrashBytes uint64 `json:"trash_space"`
}
