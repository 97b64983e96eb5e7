package entities

import (
	"sort"
	"time"
)

// UploadStatus defines the lifecycle state of an upload session
type UploadStatus string

const (
	UploadStatusActive    UploadStatus = "active"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusCancelled UploadStatus = "cancelled"
	UploadStatusExpired   UploadStatus = "expired"
)

// IsTerminal reports whether no further chunk writes or transitions are accepted
func (s UploadStatus) IsTerminal() bool {
	return s != UploadStatusActive
}

// Valid reports whether s is a known status
func (s UploadStatus) Valid() bool {
	switch s {
	case UploadStatusActive, UploadStatusCompleted, UploadStatusCancelled, UploadStatusExpired:
		return true
	}
	return false
}

// UploadSession represents one in-flight chunked transfer
type UploadSession struct {
	ID             string       `json:"upload_id"`
	Owner          string       `json:"owner"`
	Filename       string       `json:"filename"`
	TotalSize      int64        `json:"total_size"`
	ChunkSize      int64        `json:"chunk_size"`
	TotalChunks    int          `json:"total_chunks"`
	ReceivedChunks []int        `json:"received_chunks"`
	TempPath       string       `json:"-"`
	DiskPath       string       `json:"-"`
	Status         UploadStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TotalChunks returns ceil(totalSize / chunkSize), or 0 for non-positive input
func TotalChunks(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// ExpectedChunkSize returns the byte length chunk index (1-based) must have.
// It returns 0 when index is outside 1..TotalChunks.
func ExpectedChunkSize(totalSize, chunkSize int64, index int) int64 {
	total := TotalChunks(totalSize, chunkSize)
	if index < 1 || index > total {
		return 0
	}
	if index < total {
		return chunkSize
	}
	return totalSize - chunkSize*int64(total-1)
}

// ExpectedChunkSize returns the expected payload size for index in this session
func (s *UploadSession) ExpectedChunkSize(index int) int64 {
	return ExpectedChunkSize(s.TotalSize, s.ChunkSize, index)
}

// HasChunk reports whether index has been durably received
func (s *UploadSession) HasChunk(index int) bool {
	for _, i := range s.ReceivedChunks {
		if i == index {
			return true
		}
	}
	return false
}

// MissingChunks lists the indices in 1..TotalChunks not yet received, ascending
func (s *UploadSession) MissingChunks() []int {
	received := make(map[int]struct{}, len(s.ReceivedChunks))
	for _, i := range s.ReceivedChunks {
		received[i] = struct{}{}
	}

	missing := make([]int, 0)
	for i := 1; i <= s.TotalChunks; i++ {
		if _, ok := received[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// IsComplete reports whether every chunk has been received
func (s *UploadSession) IsComplete() bool {
	return len(s.MissingChunks()) == 0
}

// ReceivedBytes sums the expected sizes of received chunks
func (s *UploadSession) ReceivedBytes() int64 {
	var n int64
	for _, i := range s.ReceivedChunks {
		n += s.ExpectedChunkSize(i)
	}
	return n
}

// SortChunks orders ReceivedChunks ascending
func (s *UploadSession) SortChunks() {
	sort.Ints(s.ReceivedChunks)
}

// UploadSessionView is the status projection returned to clients
type UploadSessionView struct {
	UploadID       string       `json:"upload_id"`
	Filename       string       `json:"filename"`
	TotalSize      int64        `json:"total_size"`
	ChunkSize      int64        `json:"chunk_size"`
	TotalChunks    int          `json:"total_chunks"`
	UploadedChunks int          `json:"uploaded_chunks"`
	UploadedBytes  int64        `json:"uploaded_bytes"`
	ReceivedChunks []int        `json:"received_chunks"`
	Status         UploadStatus `json:"status"`
	IsCompleted    bool         `json:"is_completed"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// View builds the client-facing projection of the session
func (s *UploadSession) View() *UploadSessionView {
	chunks := make([]int, len(s.ReceivedChunks))
	copy(chunks, s.ReceivedChunks)
	sort.Ints(chunks)

	return &UploadSessionView{
		UploadID:       s.ID,
		Filename:       s.Filename,
		TotalSize:      s.TotalSize,
		ChunkSize:      s.ChunkSize,
		TotalChunks:    s.TotalChunks,
		UploadedChunks: len(chunks),
		UploadedBytes:  s.ReceivedBytes(),
		ReceivedChunks: chunks,
		Status:         s.Status,
		IsCompleted:    s.Status == UploadStatusCompleted,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// InitiateUploadRequest opens a new session
type InitiateUploadRequest struct {
	Filename  string `json:"filename" binding:"required"`
	TotalSize int64  `json:"total_size" binding:"required"`
	ChunkSize int64  `json:"chunk_size"`
}

// InitiateUploadResponse is returned by initiate
type InitiateUploadResponse struct {
	UploadID    string `json:"upload_id"`
	ChunkSize   int64  `json:"chunk_size"`
	TotalChunks int    `json:"total_chunks"`
}

// ChunkReceipt is returned after a chunk is durably recorded
type ChunkReceipt struct {
	ChunkNumber     int       `json:"chunk_number"`
	Uploaded        bool      `json:"uploaded"`
	UploadCompleted bool      `json:"upload_completed"`
	UploadedChunks  int       `json:"uploaded_chunks"`
	TotalChunks     int       `json:"total_chunks"`
	FileInfo        *FileInfo `json:"file_info,omitempty"`
}
