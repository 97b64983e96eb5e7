package entities

import "math"

// DiskRecord describes one configured backing disk at the moment it was probed
type DiskRecord struct {
	Path            string  `json:"path"`
	TotalSpace      uint64  `json:"total_space"`
	UsedSpace       uint64  `json:"used_space"`
	AvailableSpace  uint64  `json:"available_space"`
	UsagePercentage float64 `json:"usage_percentage"`
	IsAccessible    bool    `json:"is_accessible"`
}

// StorageInfo aggregates all configured disks
type StorageInfo struct {
	TotalSpace      uint64       `json:"total_space"`
	UsedSpace       uint64       `json:"used_space"`
	AvailableSpace  uint64       `json:"available_space"`
	UsagePercentage float64      `json:"usage_percentage"`
	DiskCount       int          `json:"disk_count"`
	Disks           []DiskRecord `json:"disks"`
}

// UsagePercent returns used/total*100 rounded to two decimals, for display only
func UsagePercent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	pct := float64(used) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return math.Round(pct*100) / 100
}

// CleanupResult summarizes a janitor sweep
type CleanupResult struct {
	CleanedSessions int    `json:"cleaned_sessions"`
	CleanedOrphans  int    `json:"cleaned_orphans"`
	FreedBytes      uint64 `json:"freed_space"`
}

// TempFilesInfo summarizes scratch storage across all disks
type TempFilesInfo struct {
	TotalFiles         int      `json:"total_files"`
	TotalSize          uint64   `json:"total_size"`
	OldestFileAgeHours *float64 `json:"oldest_file_age_hours,omitempty"`
}

// CancelResult is returned when a client cancels an upload
type CancelResult struct {
	UploadID   string `json:"upload_id"`
	FreedBytes uint64 `json:"freed_space"`
}
