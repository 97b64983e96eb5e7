package repository

import (
	"context"
	"os"

	"golang.org/x/sys/unix"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

// StatfsProbe reads disk statistics with statfs(2)
type StatfsProbe struct{}

var _ repository.DiskProbe = StatfsProbe{}

// NewDiskProbe creates a statfs-backed disk probe
func NewDiskProbe() StatfsProbe {
	return StatfsProbe{}
}

// Probe returns the live record for path. A missing, non-directory or
// non-writable path is reported as inaccessible with zero capacity.
func (StatfsProbe) Probe(ctx context.Context, path string) entities.DiskRecord {
	record := entities.DiskRecord{Path: path}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return record
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return record
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return record
	}

	bsize := uint64(stat.Bsize)
	total := stat.Blocks * bsize
	free := stat.Bfree * bsize
	available := stat.Bavail * bsize

	record.TotalSpace = total
	record.UsedSpace = total - free
	record.AvailableSpace = available
	record.UsagePercentage = entities.UsagePercent(record.UsedSpace, total)
	record.IsAccessible = true
	return record
}
