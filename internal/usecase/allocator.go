package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/zots0127/drive/internal/domain/entities"
	"github.com/zots0127/drive/internal/domain/repository"
)

// DefaultSafetyMargin is the free space kept in reserve on every disk
const DefaultSafetyMargin uint64 = 100 * 1024 * 1024

// DiskAllocator picks a backing disk for new uploads. Disks are probed on
// every call, never cached.
type DiskAllocator struct {
	disks  []string
	probe  repository.DiskProbe
	margin uint64
}

// NewDiskAllocator creates an allocator over disks in priority order
func NewDiskAllocator(disks []string, probe repository.DiskProbe, margin uint64) *DiskAllocator {
	return &DiskAllocator{
		disks:  append([]string(nil), disks...),
		probe:  probe,
		margin: margin,
	}
}

// Disks returns the configured disk paths in priority order
func (a *DiskAllocator) Disks() []string {
	return append([]string(nil), a.disks...)
}

// ChooseDisk returns the first accessible disk whose available space covers
// requiredSize plus the safety margin
func (a *DiskAllocator) ChooseDisk(ctx context.Context, requiredSize int64) (entities.DiskRecord, error) {
	if requiredSize < 0 {
		requiredSize = 0
	}
	need := uint64(requiredSize) + a.margin

	accessible := false
	for _, path := range a.disks {
		record := a.probe.Probe(ctx, path)
		if !record.IsAccessible {
			continue
		}
		accessible = true
		if record.AvailableSpace >= need {
			return record, nil
		}
	}

	if !accessible {
		return entities.DiskRecord{}, entities.ErrDiskInaccessible
	}
	return entities.DiskRecord{}, fmt.Errorf("%w: need %s", entities.ErrNoSpaceAvailable, humanize.IBytes(need))
}

// Report aggregates fresh records for every configured disk
func (a *DiskAllocator) Report(ctx context.Context) *entities.StorageInfo {
	info := &entities.StorageInfo{
		DiskCount: len(a.disks),
		Disks:     make([]entities.DiskRecord, 0, len(a.disks)),
	}

	for _, path := range a.disks {
		record := a.probe.Probe(ctx, path)
		info.Disks = append(info.Disks, record)
		info.TotalSpace += record.TotalSpace
		info.UsedSpace += record.UsedSpace
		info.AvailableSpace += record.AvailableSpace
	}
	info.UsagePercentage = entities.UsagePercent(info.UsedSpace, info.TotalSpace)

	return info
}

// UsageReport renders Report as plain text
func (a *DiskAllocator) UsageReport(ctx context.Context) string {
	info := a.Report(ctx)

	var b strings.Builder
	b.WriteString("Disk Usage Report:\n")
	fmt.Fprintf(&b, "Total Disks: %d\n", info.DiskCount)

	for i, disk := range info.Disks {
		fmt.Fprintf(&b, "Disk %d: %s\n", i+1, disk.Path)
		fmt.Fprintf(&b, "  Total: %s\n", humanize.IBytes(disk.TotalSpace))
		fmt.Fprintf(&b, "  Used: %s\n", humanize.IBytes(disk.UsedSpace))
		fmt.Fprintf(&b, "  Available: %s\n", humanize.IBytes(disk.AvailableSpace))
		fmt.Fprintf(&b, "  Usage: %.2f%%\n", disk.UsagePercentage)
		fmt.Fprintf(&b, "  Accessible: %t\n\n", disk.IsAccessible)
	}

	fmt.Fprintf(&b, "Total: %s used of %s (%.2f%%), %s available\n",
		humanize.IBytes(info.UsedSpace), humanize.IBytes(info.TotalSpace),
		info.UsagePercentage, humanize.IBytes(info.AvailableSpace))

	return b.String()
}
