package util

import (
	"fmt"
	"syscall"
)

// DiskStats describes the filesystem holding a directory
type DiskStats struct {
	UsedBytes      uint64
	AvailableBytes uint64
	TotalBytes     uint64
}

// UsagePercent returns used space as a percentage of the total
func (d DiskStats) UsagePercent() float64 {
	if d.TotalBytes == 0 {
		return 0
	}
	return float64(d.UsedBytes) / float64(d.TotalBytes) * 100
}

// GetDiskStats stats the filesystem of dir
func GetDiskStats(dir string) (DiskStats, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return DiskStats{}, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	total := stat.Blocks * uint64(stat.Bsize)
	return DiskStats{
		UsedBytes:      total - stat.Bfree*uint64(stat.Bsize),
		AvailableBytes: stat.Bavail * uint64(stat.Bsize),
		TotalBytes:     total,
	}, nil
}
