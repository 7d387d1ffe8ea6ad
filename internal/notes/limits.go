package notes

import (
	"fmt"

	"github.com/kuitang/notekeep/internal/kv"
)

// StorageUsageInfo describes how much of the store quota the notes
// collection occupies. LimitBytes is 0 when the backend is unlimited.
type StorageUsageInfo struct {
	UsedBytes  int64   `json:"used_bytes"`
	LimitBytes int64   `json:"limit_bytes"`
	UsedMB     float64 `json:"used_mb"`
	LimitMB    float64 `json:"limit_mb"`
	Percentage float64 `json:"percentage"`
}

// CheckStorageLimit reports whether growing the stored value from
// currentSize to newSize bytes fits within limit. Shrinking always fits, and
// a limit of 0 or less means unlimited.
func CheckStorageLimit(currentSize, newSize, limit int64) error {
	if limit <= 0 || newSize <= currentSize {
		return nil
	}
	if newSize > limit {
		return fmt.Errorf("%w (current: %d bytes, new: %d bytes, limit: %d bytes)",
			kv.ErrQuotaExceeded, currentSize, newSize, limit)
	}
	return nil
}

// NewStorageUsageInfo creates a StorageUsageInfo from the given used bytes
// and quota.
func NewStorageUsageInfo(usedBytes, limitBytes int64) StorageUsageInfo {
	const mb = 1024 * 1024
	info := StorageUsageInfo{
		UsedBytes:  usedBytes,
		LimitBytes: limitBytes,
		UsedMB:     float64(usedBytes) / mb,
		LimitMB:    float64(limitBytes) / mb,
	}
	if limitBytes > 0 {
		info.Percentage = min(float64(usedBytes)/float64(limitBytes)*100, 100)
	}
	return info
}
