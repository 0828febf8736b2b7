package internal

import (
	"context"
	"os"
)

// QuotaInfo reports current storage usage against the available quota.
type QuotaInfo struct {
	Used  int64
	Quota int64
}

// QuotaOracle reports storage usage and quota in bytes. Implementations
// that cannot determine usage should return the default-quota fallback
// rather than an error; genuine query failures propagate.
type QuotaOracle interface {
	Usage(ctx context.Context) (QuotaInfo, error)
}

// FileQuota measures usage by stat'ing the database file (and its WAL
// sidecar) and reports a configured quota. A missing file means the store
// has not been written yet, so usage is zero.
type FileQuota struct {
	Path  string
	Quota int64
}

// NewFileQuota creates a FileQuota for the given database path. A
// non-positive quota falls back to DefaultQuotaBytes.
func NewFileQuota(path string, quota int64) *FileQuota {
	if quota <= 0 {
		quota = DefaultQuotaBytes
	}
	return &FileQuota{Path: path, Quota: quota}
}

// Usage returns the combined size of the database file and WAL sidecar.
func (q *FileQuota) Usage(ctx context.Context) (QuotaInfo, error) {
	var used int64
	for _, p := range []string{q.Path, q.Path + "-wal"} {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return QuotaInfo{}, &QuotaError{Err: err}
		}
		used += info.Size()
	}
	return QuotaInfo{Used: used, Quota: q.Quota}, nil
}

// StaticQuota is a fixed-value oracle, used in tests and as the fallback
// when the platform exposes no quota information.
type StaticQuota struct {
	Info QuotaInfo
	Err  error
}

// Usage returns the configured values.
func (q *StaticQuota) Usage(ctx context.Context) (QuotaInfo, error) {
	if q.Err != nil {
		return QuotaInfo{}, q.Err
	}
	return q.Info, nil
}

// DefaultQuota is the "unknown platform" fallback: nothing used, a
// generous quota assumed.
func DefaultQuota() QuotaInfo {
	return QuotaInfo{Used: 0, Quota: DefaultQuotaBytes}
}
