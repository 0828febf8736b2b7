package internal

import "fmt"

// StorageError represents errors from the underlying database
type StorageError struct {
	Path string
	Op   string // "open", "migrate"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ImportError represents a rejected archive import
type ImportError struct {
	Version int
	Reason  string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import error: %s (archive version %d)", e.Reason, e.Version)
}

// QuotaError represents a failed storage-quota query
type QuotaError struct {
	Err error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota query error: %v", e.Err)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}
