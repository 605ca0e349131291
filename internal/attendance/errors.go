package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned for unknown record ids.
	ErrRecordNotFound = errors.New("attendance record not found")
	// ErrNotBootstrapped is returned before Bootstrap has loaded any state.
	ErrNotBootstrapped = errors.New("attendance records not loaded")

	ErrWriteFailed = errors.New("write failed")
	ErrCorruptRead = errors.New("corrupt read")
)

// PersistenceError wraps a storage failure with its kind.
type PersistenceError struct {
	Kind error
	Key  string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v: %v", e.Key, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{e.Kind, e.Err} }

// kindLabel names a persistence failure for metrics.
func kindLabel(err error) string {
	switch {
	case errors.Is(err, ErrCorruptRead):
		return "corrupt_read"
	case errors.Is(err, ErrWriteFailed):
		return "write_failed"
	default:
		return "unknown"
	}
}
