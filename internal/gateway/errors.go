package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable means the backend has not finished initializing.
	// Write callers surface it to the user; the synchronizer just keeps
	// waiting on its readiness tick.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrNotFound is returned when deleting or patching a record that does
	// not exist. Deleting an already-deleted record is benign.
	ErrNotFound = errors.New("record not found")
)

// WriteRejectedError is an authorization or validation failure at the
// backend. It is never retried; the user gets their input back.
type WriteRejectedError struct {
	Reason string
}

func (e *WriteRejectedError) Error() string {
	return fmt.Sprintf("write rejected: %s", e.Reason)
}

// RejectWrite builds a WriteRejectedError.
func RejectWrite(format string, args ...any) error {
	return &WriteRejectedError{Reason: fmt.Sprintf(format, args...)}
}

// IsWriteRejected reports whether err is a WriteRejectedError.
func IsWriteRejected(err error) bool {
	var wr *WriteRejectedError
	return errors.As(err, &wr)
}
