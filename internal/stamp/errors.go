package stamp

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's failure taxonomy. The HTTP boundary
// maps them to stable status codes; nothing below leaks storage detail.
var (
	ErrNotFound        = errors.New("account not found")
	ErrForbidden       = errors.New("staff not authorized for this merchant")
	ErrInvalidArgument = errors.New("invalid argument")
)

// StorageError wraps lower-level persistence failures, including lock-wait
// timeouts. The whole operation rolled back; a retry with the same
// idempotency key is always safe.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
