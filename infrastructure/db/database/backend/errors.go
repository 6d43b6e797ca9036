package backend

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrIO denotes a failure of the durable medium. The operation that
	// hit it is aborted; the last committed state remains valid.
	ErrIO = errors.New("storage I/O error")

	// ErrCorruption denotes that persisted data failed a checksum or
	// structural check. It is never repaired automatically.
	ErrCorruption = errors.New("storage corruption detected")

	// ErrLockContention denotes that another holder already has exclusive
	// access to the storage location.
	ErrLockContention = errors.New("storage location is locked by another holder")

	// ErrClosed denotes an operation on a closed backend.
	ErrClosed = errors.New("storage backend is closed")
)

// storageError ties a taxonomy sentinel to the underlying cause, so that
// both errors.Is(err, ErrIO) and errors.Is(err, cause) hold.
type storageError struct {
	kind  error
	cause error
}

func (e *storageError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.cause)
}

func (e *storageError) Unwrap() error {
	return e.cause
}

func (e *storageError) Is(target error) bool {
	return target == e.kind
}

// Format supports %+v, printing the cause's stack trace if it has one.
func (e *storageError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s: %+v", e.kind, e.cause)
		return
	}
	fmt.Fprint(s, e.Error())
}

func wrapKind(kind error, err error, format string, args ...interface{}) error {
	if err == nil {
		err = errors.New(fmt.Sprintf(format, args...))
	} else {
		err = errors.Wrapf(err, format, args...)
	}
	return &storageError{kind: kind, cause: err}
}

// IOError marks err as an ErrIO with the given context.
func IOError(err error, format string, args ...interface{}) error {
	return wrapKind(ErrIO, err, format, args...)
}

// CorruptionError marks err as an ErrCorruption with the given context.
// err may be nil when the corruption was detected by the caller.
func CorruptionError(err error, format string, args ...interface{}) error {
	return wrapKind(ErrCorruption, err, format, args...)
}

// LockContentionError marks err as an ErrLockContention with the given
// context.
func LockContentionError(err error, format string, args ...interface{}) error {
	return wrapKind(ErrLockContention, err, format, args...)
}
