package database

import (
	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/pkg/errors"
)

// Storage failures, shared with the backends.
var (
	// ErrIO denotes a failure of the durable medium. The transaction that
	// hit it is aborted and the last committed snapshot stays intact, so
	// the caller may retry the whole transaction.
	ErrIO = backend.ErrIO

	// ErrCorruption denotes persisted data that failed a checksum or
	// structural check. It requires operator intervention.
	ErrCorruption = backend.ErrCorruption

	// ErrLockContention is returned by Open when another holder has
	// exclusive access to the location.
	ErrLockContention = backend.ErrLockContention
)

var (
	// ErrNotFound denotes that the requested item was not
	// found in the database.
	ErrNotFound = errors.New("not found")

	// ErrWouldBlock is returned by BeginWrite when its context expires
	// before the write lock is acquired, and by TryBeginWrite when the
	// write lock is taken. It is safe to retry.
	ErrWouldBlock = errors.New("write transaction would block")

	// ErrInvalidSavepoint denotes the use of a savepoint that was
	// invalidated by a rollback or that belongs to another transaction.
	// The transaction it was used on can no longer be committed.
	ErrInvalidSavepoint = errors.New("invalid savepoint")

	// ErrTransactionClosed denotes the use of a committed or rolled back
	// transaction.
	ErrTransactionClosed = errors.New("transaction is closed")

	// ErrReadOnly denotes a write attempted through a read transaction or
	// on a database opened read-only.
	ErrReadOnly = errors.New("read-only")

	// ErrDatabaseClosed denotes the use of a closed database.
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrKeyExists is returned by Handle.InsertNew when the key is
	// already present.
	ErrKeyExists = errors.New("key already exists")

	// ErrInvalidNamespace denotes a namespace that is not configured or
	// a namespace configuration that is not valid.
	ErrInvalidNamespace = errors.New("invalid namespace")
)

// IsNotFoundError checks whether an error is an ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIOError checks whether an error is an ErrIO.
func IsIOError(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsCorruptionError checks whether an error is an ErrCorruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// IsLockContentionError checks whether an error is an ErrLockContention.
func IsLockContentionError(err error) bool {
	return errors.Is(err, ErrLockContention)
}

// IsWouldBlockError checks whether an error is an ErrWouldBlock.
func IsWouldBlockError(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

// IsInvalidSavepointError checks whether an error is an ErrInvalidSavepoint.
func IsInvalidSavepointError(err error) bool {
	return errors.Is(err, ErrInvalidSavepoint)
}
