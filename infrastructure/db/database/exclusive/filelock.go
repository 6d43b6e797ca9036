// Package exclusive provides ExclusiveAccessGuard implementations that keep
// more than one process from opening the same storage location.
package exclusive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/pkg/errors"
)

// LockFileName is the name of the lock file created inside a locked
// storage directory.
const LockFileName = "EXCLUSIVE.lock"

// FileLock is an advisory, exclusive lock on a file. It is held from
// AcquireFileLock until Release.
type FileLock struct {
	path string
	file *os.File
}

var _ backend.ExclusiveAccessGuard = (*FileLock)(nil)

// AcquireDirectoryLock locks the lock file inside dir, creating dir if
// needed.
func AcquireDirectoryLock(dir string) (*FileLock, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return nil, backend.IOError(err, "failed to create directory %s", dir)
	}
	return AcquireFileLock(filepath.Join(dir, LockFileName))
}

// AcquireFileLock opens or creates the file at path and locks it without
// waiting. If another holder has it locked, an error matching
// backend.ErrLockContention is returned.
func AcquireFileLock(path string) (*FileLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, backend.IOError(err, "failed to open lock file %s", path)
	}

	err = lockFile(file)
	if err != nil {
		closeErr := file.Close()
		if closeErr != nil {
			log.Warnf("Failed to close lock file %s: %s", path, closeErr)
		}
		if isContention(err) {
			return nil, backend.LockContentionError(err, "%s is locked by another process", path)
		}
		return nil, backend.IOError(err, "failed to lock %s", path)
	}

	// The owner's pid is informational only; the lock is what counts.
	if err := file.Truncate(0); err == nil {
		_, _ = file.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0)
	}

	log.Debugf("Acquired exclusive lock on %s", path)
	return &FileLock{path: path, file: file}, nil
}

// Path returns the path of the lock file.
func (l *FileLock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file.
func (l *FileLock) Release() error {
	if l.file == nil {
		return errors.Errorf("lock on %s is already released", l.path)
	}
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return backend.IOError(unlockErr, "failed to unlock %s", l.path)
	}
	if closeErr != nil {
		return backend.IOError(closeErr, "failed to close lock file %s", l.path)
	}
	log.Debugf("Released exclusive lock on %s", l.path)
	return nil
}
