package browserdb

import (
	"io"
	"os"
	"sync"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/kaspanet/fedstore/infrastructure/db/database/exclusive"
	"github.com/pkg/errors"
)

// StorageHandle is a synchronous handle to a byte store that its holder
// accesses exclusively, such as the sync access handle of a sandboxed
// browser file system. Obtaining the handle is what grants exclusivity;
// BrowserDB never locks anything itself.
type StorageHandle interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the current size of the store in bytes.
	Size() (int64, error)

	// Truncate resizes the store to size bytes.
	Truncate(size int64) error

	// Flush makes all previous writes durable.
	Flush() error

	// Close gives up the handle and the exclusivity that comes with it.
	Close() error
}

// HandleOpener opens the storage handle identified by location.
type HandleOpener func(location string, readOnly bool) (StorageHandle, error)

// fileHandle is a StorageHandle over a regular file. Exclusivity is
// provided by an advisory lock on a sibling lock file.
type fileHandle struct {
	*os.File
	lock *exclusive.FileLock
}

// OpenFileHandle opens or creates the file at path as a StorageHandle. It
// fails with backend.ErrLockContention if another handle to the same path
// is open.
func OpenFileHandle(path string, readOnly bool) (StorageHandle, error) {
	lock, err := exclusive.AcquireFileLock(path + ".lock")
	if err != nil {
		return nil, err
	}
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flag, 0600)
	if err != nil {
		releaseErr := lock.Release()
		if releaseErr != nil {
			log.Warnf("Failed to release the lock on %s: %s", path, releaseErr)
		}
		return nil, backend.IOError(err, "failed to open storage file %s", path)
	}
	return &fileHandle{File: file, lock: lock}, nil
}

func (h *fileHandle) Size() (int64, error) {
	info, err := h.File.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (h *fileHandle) Flush() error {
	return h.File.Sync()
}

func (h *fileHandle) Close() error {
	closeErr := h.File.Close()
	releaseErr := h.lock.Release()
	if closeErr != nil {
		return closeErr
	}
	return releaseErr
}

// MemoryHandle is a StorageHandle kept in process memory. Its content
// survives Close, so a MemoryHandle can be reopened to simulate a restart.
type MemoryHandle struct {
	mutex  sync.Mutex
	data   []byte
	isOpen bool
}

// NewMemoryHandle returns an empty MemoryHandle.
func NewMemoryHandle() *MemoryHandle {
	return &MemoryHandle{}
}

// Acquire returns the handle for exclusive use. It fails with
// backend.ErrLockContention while the handle is held by someone else.
func (h *MemoryHandle) Acquire() (StorageHandle, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.isOpen {
		return nil, backend.LockContentionError(nil, "memory storage handle is already held")
	}
	h.isOpen = true
	return h, nil
}

// Bytes returns a copy of the handle's content.
func (h *MemoryHandle) Bytes() []byte {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return append([]byte{}, h.data...)
}

// SetBytes replaces the handle's content.
func (h *MemoryHandle) SetBytes(data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.data = append([]byte{}, data...)
}

func (h *MemoryHandle) ReadAt(p []byte, off int64) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if off >= int64(len(h.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *MemoryHandle) WriteAt(p []byte, off int64) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.isOpen {
		return 0, errors.New("memory storage handle is closed")
	}
	end := off + int64(len(p))
	if end > int64(len(h.data)) {
		grown := make([]byte, end)
		copy(grown, h.data)
		h.data = grown
	}
	return copy(h.data[off:], p), nil
}

func (h *MemoryHandle) Size() (int64, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return int64(len(h.data)), nil
}

func (h *MemoryHandle) Truncate(size int64) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if size < int64(len(h.data)) {
		h.data = h.data[:size]
	}
	return nil
}

func (h *MemoryHandle) Flush() error {
	return nil
}

func (h *MemoryHandle) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.isOpen {
		return errors.New("memory storage handle is already closed")
	}
	h.isOpen = false
	return nil
}
