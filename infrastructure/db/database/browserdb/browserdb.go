// Package browserdb implements the BrowserStorage backend: versions are
// kept in memory as immutable radix trees, and every committed batch is
// appended as a checksummed record to a StorageHandle, from which the state
// is rebuilt on open.
package browserdb

import (
	"bytes"
	"hash/crc32"
	"io"
	"sync"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/kaspanet/fedstore/infrastructure/db/database/memdb"
	"github.com/pkg/errors"
)

// BrowserDB is the BrowserStorage backend.
type BrowserDB struct {
	mutex    sync.RWMutex
	handle   StorageHandle
	readOnly bool
	isClosed bool

	latest *memdb.TreeView

	// endOffset is where the next record is appended.
	endOffset int64
}

var _ backend.Backend = (*BrowserDB)(nil)

// Open rebuilds the state stored in handle and returns a BrowserDB that
// owns it. A record cut short at the end of the store is the trace of a
// crash during a commit; it is dropped (and, unless readOnly, truncated
// away). Any other damage fails with backend.ErrCorruption. The handle is
// closed if Open fails.
func Open(handle StorageHandle, readOnly bool) (*BrowserDB, error) {
	db := &BrowserDB{
		handle:   handle,
		readOnly: readOnly,
		latest:   memdb.EmptyTreeView(),
	}
	err := db.load()
	if err != nil {
		closeErr := handle.Close()
		if closeErr != nil {
			log.Warnf("Failed to close the storage handle after a failed open: %s", closeErr)
		}
		return nil, err
	}
	log.Debugf("Opened browser storage at version %d (%d bytes)", db.latest.Version(), db.endOffset)
	return db, nil
}

func (db *BrowserDB) load() error {
	size, err := db.handle.Size()
	if err != nil {
		return backend.IOError(err, "failed to get the storage size")
	}
	if size == 0 {
		if db.readOnly {
			return nil
		}
		return db.writeHeader()
	}

	data := make([]byte, size)
	n, err := db.handle.ReadAt(data, 0)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == size) {
		return backend.IOError(err, "failed to read %d bytes of storage", size)
	}

	if len(data) < len(header) || !bytes.Equal(data[:len(header)], header) {
		return backend.CorruptionError(nil, "storage does not start with the expected header")
	}

	offset := int64(len(header))
	for offset < size {
		record, recordLength, err := readRecord(data[offset:])
		if errors.Is(err, errTornRecord) {
			log.Warnf("Dropping an incomplete record of %d bytes at offset %d, "+
				"left by an interrupted commit", size-offset, offset)
			if !db.readOnly {
				err := db.handle.Truncate(offset)
				if err != nil {
					return backend.IOError(err, "failed to truncate storage to %d bytes", offset)
				}
			}
			break
		}
		if err != nil {
			return backend.CorruptionError(err, "bad record at offset %d", offset)
		}

		next, err := db.latest.Apply(record)
		if err != nil {
			return backend.CorruptionError(err, "record at offset %d does not apply", offset)
		}
		db.latest = next
		offset += recordLength
	}
	db.endOffset = offset
	return nil
}

func (db *BrowserDB) writeHeader() error {
	_, err := db.handle.WriteAt(header, 0)
	if err != nil {
		return backend.IOError(err, "failed to write the storage header")
	}
	err = db.handle.Flush()
	if err != nil {
		return backend.IOError(err, "failed to flush the storage header")
	}
	db.endOffset = int64(len(header))
	return nil
}

var errTornRecord = errors.New("torn record")

// readRecord parses the record at the start of data. It returns
// errTornRecord only if data ends before the record does, which is what a
// crash in the middle of an append leaves behind. A complete record that
// fails its checksum was committed and is reported as damaged.
func readRecord(data []byte) (*backend.Batch, int64, error) {
	if len(data) < recordOverhead {
		return nil, 0, errTornRecord
	}
	payloadLength := int64(byteOrder.Uint32(data))
	if payloadLength > maxPayloadLength {
		return nil, 0, errors.Errorf("record length %d exceeds the maximum of %d",
			payloadLength, maxPayloadLength)
	}
	recordLength := payloadLengthLength + payloadLength + checksumLength
	if int64(len(data)) < recordLength {
		return nil, 0, errTornRecord
	}

	checksummed := data[:payloadLengthLength+payloadLength]
	serializedChecksum := crc32ByteOrder.Uint32(data[payloadLengthLength+payloadLength:])
	calculatedChecksum := crc32.Checksum(checksummed, castagnoli)
	if serializedChecksum != calculatedChecksum {
		return nil, 0, errors.Errorf("record does not match checksum - got %x, want %x",
			calculatedChecksum, serializedChecksum)
	}

	batch, err := decodeBatch(data[payloadLengthLength : payloadLengthLength+payloadLength])
	if err != nil {
		return nil, 0, err
	}
	return batch, recordLength, nil
}

// Latest returns a view of the latest version.
func (db *BrowserDB) Latest() (backend.View, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	if db.isClosed {
		return nil, errors.WithStack(backend.ErrClosed)
	}
	return db.latest, nil
}

// Write appends the batch to the storage, flushes it, and only then
// publishes the new version. If the append fails, whatever part of the
// record reached the storage is truncated away.
func (db *BrowserDB) Write(batch *backend.Batch) (backend.View, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.isClosed {
		return nil, errors.WithStack(backend.ErrClosed)
	}
	if db.readOnly {
		return nil, errors.New("cannot write to browser storage: opened read-only")
	}

	next, err := db.latest.Apply(batch)
	if err != nil {
		return nil, err
	}

	record := serializeRecord(batch)
	_, err = db.handle.WriteAt(record, db.endOffset)
	if err == nil {
		err = db.handle.Flush()
	}
	if err != nil {
		truncateErr := db.handle.Truncate(db.endOffset)
		if truncateErr != nil {
			log.Errorf("Failed to truncate a partially written record at offset %d: %s",
				db.endOffset, truncateErr)
		}
		return nil, backend.IOError(err, "failed to persist batch of version %d", batch.Version)
	}

	db.endOffset += int64(len(record))
	db.latest = next
	log.Tracef("Appended batch of version %d (%d bytes)", batch.Version, len(record))
	return next, nil
}

// Close closes the storage handle.
func (db *BrowserDB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.isClosed {
		return errors.WithStack(backend.ErrClosed)
	}
	db.isClosed = true
	err := db.handle.Close()
	if err != nil {
		return backend.IOError(err, "failed to close the storage handle")
	}
	return nil
}
