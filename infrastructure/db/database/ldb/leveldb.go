// Package ldb implements the Persistent backend on top of goleveldb. Every
// batch is written with a synced leveldb write, so a batch is either fully
// durable or absent after a crash, and versions are served from leveldb
// snapshots.
package ldb

import (
	"encoding/binary"
	"syscall"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// Keys are split into two disjoint spaces: user data under dataPrefix and
// bookkeeping under metaPrefix.
var (
	dataPrefix = []byte{'d'}
	metaPrefix = []byte{'m'}

	versionKey = metaKey("version")
	stateKey   = metaKey("state")
)

func metaKey(name string) []byte {
	return append(append([]byte{}, metaPrefix...), name...)
}

func dataKey(key []byte) []byte {
	fullKey := make([]byte, len(dataPrefix)+len(key))
	copy(fullKey, dataPrefix)
	copy(fullKey[len(dataPrefix):], key)
	return fullKey
}

// LevelDB defines a thin wrapper around leveldb.
type LevelDB struct {
	ldb      *leveldb.DB
	path     string
	readOnly bool
	version  uint64
}

var _ backend.Backend = (*LevelDB)(nil)

// Open opens the leveldb instance at path, creating it unless readOnly is
// set. A corrupted database is reported as backend.ErrCorruption and left
// untouched; see Repair.
func Open(path string, readOnly bool) (*LevelDB, error) {
	options := Options()
	options.ReadOnly = readOnly
	options.ErrorIfMissing = readOnly

	ldb, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, translateOpenError(err, path)
	}
	return newLevelDB(ldb, path, readOnly)
}

// OpenStorage opens a leveldb instance over the given storage. It's used
// to run the backend over non-file media such as storage.NewMemStorage.
func OpenStorage(stor storage.Storage, readOnly bool) (*LevelDB, error) {
	options := Options()
	options.ReadOnly = readOnly

	ldb, err := leveldb.Open(stor, options)
	if err != nil {
		return nil, translateOpenError(err, "<storage>")
	}
	return newLevelDB(ldb, "<storage>", readOnly)
}

func newLevelDB(ldb *leveldb.DB, path string, readOnly bool) (*LevelDB, error) {
	db := &LevelDB{
		ldb:      ldb,
		path:     path,
		readOnly: readOnly,
	}
	version, err := readVersion(ldb.Get)
	if err != nil {
		closeErr := ldb.Close()
		if closeErr != nil {
			log.Warnf("Failed to close leveldb at %s after a failed open: %s", path, closeErr)
		}
		return nil, err
	}
	db.version = version
	log.Debugf("Opened leveldb at %s (version %d, read-only: %t)", path, version, readOnly)
	return db, nil
}

func translateOpenError(err error, path string) error {
	switch {
	case ldbErrors.IsCorrupted(err):
		return backend.CorruptionError(err, "leveldb at %s is corrupted", path)
	case errors.Is(err, syscall.EWOULDBLOCK), errors.Is(err, syscall.EAGAIN), errors.Is(err, storage.ErrLocked):
		return backend.LockContentionError(err, "leveldb at %s is in use", path)
	default:
		return backend.IOError(err, "failed to open leveldb at %s", path)
	}
}

// translateError maps a leveldb operation error onto the backend taxonomy.
func translateError(err error, format string, args ...interface{}) error {
	switch {
	case errors.Is(err, leveldb.ErrClosed), errors.Is(err, leveldb.ErrSnapshotReleased),
		errors.Is(err, leveldb.ErrIterReleased):
		return errors.Wrapf(backend.ErrClosed, format, args...)
	case ldbErrors.IsCorrupted(err):
		return backend.CorruptionError(err, format, args...)
	default:
		return backend.IOError(err, format, args...)
	}
}

type getFunc func(key []byte, ro *opt.ReadOptions) ([]byte, error)

func readVersion(get getFunc) (uint64, error) {
	serializedVersion, err := get(versionKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, translateError(err, "failed to read the database version")
	}
	if len(serializedVersion) != 8 {
		return 0, backend.CorruptionError(nil, "database version has length %d, want 8",
			len(serializedVersion))
	}
	return binary.BigEndian.Uint64(serializedVersion), nil
}

func readState(get getFunc) ([]byte, error) {
	state, err := get(stateKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err, "failed to read the database state")
	}
	return state, nil
}

// Latest returns a view pinned to the latest committed version.
func (db *LevelDB) Latest() (backend.View, error) {
	snapshot, err := db.ldb.GetSnapshot()
	if err != nil {
		return nil, translateError(err, "failed to take a leveldb snapshot")
	}
	return newView(snapshot)
}

// Write writes the batch with a single synced leveldb write.
func (db *LevelDB) Write(batch *backend.Batch) (backend.View, error) {
	if db.readOnly {
		return nil, errors.Errorf("cannot write to leveldb at %s: opened read-only", db.path)
	}
	if batch.Version != db.version+1 {
		return nil, errors.Errorf("batch version %d does not follow version %d",
			batch.Version, db.version)
	}

	ldbBatch := new(leveldb.Batch)
	for _, operation := range batch.Operations {
		if operation.Remove {
			ldbBatch.Delete(dataKey(operation.Key))
			continue
		}
		ldbBatch.Put(dataKey(operation.Key), operation.Value)
	}
	serializedVersion := make([]byte, 8)
	binary.BigEndian.PutUint64(serializedVersion, batch.Version)
	ldbBatch.Put(versionKey, serializedVersion)
	ldbBatch.Put(stateKey, batch.State)

	err := db.ldb.Write(ldbBatch, syncWriteOptions)
	if err != nil {
		return nil, translateError(err, "failed to write batch of version %d", batch.Version)
	}
	db.version = batch.Version
	log.Tracef("Wrote batch of version %d with %d operations", batch.Version, len(batch.Operations))

	return db.Latest()
}

// Close closes the leveldb instance.
func (db *LevelDB) Close() error {
	err := db.ldb.Close()
	if err != nil {
		return translateError(err, "failed to close leveldb at %s", db.path)
	}
	return nil
}

// Repair rebuilds the leveldb instance at path from whatever tables and
// journals are still readable. Data in damaged blocks is lost. It is meant
// to be run by an operator on a database that failed to open with
// backend.ErrCorruption; nothing in this package calls it on its own.
func Repair(path string) error {
	log.Warnf("Repairing leveldb at %s", path)
	ldb, err := leveldb.RecoverFile(path, Options())
	if err != nil {
		return translateOpenError(err, path)
	}
	err = ldb.Close()
	if err != nil {
		return translateError(err, "failed to close leveldb at %s after repair", path)
	}
	log.Warnf("Repaired leveldb at %s", path)
	return nil
}
