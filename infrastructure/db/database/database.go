package database

import (
	"context"
	"sync/atomic"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/kaspanet/fedstore/infrastructure/db/database/browserdb"
	"github.com/kaspanet/fedstore/infrastructure/db/database/exclusive"
	"github.com/kaspanet/fedstore/infrastructure/db/database/ldb"
	"github.com/kaspanet/fedstore/infrastructure/db/database/memdb"
	"github.com/kaspanet/fedstore/util/locks"
	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"
)

// Database is a transactional key-value store over one backend. All of
// its methods are safe for concurrent use.
type Database struct {
	location   string
	kind       Kind
	readOnly   bool
	namespaces Namespaces

	backend   backend.Backend
	registry  *snapshotRegistry
	writeLock *locks.WriteLock
	metrics   *databaseMetrics

	isClosed uint32
}

// Open opens the database of the given kind at location, creating it if
// it doesn't exist and options.ReadOnly is not set. For KindPersistent and
// KindLocked the location is a directory; for KindBrowser it identifies a
// storage handle; KindMemory ignores it.
//
// Open fails with an error matching ErrLockContention if another holder
// has the location open, and with ErrCorruption if the stored data is
// damaged.
func Open(location string, kind Kind, options *Options) (*Database, error) {
	if options == nil {
		options = DefaultOptions()
	}
	err := options.Namespaces.Validate()
	if err != nil {
		return nil, err
	}

	dbBackend, err := openBackend(location, kind, options)
	if err != nil {
		return nil, err
	}
	return newDatabase(location, kind, options, dbBackend)
}

// newDatabase takes ownership of dbBackend, closing it if it fails.
func newDatabase(location string, kind Kind, options *Options, dbBackend backend.Backend) (*Database, error) {
	latest, err := dbBackend.Latest()
	if err != nil {
		closeBackendAfterFailure(dbBackend, location)
		return nil, err
	}
	digest, err := deserializeDigest(latest.State())
	if err != nil {
		latest.Release()
		closeBackendAfterFailure(dbBackend, location)
		return nil, err
	}

	registry := newSnapshotRegistry(newSnapshot(latest, digest))
	db := &Database{
		location:   location,
		kind:       kind,
		readOnly:   options.ReadOnly,
		namespaces: options.Namespaces.clone(),
		backend:    dbBackend,
		registry:   registry,
		writeLock:  locks.NewWriteLock(),
		metrics:    newDatabaseMetrics(registry),
	}
	log.Infof("Opened %s database at %s (version %d, read-only: %t)",
		kind, location, latest.Version(), options.ReadOnly)
	return db, nil
}

func openBackend(location string, kind Kind, options *Options) (backend.Backend, error) {
	switch kind {
	case KindMemory:
		return memdb.New(), nil
	case KindPersistent:
		return ldb.Open(location, options.ReadOnly)
	case KindLocked:
		guard, err := exclusive.AcquireDirectoryLock(location)
		if err != nil {
			return nil, err
		}
		levelDB, err := ldb.Open(location, options.ReadOnly)
		if err != nil {
			releaseErr := guard.Release()
			if releaseErr != nil {
				log.Warnf("Failed to release the lock on %s: %s", location, releaseErr)
			}
			return nil, err
		}
		return &backend.Guarded{Backend: levelDB, Guard: guard}, nil
	case KindBrowser:
		handleOpener := options.HandleOpener
		if handleOpener == nil {
			handleOpener = browserdb.OpenFileHandle
		}
		handle, err := handleOpener(location, options.ReadOnly)
		if err != nil {
			return nil, err
		}
		return browserdb.Open(handle, options.ReadOnly)
	default:
		return nil, errors.Errorf("unknown database kind %d", kind)
	}
}

func closeBackendAfterFailure(dbBackend backend.Backend, location string) {
	err := dbBackend.Close()
	if err != nil {
		log.Warnf("Failed to close the backend at %s after a failed open: %s", location, err)
	}
}

// Location returns the location the database was opened at.
func (db *Database) Location() string {
	return db.location
}

// Kind returns the kind of backend the database was opened with.
func (db *Database) Kind() Kind {
	return db.kind
}

// Namespaces returns the names of the configured namespaces in ascending
// order.
func (db *Database) Namespaces() []string {
	return db.namespaces.Names()
}

// Version returns the version of the latest committed snapshot.
func (db *Database) Version() uint64 {
	return db.registry.latestSnapshot().version()
}

// StateDigest returns the digest of the latest committed snapshot. Two
// databases holding the same key-value pairs have the same digest.
func (db *Database) StateDigest() muhash.Hash {
	return db.registry.latestSnapshot().hash
}

// BeginRead starts a read transaction pinned to the latest committed
// snapshot. It never waits for writers.
func (db *Database) BeginRead() (*ReadTx, error) {
	if db.closed() {
		return nil, errors.WithStack(ErrDatabaseClosed)
	}
	db.metrics.readTransactions.Inc()
	return &ReadTx{transaction: transaction{db: db, snapshot: db.registry.acquire()}}, nil
}

// BeginWrite starts a write transaction, waiting until the live write
// transaction, if any, is finished. If ctx is done first, it fails with
// an error matching ErrWouldBlock and has no side effects.
func (db *Database) BeginWrite(ctx context.Context) (*WriteTx, error) {
	err := db.checkWritable()
	if err != nil {
		return nil, err
	}
	err = db.writeLock.Lock(ctx)
	if err != nil {
		db.metrics.writeLockTimeouts.Inc()
		return nil, errors.Wrapf(ErrWouldBlock, "failed to acquire the write lock: %s", err)
	}
	return db.newWriteTx()
}

// TryBeginWrite starts a write transaction if no other write transaction
// is live, and fails with an error matching ErrWouldBlock otherwise.
func (db *Database) TryBeginWrite() (*WriteTx, error) {
	err := db.checkWritable()
	if err != nil {
		return nil, err
	}
	if !db.writeLock.TryLock() {
		db.metrics.writeLockTimeouts.Inc()
		return nil, errors.Wrapf(ErrWouldBlock, "another write transaction is live")
	}
	return db.newWriteTx()
}

func (db *Database) checkWritable() error {
	if db.closed() {
		return errors.WithStack(ErrDatabaseClosed)
	}
	if db.readOnly {
		return errors.Wrapf(ErrReadOnly, "database at %s is opened read-only", db.location)
	}
	return nil
}

// newWriteTx must be called with the write lock held.
func (db *Database) newWriteTx() (*WriteTx, error) {
	// Close may have won the race for the write lock
	if db.closed() {
		db.writeLock.Unlock()
		return nil, errors.WithStack(ErrDatabaseClosed)
	}
	db.metrics.writeTransactions.Inc()
	return newWriteTx(db, db.registry.acquire()), nil
}

// Close waits for the live write transaction, if any, to finish and then
// closes the backend, releasing any exclusive lock on the location.
// Transactions that are still open fail with ErrDatabaseClosed from then
// on.
func (db *Database) Close() error {
	if !atomic.CompareAndSwapUint32(&db.isClosed, 0, 1) {
		return errors.WithStack(ErrDatabaseClosed)
	}

	// A live write transaction fails to commit from now on, and gives
	// up the lock when it's rolled back.
	_ = db.writeLock.Lock(context.Background())
	defer db.writeLock.Unlock()

	db.registry.close()
	err := db.backend.Close()
	if err != nil {
		return err
	}
	log.Infof("Closed %s database at %s", db.kind, db.location)
	return nil
}

func (db *Database) closed() bool {
	return atomic.LoadUint32(&db.isClosed) != 0
}
