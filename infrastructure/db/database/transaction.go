package database

import (
	"bytes"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/kaspanet/fedstore/infrastructure/db/database/memdb"
	"github.com/kaspanet/fedstore/infrastructure/logger"
	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"
)

// accessor is what a Handle needs from a transaction. Keys passed to it
// are full keys.
type accessor interface {
	get(key []byte) ([]byte, bool, error)
	put(key []byte, value []byte) error
	remove(key []byte) error
	cursor(prefix []byte, namespacePrefix []byte) (*Cursor, error)
}

// transaction holds what read and write transactions have in common.
// Transactions are not safe for concurrent use.
type transaction struct {
	db       *Database
	snapshot *snapshot
	isClosed bool
}

// Version returns the version of the snapshot the transaction is rooted at.
func (tx *transaction) Version() uint64 {
	return tx.snapshot.version()
}

func (tx *transaction) checkOpen() error {
	if tx.isClosed {
		return errors.WithStack(ErrTransactionClosed)
	}
	if tx.db.closed() {
		return errors.WithStack(ErrDatabaseClosed)
	}
	return nil
}

func (tx *transaction) release() {
	tx.isClosed = true
	tx.db.registry.release(tx.snapshot)
}

// ReadTx is a read transaction. It sees the snapshot that was latest when
// it began, no matter what is committed afterwards.
type ReadTx struct {
	transaction
}

// Handle returns a handle to the given namespace over this transaction.
func (tx *ReadTx) Handle(namespace string) (*Handle, error) {
	err := tx.checkOpen()
	if err != nil {
		return nil, err
	}
	return newHandle(tx, tx.db.namespaces, namespace)
}

// StateDigest returns the digest of the snapshot the transaction is
// pinned to.
func (tx *ReadTx) StateDigest() muhash.Hash {
	return tx.snapshot.hash
}

// Rollback ends the transaction, letting go of its snapshot.
func (tx *ReadTx) Rollback() error {
	if tx.isClosed {
		return errors.WithStack(ErrTransactionClosed)
	}
	tx.release()
	return nil
}

// RollbackUnlessClosed ends the transaction unless it has already ended.
// It's meant to be deferred right after BeginRead.
func (tx *ReadTx) RollbackUnlessClosed() error {
	if tx.isClosed {
		return nil
	}
	return tx.Rollback()
}

func (tx *ReadTx) get(key []byte) ([]byte, bool, error) {
	err := tx.checkOpen()
	if err != nil {
		return nil, false, err
	}
	return tx.snapshot.view.Get(key)
}

func (tx *ReadTx) put([]byte, []byte) error {
	return errors.Wrapf(ErrReadOnly, "cannot insert through a read transaction")
}

func (tx *ReadTx) remove([]byte) error {
	return errors.Wrapf(ErrReadOnly, "cannot remove through a read transaction")
}

func (tx *ReadTx) cursor(prefix []byte, namespacePrefix []byte) (*Cursor, error) {
	err := tx.checkOpen()
	if err != nil {
		return nil, err
	}
	return newCursor(tx.db, tx.snapshot.view.NewIterator(prefix), nil, namespacePrefix), nil
}

// WriteTx is a write transaction. Its writes are kept in memory until
// Commit, and are visible to its own reads and cursors only.
//
// A WriteTx holds the database's write lock until it's committed or
// rolled back, so it must always be ended. Deferring RollbackUnlessClosed
// right after BeginWrite does that.
type WriteTx struct {
	transaction

	// pending maps full keys to their new values. A nil value marks a
	// removed key. Inserted values are never nil.
	pending *iradix.Tree

	// savepoints holds the ids of the savepoints that can still be
	// rolled back to, in creation order.
	savepoints      []uint64
	nextSavepointID uint64

	// err is set once the transaction is no longer allowed to commit
	err error
}

func newWriteTx(db *Database, root *snapshot) *WriteTx {
	return &WriteTx{
		transaction: transaction{db: db, snapshot: root},
		pending:     iradix.New(),
	}
}

// Handle returns a handle to the given namespace over this transaction.
// Writes made through any handle of the transaction are committed
// together.
func (tx *WriteTx) Handle(namespace string) (*Handle, error) {
	err := tx.checkUsable()
	if err != nil {
		return nil, err
	}
	return newHandle(tx, tx.db.namespaces, namespace)
}

func (tx *WriteTx) checkUsable() error {
	err := tx.checkOpen()
	if err != nil {
		return err
	}
	return tx.err
}

func (tx *WriteTx) get(key []byte) ([]byte, bool, error) {
	err := tx.checkUsable()
	if err != nil {
		return nil, false, err
	}
	if value, ok := tx.pending.Get(key); ok {
		pendingValue := value.([]byte)
		return pendingValue, pendingValue != nil, nil
	}
	return tx.snapshot.view.Get(key)
}

func (tx *WriteTx) put(key []byte, value []byte) error {
	err := tx.checkUsable()
	if err != nil {
		return err
	}
	storedValue := make([]byte, len(value))
	copy(storedValue, value)
	tx.pending, _, _ = tx.pending.Insert(key, storedValue)
	return nil
}

func (tx *WriteTx) remove(key []byte) error {
	err := tx.checkUsable()
	if err != nil {
		return err
	}
	tx.pending, _, _ = tx.pending.Insert(key, []byte(nil))
	return nil
}

func (tx *WriteTx) cursor(prefix []byte, namespacePrefix []byte) (*Cursor, error) {
	err := tx.checkUsable()
	if err != nil {
		return nil, err
	}
	return newCursor(tx.db, tx.snapshot.view.NewIterator(prefix),
		memdb.NewTreeIterator(tx.pending, prefix), namespacePrefix), nil
}

// Commit atomically applies all writes of the transaction, publishing
// them as the next version, and ends the transaction.
//
// On error nothing is applied and the previous snapshot stays the latest
// one. The write lock is released either way. A transaction whose writes
// change nothing commits without producing a new version.
func (tx *WriteTx) Commit() error {
	if tx.isClosed {
		return errors.WithStack(ErrTransactionClosed)
	}
	defer tx.end()

	err := tx.commit()
	if err != nil {
		tx.db.metrics.failedCommits.Inc()
		return err
	}
	return nil
}

func (tx *WriteTx) commit() error {
	if tx.err != nil {
		return tx.err
	}
	if tx.db.closed() {
		return errors.WithStack(ErrDatabaseClosed)
	}
	start := time.Now()

	batch, digest, err := tx.buildBatch()
	if err != nil {
		return err
	}
	if len(batch.Operations) == 0 {
		tx.db.metrics.emptyCommits.Inc()
		log.Tracef("Commit on version %d changes nothing", tx.Version())
		return nil
	}

	onEnd := logger.LogAndMeasureExecutionTime(log, "WriteTx.Commit")
	defer onEnd()

	view, err := tx.db.backend.Write(batch)
	if err != nil {
		log.Errorf("Failed to commit version %d: %s", batch.Version, err)
		return err
	}
	tx.db.registry.publish(newSnapshot(view, digest))

	tx.db.metrics.commits.Inc()
	tx.db.metrics.commitDuration.UpdateDuration(start)
	tx.db.metrics.committedKeys.Update(float64(len(batch.Operations)))
	log.Debugf("Committed version %d with %d operations", batch.Version, len(batch.Operations))
	return nil
}

// buildBatch turns the pending writes into a batch for the backend and
// computes the digest of the state it results in. Writes that change
// nothing are left out.
func (tx *WriteTx) buildBatch() (*backend.Batch, *muhash.MuHash, error) {
	base := tx.snapshot.view
	digest := tx.snapshot.digest.Clone()
	var operations []backend.Operation

	iterator := tx.pending.Root().Iterator()
	for key, value, ok := iterator.Next(); ok; key, value, ok = iterator.Next() {
		newValue := value.([]byte)
		oldValue, existed, err := base.Get(key)
		if err != nil {
			return nil, nil, err
		}

		if newValue == nil {
			if !existed {
				continue
			}
			digest.Remove(digestElement(key, oldValue))
			operations = append(operations, backend.Operation{Key: key, Remove: true})
			continue
		}
		if existed {
			if bytes.Equal(oldValue, newValue) {
				continue
			}
			digest.Remove(digestElement(key, oldValue))
		}
		digest.Add(digestElement(key, newValue))
		operations = append(operations, backend.Operation{Key: key, Value: newValue})
	}

	batch := &backend.Batch{
		Version:    tx.Version() + 1,
		Operations: operations,
	}
	if len(operations) > 0 {
		batch.State = serializeDigest(digest)
	}
	return batch, digest, nil
}

// Rollback discards all writes of the transaction and ends it. It never
// touches the backend.
func (tx *WriteTx) Rollback() error {
	if tx.isClosed {
		return errors.WithStack(ErrTransactionClosed)
	}
	tx.db.metrics.rollbacks.Inc()
	tx.end()
	return nil
}

// RollbackUnlessClosed rolls the transaction back unless it has already
// ended. It's meant to be deferred right after BeginWrite.
func (tx *WriteTx) RollbackUnlessClosed() error {
	if tx.isClosed {
		return nil
	}
	return tx.Rollback()
}

func (tx *WriteTx) end() {
	tx.pending = nil
	tx.savepoints = nil
	tx.release()
	tx.db.writeLock.Unlock()
}
