package database

import (
	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/pkg/errors"
)

// Savepoint marks a point in a write transaction that the transaction can
// later roll back to, discarding only the writes made after it.
type Savepoint struct {
	tx      *WriteTx
	id      uint64
	pending *iradix.Tree
}

// CreateSavepoint marks the current state of the transaction's writes.
func (tx *WriteTx) CreateSavepoint() (*Savepoint, error) {
	err := tx.checkUsable()
	if err != nil {
		return nil, err
	}
	tx.nextSavepointID++
	savepoint := &Savepoint{
		tx:      tx,
		id:      tx.nextSavepointID,
		pending: tx.pending,
	}
	tx.savepoints = append(tx.savepoints, savepoint.id)
	return savepoint, nil
}

// RollbackTo discards all writes made after savepoint was created. The
// savepoint stays usable; savepoints created after it do not.
//
// Rolling back to a savepoint that is no longer usable, or that belongs to
// another transaction, fails with ErrInvalidSavepoint and leaves the
// transaction unable to commit.
func (tx *WriteTx) RollbackTo(savepoint *Savepoint) error {
	err := tx.checkUsable()
	if err != nil {
		return err
	}
	if savepoint == nil || savepoint.tx != tx {
		return tx.invalidate(errors.Wrapf(ErrInvalidSavepoint,
			"savepoint does not belong to this transaction"))
	}

	index := -1
	for i, id := range tx.savepoints {
		if id == savepoint.id {
			index = i
			break
		}
	}
	if index == -1 {
		return tx.invalidate(errors.Wrapf(ErrInvalidSavepoint,
			"savepoint %d was discarded by an earlier rollback", savepoint.id))
	}

	tx.pending = savepoint.pending
	tx.savepoints = tx.savepoints[:index+1]
	log.Tracef("Rolled back to savepoint %d", savepoint.id)
	return nil
}

func (tx *WriteTx) invalidate(err error) error {
	log.Warnf("Write transaction on version %d can no longer commit: %s", tx.Version(), err)
	tx.err = err
	return err
}
