package database

import (
	"context"
)

// View runs fn within a read transaction, which is ended once fn returns.
func (db *Database) View(fn func(tx *ReadTx) error) error {
	tx, err := db.BeginRead()
	if err != nil {
		return err
	}
	defer func() {
		rollbackErr := tx.RollbackUnlessClosed()
		if rollbackErr != nil {
			log.Errorf("Failed to end a read transaction: %s", rollbackErr)
		}
	}()

	return fn(tx)
}

// Update runs fn within a write transaction, which is committed if fn
// returns nil and rolled back if it returns an error or panics.
func (db *Database) Update(ctx context.Context, fn func(tx *WriteTx) error) error {
	tx, err := db.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		rollbackErr := tx.RollbackUnlessClosed()
		if rollbackErr != nil {
			log.Errorf("Failed to roll back a write transaction: %s", rollbackErr)
		}
	}()

	err = fn(tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}
