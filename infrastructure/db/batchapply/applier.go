// Package batchapply applies the batches decided by the consensus layer to
// the local database.
package batchapply

import (
	"context"
	"fmt"
	"time"

	"github.com/kaspanet/fedstore/infrastructure/db/database"
	"github.com/kaspanet/fedstore/infrastructure/logger"
	"github.com/kaspanet/fedstore/util/panics"
	"github.com/pkg/errors"
)

// HaltFunc stops the node. It's called when the database can no longer
// durably persist decided batches, since a node in that state must not
// keep participating in consensus.
type HaltFunc func(reason string)

// Applier applies decided batches, each as one atomic write transaction
// spanning all the namespaces it touches.
type Applier struct {
	db           *database.Database
	writeTimeout time.Duration
	halt         HaltFunc
}

// New returns an Applier over db. writeTimeout bounds how long Apply waits
// for the write lock; zero means no bound. If halt is nil, a failure to
// persist a batch exits the process.
func New(db *database.Database, writeTimeout time.Duration, halt HaltFunc) *Applier {
	if halt == nil {
		halt = func(reason string) {
			panics.Exit(log, reason)
		}
	}
	return &Applier{
		db:           db,
		writeTimeout: writeTimeout,
		halt:         halt,
	}
}

// Apply applies batch atomically. It fails with an error matching
// database.ErrWouldBlock if the write lock could not be acquired in time,
// in which case nothing was applied and the batch can be retried.
//
// If the database fails with database.ErrIO or database.ErrCorruption, the
// applier halts the node before returning the error.
func (a *Applier) Apply(ctx context.Context, batch *DecidedBatch) error {
	onEnd := logger.LogAndMeasureExecutionTime(log, "Applier.Apply")
	defer onEnd()

	err := a.apply(ctx, batch)
	if database.IsIOError(err) || database.IsCorruptionError(err) {
		log.Criticalf("Failed to persist %s: %+v", batch, err)
		a.halt(fmt.Sprintf("the database can no longer persist decided batches: %s", err))
	}
	return err
}

func (a *Applier) apply(ctx context.Context, batch *DecidedBatch) error {
	if a.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.writeTimeout)
		defer cancel()
	}
	tx, err := a.db.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		rollbackErr := tx.RollbackUnlessClosed()
		if rollbackErr != nil {
			log.Errorf("Failed to roll back %s: %s", batch, rollbackErr)
		}
	}()

	handles := make(map[string]*database.Handle)
	for i, operation := range batch.Operations {
		handle, ok := handles[operation.Namespace]
		if !ok {
			handle, err = tx.Handle(operation.Namespace)
			if err != nil {
				return errors.Wrapf(err, "operation %d of %s", i, batch)
			}
			handles[operation.Namespace] = handle
		}

		if operation.Remove {
			_, _, err = handle.Remove(operation.Key)
		} else {
			_, _, err = handle.Insert(operation.Key, operation.Value)
		}
		if err != nil {
			return errors.Wrapf(err, "operation %d of %s", i, batch)
		}
	}

	err = tx.Commit()
	if err != nil {
		return err
	}
	log.Debugf("Applied %s at version %d", batch, a.db.Version())
	return nil
}

// Run applies the batches received from batches in order until batches is
// closed, ctx is done, or a batch fails. A batch that fails with
// database.ErrWouldBlock is retried.
func (a *Applier) Run(ctx context.Context, batches <-chan *DecidedBatch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			err := a.applyWithRetry(ctx, batch)
			if err != nil {
				return err
			}
		}
	}
}

func (a *Applier) applyWithRetry(ctx context.Context, batch *DecidedBatch) error {
	for {
		err := a.Apply(ctx, batch)
		if !database.IsWouldBlockError(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnf("Write lock is busy, retrying %s", batch)
	}
}

// Start runs Run in a new goroutine. A panic in that goroutine exits the
// process. The returned channel receives Run's result.
func (a *Applier) Start(ctx context.Context, batches <-chan *DecidedBatch) <-chan error {
	result := make(chan error, 1)
	spawn(func() {
		result <- a.Run(ctx, batches)
	})
	return result
}
