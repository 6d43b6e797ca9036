package database

import (
	"bytes"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/pkg/errors"
)

// Cursor iterates over the entries of a namespace whose keys start with a
// given sub-prefix, in ascending key order. It's lazy: entries are read
// from the snapshot as the cursor moves.
//
// A cursor over a WriteTx merges the transaction's own writes over its
// snapshot. It sees the writes made before it was created; later writes
// are not visible to it.
type Cursor struct {
	db      *Database
	base    backend.Iterator
	pending backend.Iterator

	// namespacePrefix is cut from the keys the cursor returns
	namespacePrefix []byte

	baseValid    bool
	pendingValid bool
	fromPending  bool

	isStarted bool
	isValid   bool
	isClosed  bool

	// err is set once the database is closed under the cursor
	err error
}

func newCursor(db *Database, base backend.Iterator, pending backend.Iterator, namespacePrefix []byte) *Cursor {
	return &Cursor{
		db:              db,
		base:            base,
		pending:         pending,
		namespacePrefix: namespacePrefix,
	}
}

// Next moves the cursor to the next entry. On a fresh cursor it moves to
// the first entry. It returns false once the cursor is exhausted.
func (c *Cursor) Next() bool {
	if !c.isUsable() {
		return false
	}
	if !c.isStarted {
		return c.First()
	}
	if !c.isValid {
		return false
	}
	if c.fromPending {
		c.pendingValid = c.pending.Next()
	} else {
		c.baseValid = c.base.Next()
	}
	return c.settle()
}

// First moves the cursor back to the first entry. It returns false if
// there is none.
func (c *Cursor) First() bool {
	if !c.isUsable() {
		return false
	}
	c.isStarted = true
	c.baseValid = c.base.First()
	c.pendingValid = c.pending != nil && c.pending.First()
	return c.settle()
}

// Seek moves the cursor to the first entry whose key is greater than or
// equal to key. key is relative to the namespace, like the keys the
// cursor returns.
func (c *Cursor) Seek(key []byte) bool {
	if !c.isUsable() {
		return false
	}
	c.isStarted = true
	fullKey := prefixedKey(c.namespacePrefix, key)
	c.baseValid = c.base.Seek(fullKey)
	c.pendingValid = c.pending != nil && c.pending.Seek(fullKey)
	return c.settle()
}

// isUsable reports whether the cursor may move. A cursor whose database
// was closed stops, and reports ErrDatabaseClosed through Error.
func (c *Cursor) isUsable() bool {
	if c.isClosed {
		return false
	}
	if c.db.closed() {
		if c.err == nil {
			c.err = errors.WithStack(ErrDatabaseClosed)
		}
		c.isValid = false
		return false
	}
	return true
}

// settle positions the cursor on the smallest key of both sides. A
// pending write shadows the snapshot's entry of the same key, and a
// pending removal hides it.
func (c *Cursor) settle() bool {
	for {
		if c.baseValid && c.pendingValid {
			comparison := bytes.Compare(c.base.Key(), c.pending.Key())
			if comparison < 0 {
				return c.take(false)
			}
			if comparison == 0 {
				c.baseValid = c.base.Next()
				continue
			}
		}
		if c.pendingValid {
			if c.pending.Value() == nil {
				c.pendingValid = c.pending.Next()
				continue
			}
			return c.take(true)
		}
		if c.baseValid {
			return c.take(false)
		}
		c.isValid = false
		return false
	}
}

func (c *Cursor) take(fromPending bool) bool {
	c.fromPending = fromPending
	c.isValid = true
	return true
}

func (c *Cursor) current() backend.Iterator {
	if c.fromPending {
		return c.pending
	}
	return c.base
}

// Key returns the key of the current entry, without the namespace
// prefix. The returned slice is only valid until the cursor moves.
func (c *Cursor) Key() []byte {
	if !c.isValid || c.isClosed || c.db.closed() {
		return nil
	}
	return c.current().Key()[len(c.namespacePrefix):]
}

// Value returns the value of the current entry. The returned slice is
// only valid until the cursor moves.
func (c *Cursor) Value() []byte {
	if !c.isValid || c.isClosed || c.db.closed() {
		return nil
	}
	return c.current().Value()
}

// Error returns any error hit while reading the snapshot, or
// ErrDatabaseClosed if the database was closed under the cursor.
func (c *Cursor) Error() error {
	if c.err != nil {
		return c.err
	}
	return c.base.Error()
}

// Close releases the cursor.
func (c *Cursor) Close() error {
	if c.isClosed {
		return errors.New("cannot close an already closed cursor")
	}
	c.isClosed = true
	c.base.Release()
	if c.pending != nil {
		c.pending.Release()
	}
	return nil
}
