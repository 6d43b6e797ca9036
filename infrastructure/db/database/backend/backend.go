package backend

// Operation is a single entry of a write-set: either an insert of Value
// under Key, or a removal of Key.
type Operation struct {
	Key    []byte
	Value  []byte
	Remove bool
}

// Batch is the unit of durable writes. It carries the next version and an
// opaque State blob that the backend stores alongside it and hands back
// through View.State.
type Batch struct {
	Version    uint64
	State      []byte
	Operations []Operation
}

// Backend is a storage substrate able to persist batches atomically and to
// serve reads pinned to a committed version.
//
// Backends are driven by a single writer. Views and iterators may be used
// concurrently from any number of goroutines.
type Backend interface {
	// Latest returns a view pinned to the latest committed version. The
	// caller must Release it.
	Latest() (View, error)

	// Write applies the batch atomically. It returns only after the batch
	// is durable; on error nothing of the batch is visible, now or after a
	// reopen. batch.Version must be the latest version plus one. The
	// returned view is pinned to the new version and must be released by
	// the caller.
	Write(batch *Batch) (View, error)

	// Close releases the backend and any exclusive access it holds.
	Close() error
}

// View is a read-only, immutable view of the key-value state at one version.
type View interface {
	// Version returns the version this view is pinned to.
	Version() uint64

	// State returns the State blob of the batch that produced this
	// version, or nil for version 0.
	State() []byte

	// Get returns the value stored under key and whether it exists.
	Get(key []byte) ([]byte, bool, error)

	// NewIterator returns an iterator over all keys starting with prefix,
	// in ascending byte order.
	NewIterator(prefix []byte) Iterator

	// Release frees the resources held by the view. Views must not be
	// used after being released.
	Release()
}

// Iterator walks a key range in ascending byte order. A fresh iterator is
// positioned before its first entry, so Next moves it to the first entry.
type Iterator interface {
	// First moves to the first entry. It returns false if there is none.
	First() bool

	// Seek moves to the first entry whose key is greater than or equal
	// to key. It returns false if there is none.
	Seek(key []byte) bool

	// Next moves to the next entry. It returns false once exhausted.
	Next() bool

	// Key returns the key of the current entry. The returned slice must
	// not be modified.
	Key() []byte

	// Value returns the value of the current entry. The returned slice
	// must not be modified.
	Value() []byte

	// Error returns any error hit while iterating.
	Error() error

	// Release frees the iterator.
	Release()
}

// ExclusiveAccessGuard represents exclusive access to a storage location,
// acquired when the guard is created and given up by Release.
type ExclusiveAccessGuard interface {
	Release() error
}

// Guarded decorates a Backend with an ExclusiveAccessGuard that is released
// after the backend is closed.
type Guarded struct {
	Backend
	Guard ExclusiveAccessGuard
}

// Close closes the wrapped backend and then releases the guard.
func (g *Guarded) Close() error {
	closeErr := g.Backend.Close()
	releaseErr := g.Guard.Release()
	if closeErr != nil {
		return closeErr
	}
	return releaseErr
}
