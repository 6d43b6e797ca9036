// Package memdb implements an in-process backend whose versions are
// structurally shared immutable radix trees. Nothing survives the process.
package memdb

import (
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/pkg/errors"
)

// TreeView is a backend.View over an immutable radix tree.
type TreeView struct {
	version uint64
	state   []byte
	tree    *iradix.Tree
}

// NewTreeView returns a view of tree at the given version.
func NewTreeView(version uint64, state []byte, tree *iradix.Tree) *TreeView {
	return &TreeView{version: version, state: state, tree: tree}
}

// EmptyTreeView returns a view of an empty tree at version 0.
func EmptyTreeView() *TreeView {
	return NewTreeView(0, nil, iradix.New())
}

// Version returns the version this view is pinned to.
func (v *TreeView) Version() uint64 {
	return v.version
}

// State returns the state blob stored with this version.
func (v *TreeView) State() []byte {
	return v.state
}

// Tree returns the underlying tree.
func (v *TreeView) Tree() *iradix.Tree {
	return v.tree
}

// Get returns the value stored under key.
func (v *TreeView) Get(key []byte) ([]byte, bool, error) {
	value, ok := v.tree.Get(key)
	if !ok {
		return nil, false, nil
	}
	return value.([]byte), true, nil
}

// NewIterator returns an iterator over the keys starting with prefix.
func (v *TreeView) NewIterator(prefix []byte) backend.Iterator {
	return NewTreeIterator(v.tree, prefix)
}

// Release is a no-op: unreferenced trees are reclaimed by the garbage
// collector.
func (v *TreeView) Release() {}

// Apply returns a new view holding the result of applying batch on top of
// this view. The receiver is left untouched.
func (v *TreeView) Apply(batch *backend.Batch) (*TreeView, error) {
	if batch.Version != v.version+1 {
		return nil, errors.Errorf("batch version %d does not follow version %d",
			batch.Version, v.version)
	}
	txn := v.tree.Txn()
	for _, operation := range batch.Operations {
		if operation.Remove {
			txn.Delete(operation.Key)
			continue
		}
		txn.Insert(copyBytes(operation.Key), copyBytes(operation.Value))
	}
	return NewTreeView(batch.Version, copyBytes(batch.State), txn.Commit()), nil
}

// MemDB is the Memory backend.
type MemDB struct {
	mutex    sync.RWMutex
	latest   *TreeView
	isClosed bool
}

// New returns an empty MemDB at version 0.
func New() *MemDB {
	return &MemDB{latest: EmptyTreeView()}
}

// Latest returns a view of the latest version.
func (db *MemDB) Latest() (backend.View, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	if db.isClosed {
		return nil, errors.WithStack(backend.ErrClosed)
	}
	return db.latest, nil
}

// Write applies batch and publishes the resulting version.
func (db *MemDB) Write(batch *backend.Batch) (backend.View, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.isClosed {
		return nil, errors.WithStack(backend.ErrClosed)
	}
	next, err := db.latest.Apply(batch)
	if err != nil {
		return nil, err
	}
	db.latest = next
	return next, nil
}

// Close marks the backend as closed. Views already handed out stay usable.
func (db *MemDB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.isClosed {
		return errors.WithStack(backend.ErrClosed)
	}
	db.isClosed = true
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	copied := make([]byte, len(b))
	copy(copied, b)
	return copied
}
