package memdb

import (
	"bytes"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
)

// treeIterator is a backend.Iterator over the keys of an immutable radix
// tree that start with a given prefix. The tree never changes underneath
// it, so the iterator needs no locking.
type treeIterator struct {
	root   *iradix.Node
	prefix []byte

	it    *iradix.Iterator
	key   []byte
	value []byte
	valid bool
	done  bool
}

// NewTreeIterator returns an iterator over the entries of tree whose keys
// start with prefix. Values stored in the tree must be []byte.
func NewTreeIterator(tree *iradix.Tree, prefix []byte) backend.Iterator {
	return &treeIterator{root: tree.Root(), prefix: prefix}
}

func (ti *treeIterator) First() bool {
	return ti.Seek(ti.prefix)
}

func (ti *treeIterator) Seek(key []byte) bool {
	if bytes.Compare(key, ti.prefix) < 0 {
		key = ti.prefix
	}
	ti.it = ti.root.Iterator()
	ti.it.SeekLowerBound(key)
	ti.done = false
	return ti.advance()
}

func (ti *treeIterator) Next() bool {
	if ti.done {
		return false
	}
	if ti.it == nil {
		return ti.First()
	}
	return ti.advance()
}

func (ti *treeIterator) advance() bool {
	key, value, ok := ti.it.Next()
	if !ok || !bytes.HasPrefix(key, ti.prefix) {
		ti.key, ti.value, ti.valid, ti.done = nil, nil, false, true
		return false
	}
	ti.key, ti.value, ti.valid = key, value.([]byte), true
	return true
}

func (ti *treeIterator) Key() []byte {
	if !ti.valid {
		return nil
	}
	return ti.key
}

func (ti *treeIterator) Value() []byte {
	if !ti.valid {
		return nil
	}
	return ti.value
}

func (ti *treeIterator) Error() error {
	return nil
}

func (ti *treeIterator) Release() {
	ti.it = nil
	ti.key, ti.value, ti.valid, ti.done = nil, nil, false, true
}
