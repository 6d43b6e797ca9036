package ldb

import (
	"bytes"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// view is a backend.View over a leveldb snapshot.
type view struct {
	snapshot *leveldb.Snapshot
	version  uint64
	state    []byte
}

func newView(snapshot *leveldb.Snapshot) (*view, error) {
	version, err := readVersion(snapshot.Get)
	if err != nil {
		snapshot.Release()
		return nil, err
	}
	state, err := readState(snapshot.Get)
	if err != nil {
		snapshot.Release()
		return nil, err
	}
	return &view{snapshot: snapshot, version: version, state: state}, nil
}

func (v *view) Version() uint64 {
	return v.version
}

func (v *view) State() []byte {
	return v.state
}

func (v *view) Get(key []byte) ([]byte, bool, error) {
	value, err := v.snapshot.Get(dataKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translateError(err, "failed to get key %x at version %d", key, v.version)
	}
	return value, true, nil
}

func (v *view) NewIterator(prefix []byte) backend.Iterator {
	fullPrefix := dataKey(prefix)
	return &cursor{
		ldbIterator: v.snapshot.NewIterator(util.BytesPrefix(fullPrefix), nil),
		prefix:      fullPrefix,
	}
}

func (v *view) Release() {
	v.snapshot.Release()
}

// cursor adapts a leveldb iterator over the data key space, stripping the
// data prefix from returned keys.
type cursor struct {
	ldbIterator iterator.Iterator
	prefix      []byte
}

func (c *cursor) First() bool {
	return c.ldbIterator.First()
}

func (c *cursor) Seek(key []byte) bool {
	fullKey := dataKey(key)
	if bytes.Compare(fullKey, c.prefix) < 0 {
		return c.ldbIterator.First()
	}
	return c.ldbIterator.Seek(fullKey)
}

func (c *cursor) Next() bool {
	return c.ldbIterator.Next()
}

func (c *cursor) Key() []byte {
	key := c.ldbIterator.Key()
	if key == nil {
		return nil
	}
	return key[len(dataPrefix):]
}

func (c *cursor) Value() []byte {
	return c.ldbIterator.Value()
}

func (c *cursor) Error() error {
	err := c.ldbIterator.Error()
	if err != nil {
		return translateError(err, "leveldb iteration failed")
	}
	return nil
}

func (c *cursor) Release() {
	c.ldbIterator.Release()
}
