package database

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Handle is a view of one namespace over a transaction. Every key passed
// to a Handle is prefixed with the namespace's prefix, so a module working
// through its Handle can neither see nor touch the keys of another module.
//
// A Handle is only usable as long as its transaction is.
type Handle struct {
	tx        accessor
	namespace string
	prefix    []byte
}

func newHandle(tx accessor, namespaces Namespaces, namespace string) (*Handle, error) {
	prefix, err := namespaces.prefix(namespace)
	if err != nil {
		return nil, err
	}
	return &Handle{tx: tx, namespace: namespace, prefix: prefix}, nil
}

// Namespace returns the name of the handle's namespace.
func (h *Handle) Namespace() string {
	return h.namespace
}

func (h *Handle) fullKey(key []byte) []byte {
	return prefixedKey(h.prefix, key)
}

// Get gets the value for the given key. It returns
// ErrNotFound if the given key does not exist.
func (h *Handle) Get(key []byte) ([]byte, error) {
	value, found, err := h.tx.get(h.fullKey(key))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "key %x not found in namespace %s", key, h.namespace)
	}
	return value, nil
}

// Has returns true if the given key exists.
func (h *Handle) Has(key []byte) (bool, error) {
	_, found, err := h.tx.get(h.fullKey(key))
	return found, err
}

// Insert sets the value for the given key, overwriting
// any previous value. It returns the previous value and
// whether there was one.
func (h *Handle) Insert(key []byte, value []byte) (previous []byte, existed bool, err error) {
	fullKey := h.fullKey(key)
	previous, existed, err = h.tx.get(fullKey)
	if err != nil {
		return nil, false, err
	}
	err = h.tx.put(fullKey, value)
	if err != nil {
		return nil, false, err
	}
	return previous, existed, nil
}

// InsertNew sets the value for the given key, which must
// not exist yet. It returns ErrKeyExists otherwise.
func (h *Handle) InsertNew(key []byte, value []byte) error {
	fullKey := h.fullKey(key)
	_, found, err := h.tx.get(fullKey)
	if err != nil {
		return err
	}
	if found {
		return errors.Wrapf(ErrKeyExists, "key %x in namespace %s", key, h.namespace)
	}
	return h.tx.put(fullKey, value)
}

// Remove deletes the given key. It returns the removed
// value and whether there was one. Removing a key that
// doesn't exist is not an error.
func (h *Handle) Remove(key []byte) (removed []byte, existed bool, err error) {
	fullKey := h.fullKey(key)
	removed, existed, err = h.tx.get(fullKey)
	if err != nil {
		return nil, false, err
	}
	if !existed {
		return nil, false, nil
	}
	err = h.tx.remove(fullKey)
	if err != nil {
		return nil, false, err
	}
	return removed, true, nil
}

// PrefixScan returns a cursor over all keys of the
// namespace that start with subPrefix.
func (h *Handle) PrefixScan(subPrefix []byte) (*Cursor, error) {
	return h.tx.cursor(h.fullKey(subPrefix), h.prefix)
}

// KeyValue is a key-value pair of a namespace.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// FindByPrefix returns all pairs of the namespace whose
// key starts with subPrefix, in ascending key order.
func (h *Handle) FindByPrefix(subPrefix []byte) ([]KeyValue, error) {
	cursor, err := h.PrefixScan(subPrefix)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var pairs []KeyValue
	for cursor.Next() {
		pairs = append(pairs, KeyValue{
			Key:   append([]byte{}, cursor.Key()...),
			Value: append([]byte{}, cursor.Value()...),
		})
	}
	err = cursor.Error()
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

func (h *Handle) schemaVersionKey() []byte {
	return schemaBucket.Key([]byte(h.namespace))
}

// SchemaVersion returns the schema version of the
// namespace, or 0 if none was ever set.
func (h *Handle) SchemaVersion() (uint64, error) {
	serializedVersion, found, err := h.tx.get(h.schemaVersionKey())
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	if len(serializedVersion) != 8 {
		return 0, errors.Wrapf(ErrCorruption, "schema version of namespace %s has length %d, want 8",
			h.namespace, len(serializedVersion))
	}
	return binary.BigEndian.Uint64(serializedVersion), nil
}

// SetSchemaVersion sets the schema version of the
// namespace as part of the transaction.
func (h *Handle) SetSchemaVersion(version uint64) error {
	serializedVersion := make([]byte, 8)
	binary.BigEndian.PutUint64(serializedVersion, version)
	return h.tx.put(h.schemaVersionKey(), serializedVersion)
}
