package database

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
)

// systemPrefix is reserved for the database's own bookkeeping. No
// namespace prefix may start with it.
var systemPrefix = []byte{0xff}

// schemaBucket holds the schema version of every namespace.
var schemaBucket = MakeBucket(systemPrefix, []byte("schema"))

// Namespaces maps module names to the key prefixes assigned to them.
//
// Prefixes are fixed by configuration. A valid configuration has only
// non-empty prefixes, none of which starts with 0xff and none of which is a
// prefix of another, so that the keyspaces of any two modules are disjoint.
type Namespaces map[string][]byte

// Validate checks that the configuration gives every module a disjoint
// keyspace.
func (n Namespaces) Validate() error {
	names := n.Names()
	for i, name := range names {
		prefix := n[name]
		if len(prefix) == 0 {
			return errors.Wrapf(ErrInvalidNamespace, "namespace %s has an empty prefix", name)
		}
		if bytes.HasPrefix(prefix, systemPrefix) {
			return errors.Wrapf(ErrInvalidNamespace, "prefix %x of namespace %s "+
				"starts with the reserved byte %x", prefix, name, systemPrefix)
		}
		for _, otherName := range names[i+1:] {
			otherPrefix := n[otherName]
			if bytes.HasPrefix(prefix, otherPrefix) || bytes.HasPrefix(otherPrefix, prefix) {
				return errors.Wrapf(ErrInvalidNamespace, "prefixes of namespaces %s (%x) "+
					"and %s (%x) overlap", name, prefix, otherName, otherPrefix)
			}
		}
	}
	return nil
}

// Names returns the configured module names in ascending order.
func (n Namespaces) Names() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n Namespaces) clone() Namespaces {
	cloned := make(Namespaces, len(n))
	for name, prefix := range n {
		cloned[name] = append([]byte{}, prefix...)
	}
	return cloned
}

func (n Namespaces) prefix(name string) ([]byte, error) {
	prefix, ok := n[name]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidNamespace, "namespace %s is not configured", name)
	}
	return prefix, nil
}
