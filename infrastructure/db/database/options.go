package database

import (
	"strings"

	"github.com/kaspanet/fedstore/infrastructure/db/database/browserdb"
	"github.com/pkg/errors"
)

// Kind selects the backend a Database is opened with.
type Kind int

const (
	// KindMemory keeps all versions in process memory. Nothing survives
	// Close.
	KindMemory Kind = iota

	// KindPersistent stores the database in a leveldb directory.
	KindPersistent

	// KindLocked is KindPersistent with an additional exclusive lock file
	// in the directory, held from Open until Close.
	KindLocked

	// KindBrowser stores the database behind an exclusive synchronous
	// storage handle, as provided by sandboxed targets without a file
	// system.
	KindBrowser
)

var kindStrings = map[Kind]string{
	KindMemory:     "memory",
	KindPersistent: "persistent",
	KindLocked:     "locked",
	KindBrowser:    "browser",
}

func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	for kind, kindString := range kindStrings {
		if strings.EqualFold(s, kindString) {
			return kind, nil
		}
	}
	return 0, errors.Errorf("unknown database kind %q", s)
}

// Options holds the settings a Database is opened with.
type Options struct {
	// Namespaces assigns every module its key prefix.
	Namespaces Namespaces

	// ReadOnly opens the database for reading only. BeginWrite fails with
	// ErrReadOnly, and nothing is created at the location.
	ReadOnly bool

	// HandleOpener opens the storage handle of a KindBrowser database.
	// It defaults to browserdb.OpenFileHandle.
	HandleOpener browserdb.HandleOpener
}

// DefaultOptions returns the default Options, with no namespaces.
func DefaultOptions() *Options {
	return &Options{
		Namespaces:   Namespaces{},
		HandleOpener: browserdb.OpenFileHandle,
	}
}
