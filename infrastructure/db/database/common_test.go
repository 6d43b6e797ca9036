package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaspanet/fedstore/infrastructure/db/database/browserdb"
)

var testNamespaces = Namespaces{
	"wallet": []byte("wallet/"),
	"mint":   []byte("mint/"),
	"ln":     []byte("ln/"),
}

// databaseOpener opens a database at a location private to one test.
// Calling it again after the database is closed reopens the same
// location.
type databaseOpener func(readOnly bool) (*Database, error)

type databasePrepareFunc func(t *testing.T) (opener databaseOpener, kind Kind)

// databasePrepareFuncs is a set of functions, in which each function
// prepares a separate database kind for testing.
// See testForAllDatabaseKinds for further details.
var databasePrepareFuncs = []databasePrepareFunc{
	prepareMemoryForTest,
	prepareDirectoryForTest(KindPersistent),
	prepareDirectoryForTest(KindLocked),
	prepareBrowserForTest,
}

func testOptions(readOnly bool) *Options {
	options := DefaultOptions()
	options.Namespaces = testNamespaces
	options.ReadOnly = readOnly
	return options
}

func prepareMemoryForTest(t *testing.T) (databaseOpener, Kind) {
	return func(readOnly bool) (*Database, error) {
		return Open("", KindMemory, testOptions(readOnly))
	}, KindMemory
}

func prepareDirectoryForTest(kind Kind) databasePrepareFunc {
	return func(t *testing.T) (databaseOpener, Kind) {
		path := filepath.Join(t.TempDir(), "db")
		return func(readOnly bool) (*Database, error) {
			return Open(path, kind, testOptions(readOnly))
		}, kind
	}
}

func prepareBrowserForTest(t *testing.T) (databaseOpener, Kind) {
	memoryHandle := browserdb.NewMemoryHandle()
	return func(readOnly bool) (*Database, error) {
		options := testOptions(readOnly)
		options.HandleOpener = func(string, bool) (browserdb.StorageHandle, error) {
			return memoryHandle.Acquire()
		}
		return Open("test-storage", KindBrowser, options)
	}, KindBrowser
}

// testForAllDatabaseKinds runs the given testFunc for every database
// kind defined in databasePrepareFuncs. This is to make sure that
// all supported kinds behave the same way.
func testForAllDatabaseKinds(t *testing.T, testName string,
	testFunc func(t *testing.T, db *Database, testName string)) {

	for _, prepareDatabase := range databasePrepareFuncs {
		opener, kind := prepareDatabase(t)
		db, err := opener(false)
		if err != nil {
			t.Fatalf("%s: Open of %s database unexpectedly failed: %s", testName, kind, err)
		}
		func() {
			defer closeForTest(t, db, testName)
			testFunc(t, db, testName+": "+kind.String())
		}()
	}
}

// testForPersistentDatabaseKinds is like testForAllDatabaseKinds, but
// skips kinds that lose their data on Close, and hands testFunc the
// opener instead of an opened database.
func testForPersistentDatabaseKinds(t *testing.T, testName string,
	testFunc func(t *testing.T, opener databaseOpener, testName string)) {

	for _, prepareDatabase := range databasePrepareFuncs {
		opener, kind := prepareDatabase(t)
		if kind == KindMemory {
			continue
		}
		testFunc(t, opener, testName+": "+kind.String())
	}
}

func closeForTest(t *testing.T, db *Database, testName string) {
	err := db.Close()
	if err != nil {
		t.Fatalf("%s: Close unexpectedly failed: %s", testName, err)
	}
}

func beginWriteForTest(t *testing.T, db *Database, testName string) *WriteTx {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tx, err := db.BeginWrite(ctx)
	if err != nil {
		t.Fatalf("%s: BeginWrite unexpectedly failed: %s", testName, err)
	}
	return tx
}

func beginReadForTest(t *testing.T, db *Database, testName string) *ReadTx {
	tx, err := db.BeginRead()
	if err != nil {
		t.Fatalf("%s: BeginRead unexpectedly failed: %s", testName, err)
	}
	return tx
}

type handleProvider interface {
	Handle(namespace string) (*Handle, error)
}

func handleForTest(t *testing.T, tx handleProvider, namespace string, testName string) *Handle {
	handle, err := tx.Handle(namespace)
	if err != nil {
		t.Fatalf("%s: Handle(%s) unexpectedly failed: %s", testName, namespace, err)
	}
	return handle
}

func insertForTest(t *testing.T, handle *Handle, key string, value string, testName string) {
	_, _, err := handle.Insert([]byte(key), []byte(value))
	if err != nil {
		t.Fatalf("%s: Insert(%s) unexpectedly failed: %s", testName, key, err)
	}
}

func removeForTest(t *testing.T, handle *Handle, key string, testName string) {
	_, _, err := handle.Remove([]byte(key))
	if err != nil {
		t.Fatalf("%s: Remove(%s) unexpectedly failed: %s", testName, key, err)
	}
}

func commitForTest(t *testing.T, tx *WriteTx, testName string) {
	err := tx.Commit()
	if err != nil {
		t.Fatalf("%s: Commit unexpectedly failed: %s", testName, err)
	}
}

// scanForTest collects the pairs of a prefix scan as strings, in the
// order the cursor returns them.
func scanForTest(t *testing.T, handle *Handle, subPrefix string, testName string) [][2]string {
	cursor, err := handle.PrefixScan([]byte(subPrefix))
	if err != nil {
		t.Fatalf("%s: PrefixScan unexpectedly failed: %s", testName, err)
	}
	defer cursor.Close()

	pairs := [][2]string{}
	for cursor.Next() {
		pairs = append(pairs, [2]string{string(cursor.Key()), string(cursor.Value())})
	}
	if err := cursor.Error(); err != nil {
		t.Fatalf("%s: cursor unexpectedly failed: %s", testName, err)
	}
	return pairs
}

// commitPairsForTest inserts the given pairs into namespace in one write
// transaction and commits it.
func commitPairsForTest(t *testing.T, db *Database, namespace string, testName string, pairs ...[2]string) {
	tx := beginWriteForTest(t, db, testName)
	handle := handleForTest(t, tx, namespace, testName)
	for _, pair := range pairs {
		insertForTest(t, handle, pair[0], pair[1], testName)
	}
	commitForTest(t, tx, testName)
}
