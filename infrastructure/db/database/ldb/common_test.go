package ldb

import (
	"testing"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
)

func prepareDatabaseForTest(t *testing.T, testName string) (ldb *LevelDB, path string, teardownFunc func()) {
	path = t.TempDir()
	ldb, err := Open(path, false)
	if err != nil {
		t.Fatalf("%s: Open unexpectedly failed: %s", testName, err)
	}
	teardownFunc = func() {
		err := ldb.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly failed: %s", testName, err)
		}
	}
	return ldb, path, teardownFunc
}

func writeForTest(t *testing.T, ldb *LevelDB, testName string, state string,
	operations ...backend.Operation) backend.View {

	view, err := ldb.Write(&backend.Batch{
		Version:    ldb.version + 1,
		State:      []byte(state),
		Operations: operations,
	})
	if err != nil {
		t.Fatalf("%s: Write unexpectedly failed: %s", testName, err)
	}
	return view
}

func insert(key, value string) backend.Operation {
	return backend.Operation{Key: []byte(key), Value: []byte(value)}
}

func remove(key string) backend.Operation {
	return backend.Operation{Key: []byte(key), Remove: true}
}
