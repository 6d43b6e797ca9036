package memdb

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
)

func writeForTest(t *testing.T, db *MemDB, testName string, operations ...backend.Operation) backend.View {
	latest, err := db.Latest()
	if err != nil {
		t.Fatalf("%s: Latest unexpectedly failed: %s", testName, err)
	}
	view, err := db.Write(&backend.Batch{Version: latest.Version() + 1, Operations: operations})
	if err != nil {
		t.Fatalf("%s: Write unexpectedly failed: %s", testName, err)
	}
	return view
}

func TestMemDBVersionsAreImmutable(t *testing.T) {
	db := New()
	first := writeForTest(t, db, "TestMemDBVersionsAreImmutable",
		backend.Operation{Key: []byte("a"), Value: []byte("1")})
	second := writeForTest(t, db, "TestMemDBVersionsAreImmutable",
		backend.Operation{Key: []byte("a"), Remove: true},
		backend.Operation{Key: []byte("b"), Value: []byte("2")})

	if first.Version() != 1 || second.Version() != 2 {
		t.Fatalf("TestMemDBVersionsAreImmutable: got versions %d and %d, want 1 and 2",
			first.Version(), second.Version())
	}
	value, ok, _ := first.Get([]byte("a"))
	if !ok || !bytes.Equal(value, []byte("1")) {
		t.Fatalf("TestMemDBVersionsAreImmutable: version 1 lost key a")
	}
	_, ok, _ = first.Get([]byte("b"))
	if ok {
		t.Fatalf("TestMemDBVersionsAreImmutable: version 1 sees a key written by version 2")
	}
	_, ok, _ = second.Get([]byte("a"))
	if ok {
		t.Fatalf("TestMemDBVersionsAreImmutable: version 2 still sees removed key a")
	}
}

func TestMemDBRejectsVersionGaps(t *testing.T) {
	db := New()
	_, err := db.Write(&backend.Batch{Version: 2})
	if err == nil {
		t.Fatalf("TestMemDBRejectsVersionGaps: Write with a version gap unexpectedly succeeded")
	}
}

func TestTreeIteratorPrefix(t *testing.T) {
	db := New()
	var operations []backend.Operation
	for _, key := range []string{"a/2", "a/0", "b/0", "a/1", "a", "ab"} {
		operations = append(operations, backend.Operation{Key: []byte(key), Value: []byte("v" + key)})
	}
	view := writeForTest(t, db, "TestTreeIteratorPrefix", operations...)

	iterator := view.NewIterator([]byte("a/"))
	defer iterator.Release()

	var keys []string
	for ok := iterator.First(); ok; ok = iterator.Next() {
		keys = append(keys, string(iterator.Key()))
		if string(iterator.Value()) != "v"+string(iterator.Key()) {
			t.Fatalf("TestTreeIteratorPrefix: wrong value %s for key %s", iterator.Value(), iterator.Key())
		}
	}
	if fmt.Sprint(keys) != "[a/0 a/1 a/2]" {
		t.Fatalf("TestTreeIteratorPrefix: got keys %v, want [a/0 a/1 a/2]", keys)
	}

	// The iterator is restartable and seekable
	if !iterator.Seek([]byte("a/1")) || string(iterator.Key()) != "a/1" {
		t.Fatalf("TestTreeIteratorPrefix: Seek to a/1 landed on %s", iterator.Key())
	}
	if !iterator.Seek([]byte("0")) || string(iterator.Key()) != "a/0" {
		t.Fatalf("TestTreeIteratorPrefix: Seek below the prefix landed on %s", iterator.Key())
	}
	if iterator.Seek([]byte("a/3")) {
		t.Fatalf("TestTreeIteratorPrefix: Seek past the prefix unexpectedly found %s", iterator.Key())
	}
}

func TestMemDBClose(t *testing.T) {
	db := New()
	err := db.Close()
	if err != nil {
		t.Fatalf("TestMemDBClose: Close unexpectedly failed: %s", err)
	}
	_, err = db.Latest()
	if err == nil {
		t.Fatalf("TestMemDBClose: Latest on a closed backend unexpectedly succeeded")
	}
}
