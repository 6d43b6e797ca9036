package database

import (
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
)

func TestCursorMergesOwnWrites(t *testing.T) {
	testForAllDatabaseKinds(t, "TestCursorMergesOwnWrites", testCursorMergesOwnWrites)
}

func testCursorMergesOwnWrites(t *testing.T, db *Database, testName string) {
	commitPairsForTest(t, db, "wallet", testName,
		[2]string{"utxo/1", "a"},
		[2]string{"utxo/3", "c"},
		[2]string{"utxo/5", "e"},
		[2]string{"utxo/7", "g"},
		[2]string{"zzz", "outside"})
	commitPairsForTest(t, db, "mint", testName, [2]string{"utxo/2", "mint"})

	tx := beginWriteForTest(t, db, testName)
	defer tx.RollbackUnlessClosed()
	handle := handleForTest(t, tx, "wallet", testName)
	insertForTest(t, handle, "utxo/0", "new", testName)
	insertForTest(t, handle, "utxo/3", "changed", testName)
	removeForTest(t, handle, "utxo/5", testName)
	insertForTest(t, handle, "utxo/6", "new", testName)
	removeForTest(t, handle, "utxo/7", testName)
	insertForTest(t, handle, "utxo/8", "new", testName)

	expected := [][2]string{
		{"utxo/0", "new"},
		{"utxo/1", "a"},
		{"utxo/3", "changed"},
		{"utxo/6", "new"},
		{"utxo/8", "new"},
	}
	if pairs := scanForTest(t, handle, "utxo/", testName); !reflect.DeepEqual(pairs, expected) {
		t.Fatalf("%s: got %s, want %s", testName, spew.Sdump(pairs), spew.Sdump(expected))
	}

	all := scanForTest(t, handle, "", testName)
	if len(all) != len(expected)+1 || all[len(all)-1] != [2]string{"zzz", "outside"} {
		t.Fatalf("%s: scan of the whole namespace got %s", testName, spew.Sdump(all))
	}

	pairs, err := handle.FindByPrefix([]byte("utxo/"))
	if err != nil {
		t.Fatalf("%s: FindByPrefix unexpectedly failed: %s", testName, err)
	}
	if len(pairs) != len(expected) || string(pairs[2].Key) != "utxo/3" || string(pairs[2].Value) != "changed" {
		t.Fatalf("%s: FindByPrefix got %s", testName, spew.Sdump(pairs))
	}
}

func TestCursorMovement(t *testing.T) {
	testForAllDatabaseKinds(t, "TestCursorMovement", testCursorMovement)
}

func testCursorMovement(t *testing.T, db *Database, testName string) {
	commitPairsForTest(t, db, "ln", testName,
		[2]string{"b", "1"}, [2]string{"d", "2"}, [2]string{"f", "3"})

	tx := beginWriteForTest(t, db, testName)
	defer tx.RollbackUnlessClosed()
	handle := handleForTest(t, tx, "ln", testName)
	insertForTest(t, handle, "c", "new", testName)

	cursor, err := handle.PrefixScan(nil)
	if err != nil {
		t.Fatalf("%s: PrefixScan unexpectedly failed: %s", testName, err)
	}
	defer cursor.Close()

	// Writes made after the cursor was created are not visible to it
	insertForTest(t, handle, "a", "late", testName)

	if !cursor.Next() || string(cursor.Key()) != "b" {
		t.Fatalf("%s: first entry is %q, want \"b\"", testName, cursor.Key())
	}
	if !cursor.Seek([]byte("c")) || string(cursor.Key()) != "c" || string(cursor.Value()) != "new" {
		t.Fatalf("%s: Seek(c) landed on %q", testName, cursor.Key())
	}
	if !cursor.Seek([]byte("e")) || string(cursor.Key()) != "f" {
		t.Fatalf("%s: Seek(e) landed on %q, want \"f\"", testName, cursor.Key())
	}
	if cursor.Next() {
		t.Fatalf("%s: cursor moved past the last entry to %q", testName, cursor.Key())
	}
	if cursor.Key() != nil || cursor.Next() {
		t.Fatalf("%s: exhausted cursor still has an entry", testName)
	}

	if !cursor.First() || string(cursor.Key()) != "b" {
		t.Fatalf("%s: First landed on %q, want \"b\"", testName, cursor.Key())
	}
	count := 1
	for cursor.Next() {
		count++
	}
	if count != 4 {
		t.Fatalf("%s: got %d entries after a restart, want 4", testName, count)
	}
	if cursor.Seek([]byte("g")) {
		t.Fatalf("%s: Seek past the last key landed on %q", testName, cursor.Key())
	}

	err = cursor.Close()
	if err != nil {
		t.Fatalf("%s: Close unexpectedly failed: %s", testName, err)
	}
	if cursor.First() || cursor.Next() {
		t.Fatalf("%s: closed cursor still moves", testName)
	}
	err = cursor.Close()
	if err == nil {
		t.Fatalf("%s: second Close unexpectedly succeeded", testName)
	}
}

func TestCursorAfterDatabaseClose(t *testing.T) {
	for _, prepareDatabase := range databasePrepareFuncs {
		opener, kind := prepareDatabase(t)
		testName := "TestCursorAfterDatabaseClose: " + kind.String()
		db, err := opener(false)
		if err != nil {
			t.Fatalf("%s: Open unexpectedly failed: %s", testName, err)
		}
		commitPairsForTest(t, db, "wallet", testName,
			[2]string{"utxo1", "100"},
			[2]string{"utxo2", "200"})

		tx := beginReadForTest(t, db, testName)
		cursor, err := handleForTest(t, tx, "wallet", testName).PrefixScan(nil)
		if err != nil {
			t.Fatalf("%s: PrefixScan unexpectedly failed: %s", testName, err)
		}
		if !cursor.Next() {
			t.Fatalf("%s: Next on a fresh cursor unexpectedly returned false", testName)
		}

		closeForTest(t, db, testName)

		if cursor.Next() {
			t.Fatalf("%s: Next after Close unexpectedly returned true", testName)
		}
		if cursor.First() || cursor.Seek([]byte("utxo1")) {
			t.Fatalf("%s: the cursor moved after Close", testName)
		}
		if cursor.Key() != nil || cursor.Value() != nil {
			t.Fatalf("%s: got entry %q => %q after Close", testName, cursor.Key(), cursor.Value())
		}
		if !errors.Is(cursor.Error(), ErrDatabaseClosed) {
			t.Fatalf("%s: Error after Close returned %v, want ErrDatabaseClosed", testName, cursor.Error())
		}
		err = cursor.Close()
		if err != nil {
			t.Fatalf("%s: cursor Close unexpectedly failed: %s", testName, err)
		}
		err = tx.Rollback()
		if err != nil {
			t.Fatalf("%s: Rollback unexpectedly failed: %s", testName, err)
		}
	}
}
