package batchapply

import (
	"context"
	"testing"
	"time"

	"github.com/kaspanet/fedstore/infrastructure/db/database"
	"github.com/kaspanet/fedstore/infrastructure/db/database/browserdb"
	"github.com/pkg/errors"
)

var testNamespaces = database.Namespaces{
	"wallet": []byte{0x01},
	"mint":   []byte{0x02},
}

// failingHandle is a browser storage handle whose Flush fails while
// failFlush is set.
type failingHandle struct {
	*browserdb.MemoryHandle
	failFlush bool
}

func (h *failingHandle) Flush() error {
	if h.failFlush {
		return errors.New("quota exceeded")
	}
	return nil
}

func openForTest(t *testing.T, testName string) (*database.Database, *failingHandle) {
	handle := &failingHandle{}
	options := database.DefaultOptions()
	options.Namespaces = testNamespaces
	options.HandleOpener = func(string, bool) (browserdb.StorageHandle, error) {
		acquired, err := browserdb.NewMemoryHandle().Acquire()
		if err != nil {
			return nil, err
		}
		handle.MemoryHandle = acquired.(*browserdb.MemoryHandle)
		return handle, nil
	}
	db, err := database.Open(testName, database.KindBrowser, options)
	if err != nil {
		t.Fatalf("%s: Open unexpectedly failed: %s", testName, err)
	}
	return db, handle
}

func closeForTest(t *testing.T, db *database.Database, testName string) {
	err := db.Close()
	if err != nil {
		t.Fatalf("%s: Close unexpectedly failed: %s", testName, err)
	}
}

// haltRecorder records the reasons it was asked to halt for.
type haltRecorder struct {
	reasons []string
}

func (r *haltRecorder) halt(reason string) {
	r.reasons = append(r.reasons, reason)
}

func getForTest(t *testing.T, db *database.Database, namespace string, key string, testName string) (string, bool) {
	var value []byte
	err := db.View(func(tx *database.ReadTx) error {
		handle, err := tx.Handle(namespace)
		if err != nil {
			return err
		}
		value, err = handle.Get([]byte(key))
		return err
	})
	if database.IsNotFoundError(err) {
		return "", false
	}
	if err != nil {
		t.Fatalf("%s: View unexpectedly failed: %s", testName, err)
	}
	return string(value), true
}

func TestApply(t *testing.T) {
	db, _ := openForTest(t, "TestApply")
	defer closeForTest(t, db, "TestApply")
	recorder := &haltRecorder{}
	applier := New(db, time.Second, recorder.halt)

	err := applier.Apply(context.Background(), &DecidedBatch{
		Round: 1,
		Operations: []Operation{
			{Namespace: "wallet", Key: []byte("utxo1"), Value: []byte("100")},
			{Namespace: "mint", Key: []byte("note"), Value: []byte("issued")},
			{Namespace: "wallet", Key: []byte("utxo2"), Value: []byte("50")},
		},
	})
	if err != nil {
		t.Fatalf("TestApply: Apply unexpectedly failed: %s", err)
	}
	err = applier.Apply(context.Background(), &DecidedBatch{
		Round: 2,
		Operations: []Operation{
			{Namespace: "wallet", Key: []byte("utxo1"), Remove: true},
			{Namespace: "mint", Key: []byte("note"), Value: []byte("spent")},
		},
	})
	if err != nil {
		t.Fatalf("TestApply: Apply unexpectedly failed: %s", err)
	}

	if db.Version() != 2 {
		t.Fatalf("TestApply: got version %d, want one version per batch", db.Version())
	}
	if _, found := getForTest(t, db, "wallet", "utxo1", "TestApply"); found {
		t.Fatalf("TestApply: removed utxo1 is still there")
	}
	if value, _ := getForTest(t, db, "wallet", "utxo2", "TestApply"); value != "50" {
		t.Fatalf("TestApply: got utxo2 = %q, want \"50\"", value)
	}
	if value, _ := getForTest(t, db, "mint", "note", "TestApply"); value != "spent" {
		t.Fatalf("TestApply: got note = %q, want \"spent\"", value)
	}
	if len(recorder.reasons) != 0 {
		t.Fatalf("TestApply: unexpectedly halted: %v", recorder.reasons)
	}
}

func TestApplyUnknownNamespace(t *testing.T) {
	db, _ := openForTest(t, "TestApplyUnknownNamespace")
	defer closeForTest(t, db, "TestApplyUnknownNamespace")
	recorder := &haltRecorder{}
	applier := New(db, time.Second, recorder.halt)

	err := applier.Apply(context.Background(), &DecidedBatch{
		Round: 1,
		Operations: []Operation{
			{Namespace: "wallet", Key: []byte("utxo1"), Value: []byte("100")},
			{Namespace: "lightning", Key: []byte("invoice"), Value: []byte("paid")},
		},
	})
	if !errors.Is(err, database.ErrInvalidNamespace) {
		t.Fatalf("TestApplyUnknownNamespace: Apply returned %v, want ErrInvalidNamespace", err)
	}
	if db.Version() != 0 {
		t.Fatalf("TestApplyUnknownNamespace: part of a rejected batch was applied")
	}
	if len(recorder.reasons) != 0 {
		t.Fatalf("TestApplyUnknownNamespace: unexpectedly halted: %v", recorder.reasons)
	}
}

func TestApplyHaltsOnIOError(t *testing.T) {
	db, handle := openForTest(t, "TestApplyHaltsOnIOError")
	defer closeForTest(t, db, "TestApplyHaltsOnIOError")
	recorder := &haltRecorder{}
	applier := New(db, time.Second, recorder.halt)

	handle.failFlush = true
	err := applier.Apply(context.Background(), &DecidedBatch{
		Round:      1,
		Operations: []Operation{{Namespace: "wallet", Key: []byte("utxo1"), Value: []byte("100")}},
	})
	if !database.IsIOError(err) {
		t.Fatalf("TestApplyHaltsOnIOError: Apply returned %v, want ErrIO", err)
	}
	if len(recorder.reasons) != 1 {
		t.Fatalf("TestApplyHaltsOnIOError: got %d halts, want 1", len(recorder.reasons))
	}
	if db.Version() != 0 {
		t.Fatalf("TestApplyHaltsOnIOError: the failed batch produced version %d", db.Version())
	}
}

func TestApplyWouldBlock(t *testing.T) {
	db, _ := openForTest(t, "TestApplyWouldBlock")
	defer closeForTest(t, db, "TestApplyWouldBlock")
	recorder := &haltRecorder{}
	applier := New(db, 10*time.Millisecond, recorder.halt)

	tx, err := db.TryBeginWrite()
	if err != nil {
		t.Fatalf("TestApplyWouldBlock: TryBeginWrite unexpectedly failed: %s", err)
	}
	err = applier.Apply(context.Background(), &DecidedBatch{
		Round:      1,
		Operations: []Operation{{Namespace: "wallet", Key: []byte("utxo1"), Value: []byte("100")}},
	})
	if !database.IsWouldBlockError(err) {
		t.Fatalf("TestApplyWouldBlock: Apply returned %v, want ErrWouldBlock", err)
	}
	if len(recorder.reasons) != 0 {
		t.Fatalf("TestApplyWouldBlock: unexpectedly halted: %v", recorder.reasons)
	}
	err = tx.Rollback()
	if err != nil {
		t.Fatalf("TestApplyWouldBlock: Rollback unexpectedly failed: %s", err)
	}
}

func TestStart(t *testing.T) {
	db, _ := openForTest(t, "TestStart")
	defer closeForTest(t, db, "TestStart")
	applier := New(db, 0, (&haltRecorder{}).halt)

	batches := make(chan *DecidedBatch, 3)
	for round := uint64(1); round <= 3; round++ {
		batches <- &DecidedBatch{
			Round:      round,
			Operations: []Operation{{Namespace: "mint", Key: []byte("round"), Value: []byte{byte(round)}}},
		}
	}
	close(batches)

	select {
	case err := <-applier.Start(context.Background(), batches):
		if err != nil {
			t.Fatalf("TestStart: Run unexpectedly failed: %s", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("TestStart: Run did not return")
	}
	if db.Version() != 3 {
		t.Fatalf("TestStart: got version %d, want 3", db.Version())
	}
	if value, _ := getForTest(t, db, "mint", "round", "TestStart"); value != string([]byte{3}) {
		t.Fatalf("TestStart: got round %x, want 03", value)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := <-applier.Start(ctx, make(chan *DecidedBatch))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("TestStart: Run with a cancelled context returned %v", err)
	}
}
