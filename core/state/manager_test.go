package state

import (
	"bytes"
	"math/big"
	"testing"

	"loanchain/storage"
)

type record struct {
	Name   string
	Amount *big.Int
}

func TestKVReadWriteAndCommit(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	if err := mgr.KVPut([]byte("loan/record/1"), &record{Name: "alice", Amount: big.NewInt(7)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var got record
	ok, err := mgr.KVGet([]byte("loan/record/1"), &got)
	if err != nil || !ok {
		t.Fatalf("get pending value: ok=%v err=%v", ok, err)
	}
	if got.Name != "alice" || got.Amount.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected record %+v", got)
	}
	if has, _ := db.Has(kvKey([]byte("loan/record/1"))); has {
		t.Fatalf("value must not reach the store before commit")
	}

	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mgr.Dirty() != 0 {
		t.Fatalf("expected no dirty keys after commit, got %d", mgr.Dirty())
	}

	fresh := NewManager(db)
	ok, err = fresh.KVGet([]byte("loan/record/1"), &got)
	if err != nil || !ok {
		t.Fatalf("get committed value: ok=%v err=%v", ok, err)
	}

	if err := fresh.KVDelete([]byte("loan/record/1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := fresh.Commit(); err != nil {
		t.Fatalf("commit delete: %v", err)
	}
	ok, err = NewManager(db).KVGet([]byte("loan/record/1"), &got)
	if err != nil || ok {
		t.Fatalf("expected deleted value, ok=%v err=%v", ok, err)
	}
}

func TestSnapshotRevert(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.KVPut([]byte("a"), uint64(1)); err != nil {
		t.Fatalf("put a: %v", err)
	}
	snap := mgr.Snapshot()
	if err := mgr.KVPut([]byte("a"), uint64(2)); err != nil {
		t.Fatalf("overwrite a: %v", err)
	}
	if err := mgr.KVPut([]byte("b"), uint64(3)); err != nil {
		t.Fatalf("put b: %v", err)
	}
	inner := mgr.Snapshot()
	if err := mgr.KVDelete([]byte("a")); err != nil {
		t.Fatalf("delete a: %v", err)
	}

	mgr.RevertToSnapshot(inner)
	var value uint64
	if ok, _ := mgr.KVGet([]byte("a"), &value); !ok || value != 2 {
		t.Fatalf("expected a=2 after inner revert, got ok=%v value=%d", ok, value)
	}

	mgr.RevertToSnapshot(snap)
	if ok, _ := mgr.KVGet([]byte("a"), &value); !ok || value != 1 {
		t.Fatalf("expected a=1 after outer revert, got ok=%v value=%d", ok, value)
	}
	if ok, _ := mgr.KVGet([]byte("b"), &value); ok {
		t.Fatalf("expected b to be gone after revert")
	}

	mgr.RevertToSnapshot(-1)
	mgr.RevertToSnapshot(1000)
}

func TestDiscardDropsPendingWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("k"), uint64(9)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.Discard()
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, _ := NewManager(db).KVGet([]byte("k"), nil); ok {
		t.Fatalf("discarded write reached the store")
	}
}

func TestKVGetListDefaultsToEmpty(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	var items []record
	if err := mgr.KVGetList([]byte("missing"), &items); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
	if err := mgr.KVGetList([]byte("missing"), items); err == nil {
		t.Fatalf("expected error for non-pointer destination")
	}
	if err := mgr.KVPut(nil, 1); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestRawValues(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	mgr.PutRaw([]byte("meta"), []byte{})
	mgr.PutRaw([]byte("height"), []byte{0, 1})
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	raw, err := db.Get([]byte("height"))
	if err != nil {
		t.Fatalf("raw key must be stored unhashed: %v", err)
	}
	if !bytes.Equal(raw, []byte{0, 1}) {
		t.Fatalf("unexpected raw value %x", raw)
	}
	if has, _ := db.Has([]byte("meta")); !has {
		t.Fatalf("empty raw value must be stored, not deleted")
	}
}
