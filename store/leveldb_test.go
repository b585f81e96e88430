package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/patriciaforestry/mpf"
)

func TestLevelDB_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	db, err := OpenLevelDB(filepath.Join(t.TempDir(), "mpf-leveldb-test"))
	if err != nil {
		t.Fatalf("OpenLevelDB failed: %v", err)
	}
	defer db.Close()

	key := mpf.Blake2b256([]byte("k"))
	if _, ok, err := db.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get on empty db = (%v, %v), want (false, nil)", ok, err)
	}

	if err := db.Put(ctx, key, []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, ok, err := db.Get(ctx, key)
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get = (%q, %v, %v), want (v, true, nil)", v, ok, err)
	}

	exists, err := db.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", exists, err)
	}

	if err := db.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := db.Get(ctx, key); ok {
		t.Errorf("Get after Delete should report absence")
	}
}

func TestLevelDB_Batch(t *testing.T) {
	ctx := context.Background()
	db, err := OpenLevelDB(filepath.Join(t.TempDir(), "mpf-leveldb-test"))
	if err != nil {
		t.Fatalf("OpenLevelDB failed: %v", err)
	}
	defer db.Close()

	k1 := mpf.Blake2b256([]byte("k1"))
	k2 := mpf.Blake2b256([]byte("k2"))
	err = db.Batch(ctx, []mpf.Op{
		{Key: k1, Value: []byte("v1")},
		{Key: k2, Value: []byte("v2")},
	})
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if v, ok, _ := db.Get(ctx, k1); !ok || string(v) != "v1" {
		t.Errorf("Get(k1) = (%q, %v), want (v1, true)", v, ok)
	}

	if err := db.Batch(ctx, []mpf.Op{{Key: k1, Tombstone: true}}); err != nil {
		t.Fatalf("tombstone batch failed: %v", err)
	}
	if _, ok, _ := db.Get(ctx, k1); ok {
		t.Errorf("k1 should be gone after a tombstone batch entry")
	}
}

func TestLevelDB_SatisfiesTrieRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := OpenLevelDB(filepath.Join(t.TempDir(), "mpf-leveldb-trie-test"))
	if err != nil {
		t.Fatalf("OpenLevelDB failed: %v", err)
	}
	defer db.Close()

	tr := mpf.New(db, mpf.DefaultConfig)
	if err := tr.Insert(ctx, []byte("apple"), []byte("🍎")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	root, err := tr.Save(ctx)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := mpf.Load(ctx, db, mpf.DefaultConfig)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Root() != root {
		t.Fatalf("loaded root = %s, want %s", loaded.Root(), root)
	}
	v, ok, err := loaded.Get(ctx, []byte("apple"))
	if err != nil || !ok || string(v) != "🍎" {
		t.Errorf("Get(apple) = (%q, %v, %v), want (🍎, true, nil)", v, ok, err)
	}
}
