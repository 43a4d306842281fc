package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	boltStore, err := OpenBolt(filepath.Join(dir, "kv.bolt"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	sqliteStore, err := OpenSQLite(filepath.Join(dir, "kv.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sealedStore, err := NewSealed(NewMemory(), "passphrase")
	if err != nil {
		t.Fatalf("new sealed: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"bolt":   boltStore,
		"sqlite": sqliteStore,
		"sealed": sealedStore,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			if got, err := store.Get(ctx, "absent"); err != nil || got != nil {
				t.Fatalf("get absent: value=%v err=%v", got, err)
			}
			if err := store.Set(ctx, "a", []byte("1")); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := store.Set(ctx, "b", []byte("2")); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := store.Set(ctx, "a", []byte("updated")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			got, err := store.Get(ctx, "a")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(got) != "updated" {
				t.Fatalf("unexpected value %q", got)
			}

			keys, err := store.Keys(ctx)
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			if !reflect.DeepEqual(keys, []string{"a", "b"}) {
				t.Fatalf("unexpected keys %v", keys)
			}

			if err := store.Remove(ctx, "a"); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if got, err := store.Get(ctx, "a"); err != nil || got != nil {
				t.Fatalf("get removed: value=%v err=%v", got, err)
			}
			// removing a missing key is not an error
			if err := store.Remove(ctx, "a"); err != nil {
				t.Fatalf("remove absent: %v", err)
			}
		})
	}
}

func TestSealedHidesPlaintext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := NewMemory()
	sealed, err := NewSealed(inner, "secret phrase")
	if err != nil {
		t.Fatalf("new sealed: %v", err)
	}
	payload := []byte(`{"accessToken":"visible-token"}`)
	if err := sealed.Set(ctx, "tokens:r1", payload); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := inner.Get(ctx, "tokens:r1")
	if err != nil {
		t.Fatalf("inner get: %v", err)
	}
	if string(raw) == string(payload) {
		t.Fatal("value stored in the clear")
	}

	back, err := sealed.Get(ctx, "tokens:r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(back) != string(payload) {
		t.Fatalf("round trip mismatch: %q", back)
	}
}

func TestSealedWrongKeyFailsClosed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := NewMemory()
	first, err := NewSealed(inner, "right")
	if err != nil {
		t.Fatalf("new sealed: %v", err)
	}
	if err := first.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}

	second, err := NewSealed(inner, "wrong")
	if err != nil {
		t.Fatalf("new sealed: %v", err)
	}
	if _, err := second.Get(ctx, "k"); err == nil {
		t.Fatal("expected unseal failure with wrong passphrase")
	}
}
