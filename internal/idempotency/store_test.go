package idempotency

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if rec, _ := store.Get(ctx, "missing"); rec != nil {
		t.Fatalf("expected nil for missing key")
	}

	record := Record{
		StatusCode: 200,
		Response:   []byte("ok"),
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	if err := store.Save(ctx, "abc", record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, _ := store.Get(ctx, "abc")
	if got == nil || string(got.Response) != "ok" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Save(ctx, "old", Record{StatusCode: 200, ExpiresAt: time.Now().Add(-time.Second)})

	if rec, _ := store.Get(ctx, "old"); rec != nil {
		t.Fatalf("expected expired record to be hidden")
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "idem.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	ctx := context.Background()
	record := Record{
		StatusCode: 200,
		Response:   []byte("resp"),
		CreatedAt:  time.Unix(0, 0),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	if err := store.Save(ctx, "key", record); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("re-open store: %v", err)
	}
	got, _ := reopened.Get(ctx, "key")
	if got == nil || string(got.Response) != "resp" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "idem.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	if rec, err := store.Get(ctx, "missing"); err != nil || rec != nil {
		t.Fatalf("expected nil record, got %+v err %v", rec, err)
	}

	record := Record{
		StatusCode: 200,
		Response:   []byte(`{"status":"minted"}`),
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().Add(time.Minute).UTC(),
	}
	if err := store.Save(ctx, "k1", record); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.StatusCode != 200 || string(got.Response) != string(record.Response) {
		t.Fatalf("unexpected record: %+v", got)
	}

	record.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Save(ctx, "k1", record); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _ := store.Get(ctx, "k1"); got != nil {
		t.Fatalf("expected expired record to be dropped")
	}
}

func TestOpenUnknownKind(t *testing.T) {
	if _, _, err := Open(context.Background(), Options{Kind: "redis"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestOpenMemory(t *testing.T) {
	store, closeFn, err := Open(context.Background(), Options{Kind: KindMemory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}
