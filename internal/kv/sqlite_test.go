package kv

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := OpenSQLite(context.Background(), path, newLogger())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Put(ctx, "a", []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "a", []byte("two")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	value, ok, err := s.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(value) != "two" {
		t.Fatalf("expected upserted value, got %q", value)
	}

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expected absent key")
	}
}

func TestKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, k := range []string{"session:b", "session:a", "other"} {
		if err := s.Put(ctx, k, []byte("x")); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	keys, err := s.Keys(ctx, "session:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "session:a" || keys[1] != "session:b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestDeleteAndSize(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Put(ctx, "k", []byte("0123456789")); err != nil {
		t.Fatalf("put: %v", err)
	}
	size, err := s.SizeInBytes(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 11 {
		t.Fatalf("expected 11 bytes, got %d", size)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	size, err = s.SizeInBytes(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected empty store, got %d bytes", size)
	}
}
