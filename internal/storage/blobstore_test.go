package storage

import (
	"bytes"
	"context"
	"testing"
)

func TestFileBlobStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	body := []byte("opaque ciphertext bytes")
	if err := s.Put(ctx, "item-1", body); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	if _, err := s.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("missing blob: got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "item-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "item-1"); err != ErrNotFound {
		t.Fatalf("after delete: got %v, want ErrNotFound", err)
	}
	// Deleting twice is a no-op, not an error.
	if err := s.Delete(ctx, "item-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestFileBlobStoreHostileID(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileBlobStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "../../escape", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "../../escape")
	if err != nil || !bytes.Equal(got, []byte("x")) {
		t.Fatalf("get: %v %q", err, got)
	}
}

func TestMemoryBlobStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBlobStore()
	body := []byte{1, 2, 3}
	if err := s.Put(ctx, "a", body); err != nil {
		t.Fatal(err)
	}
	body[0] = 99
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 {
		t.Fatal("store aliases caller's slice")
	}
}
