package handoff

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

func TestFSStorePutAndGet(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	data := []byte("archive bytes")

	rec, err := store.Put(ctx, "run-1/dist", bytes.NewReader(data), time.Hour)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if rec.Size != int64(len(data)) {
		t.Errorf("Got size %d, want %d", rec.Size, len(data))
	}
	if !strings.HasPrefix(rec.Digest, "sha256:") {
		t.Errorf("Unexpected digest %q", rec.Digest)
	}
	if rec.ExpiresAt.Sub(rec.CreatedAt) != time.Hour {
		t.Errorf("Got retention %v, want 1h", rec.ExpiresAt.Sub(rec.CreatedAt))
	}

	r, got, err := store.Get(ctx, "run-1/dist")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(content, data) {
		t.Errorf("Got data %q, want %q", content, data)
	}
	if got.Digest != rec.Digest {
		t.Errorf("Got digest %q, want %q", got.Digest, rec.Digest)
	}
}

func TestFSStorePutIsImmutable(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "run-1/dist", strings.NewReader("a"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_, err = store.Put(ctx, "run-1/dist", strings.NewReader("b"), 0)
	if _, ok := err.(ErrExists); !ok {
		t.Fatalf("Expected ErrExists, got %v", err)
	}
}

func TestFSStoreGetMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	_, _, err = store.Get(context.Background(), "run-1/dist")
	if !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestFSStoreExpiryAndPrune(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	if _, err := store.Put(ctx, "run-1/dist", strings.NewReader("old"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.Put(ctx, "run-2/dist", strings.NewReader("kept"), time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, _, err = store.Get(ctx, "run-1/dist")
	if nf, ok := err.(ErrNotFound); !ok || !nf.Expired {
		t.Fatalf("Expected expired not-found, got %v", err)
	}

	removed, err := store.Prune(ctx, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Got %d removed, want 1", removed)
	}
	if _, err := os.Stat(store.objectPath("run-1", "dist")); !os.IsNotExist(err) {
		t.Errorf("Expired object still on disk: %v", err)
	}
	if _, _, err := store.Get(ctx, "run-2/dist"); err != nil {
		t.Errorf("Unexpired object lost: %v", err)
	}
}

func TestFSStoreDetectsCorruption(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "run-1/dist", strings.NewReader("original"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := os.WriteFile(store.objectPath("run-1", "dist"), []byte("tampered"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r, _, err := store.Get(ctx, "run-1/dist")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer r.Close()
	if _, err := io.ReadAll(r); err == nil || !strings.Contains(err.Error(), "corrupt") {
		t.Errorf("Expected corruption error, got %v", err)
	}
}

func TestFSStoreDelete(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "run-1/dist", strings.NewReader("x"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(ctx, "run-1/dist"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "run-1/dist"); !IsNotFound(err) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}
}
