package blobstore_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"studyhub/internal/blobstore"
	"studyhub/internal/services"
)

func openStore(t *testing.T) (*blobstore.Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "blobs")
	store, err := blobstore.Open(dir)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	return store, dir
}

func TestPutAndRead(t *testing.T) {
	store, dir := openStore(t)
	ctx := context.Background()

	payload := []byte("lecture audio bytes")
	blob, err := store.PutBytes(ctx, payload, "audio/mpeg")
	if err != nil {
		t.Fatalf("PutBytes returned error: %v", err)
	}
	sum := sha256.Sum256(payload)
	if blob.Ref != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected ref %s", blob.Ref)
	}
	if blob.Size != int64(len(payload)) || blob.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected blob metadata: %+v", blob)
	}
	if _, err := os.Stat(filepath.Join(dir, blob.Ref[:2], blob.Ref)); err != nil {
		t.Fatalf("expected sharded payload on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, blob.Ref[:2], blob.Ref+".json")); err != nil {
		t.Fatalf("expected metadata sidecar on disk: %v", err)
	}

	got, data, err := store.Read(ctx, blob.Ref)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("payload mismatch: %q", data)
	}
	if got.ContentType != "audio/mpeg" {
		t.Fatalf("expected stored content type, got %q", got.ContentType)
	}
}

func TestPutDeduplicatesIdenticalContent(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	first, err := store.PutBytes(ctx, []byte("same"), "text/plain")
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	second, err := store.PutBytes(ctx, []byte("same"), "application/json")
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if first.Ref != second.Ref {
		t.Fatalf("expected identical refs, got %s and %s", first.Ref, second.Ref)
	}
	if second.ContentType != "text/plain" {
		t.Fatalf("expected original metadata to be preserved, got %q", second.ContentType)
	}
	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one stored blob, got %d", count)
	}
}

func TestStatUnknownAndInvalidRefs(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	cases := []string{
		strings.Repeat("a", 64),
		"../etc/passwd",
		"",
		strings.Repeat("A", 64),
	}
	for _, ref := range cases {
		if _, err := store.Stat(ctx, ref); !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("Stat(%q): expected ErrNotFound, got %v", ref, err)
		}
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestPutReaderErrorLeavesNothingBehind(t *testing.T) {
	store, _ := openStore(t)
	readErr := errors.New("too large")

	_, err := store.Put(context.Background(), io.MultiReader(strings.NewReader("partial"), failingReader{err: readErr}), "image/png")
	if !errors.Is(err, readErr) {
		t.Fatalf("expected reader error to pass through, got %v", err)
	}
	if errors.Is(err, services.ErrStorageUnavailable) {
		t.Fatal("reader errors must not be classified as storage failures")
	}
	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no blobs, got %d", count)
	}
	entries, err := os.ReadDir(filepath.Join(store.Root(), "tmp"))
	if err != nil {
		t.Fatalf("read tmp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp files to be cleaned up, got %d", len(entries))
	}
}

func TestStatWithoutSidecarFallsBack(t *testing.T) {
	store, dir := openStore(t)
	ctx := context.Background()

	blob, err := store.PutBytes(ctx, []byte("orphan"), "")
	if err != nil {
		t.Fatalf("PutBytes returned error: %v", err)
	}
	if blob.ContentType != "application/octet-stream" {
		t.Fatalf("expected default content type, got %q", blob.ContentType)
	}
	if err := os.Remove(filepath.Join(dir, blob.Ref[:2], blob.Ref+".json")); err != nil {
		t.Fatalf("remove sidecar: %v", err)
	}
	got, err := store.Stat(ctx, blob.Ref)
	if err != nil {
		t.Fatalf("Stat returned error: %v", err)
	}
	if got.Size != 6 || got.ContentType != "application/octet-stream" {
		t.Fatalf("unexpected fallback metadata: %+v", got)
	}
}

func TestPutHonorsCancelledContext(t *testing.T) {
	store, _ := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.PutBytes(ctx, []byte("x"), "text/plain"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
