package testsupport

import (
	"context"
	"testing"

	"studyhub/internal/blobstore"
	"studyhub/internal/config"
	"studyhub/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config, opts ...ledger.Option) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenBlobStore opens the blob store rooted at the config's blob dir.
func MustOpenBlobStore(t testing.TB, cfg *config.Config) *blobstore.Store {
	t.Helper()

	blobs, err := blobstore.Open(cfg.BlobDir())
	if err != nil {
		t.Fatalf("blobstore.Open: %v", err)
	}
	return blobs
}

// NewJob stores payload as the source blob and creates a pending job.
func NewJob(t testing.TB, store *ledger.Store, blobs *blobstore.Store, kind ledger.Kind, filename string, payload []byte, contentType string, stages ...ledger.Stage) *ledger.Job {
	t.Helper()

	ctx := context.Background()
	blob, err := blobs.PutBytes(ctx, payload, contentType)
	if err != nil {
		t.Fatalf("blobs.PutBytes: %v", err)
	}
	job, err := store.CreateJob(ctx, ledger.NewJob{
		Kind:            kind,
		SourceFilename:  filename,
		SourceBlobRef:   blob.Ref,
		RequestedStages: stages,
	})
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}

// MustGetJob reloads a job or fails the test.
func MustGetJob(t testing.TB, store *ledger.Store, id string) *ledger.Job {
	t.Helper()

	job, err := store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetJob(%s): %v", id, err)
	}
	return job
}
