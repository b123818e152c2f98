package apiclient_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"studyhub/internal/apiclient"
	"studyhub/internal/daemon"
	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/services"
	"studyhub/internal/stage"
	"studyhub/internal/testsupport"
	"studyhub/internal/workflow"
)

func newServer(t *testing.T, token string) (*httptest.Server, *daemon.Daemon) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken(token))
	store := testsupport.MustOpenLedger(t, cfg)
	blobs := testsupport.MustOpenBlobStore(t, cfg)
	registry := stage.NewRegistry(stage.NewRenderPDF())
	orch := workflow.NewOrchestrator(cfg, store, blobs, registry, nil, logging.NewNop())
	d, err := daemon.New(cfg, store, blobs, registry, orch, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return srv, d
}

func writeUpload(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return path
}

func TestSubmitStatusCancelRoundTrip(t *testing.T) {
	srv, _ := newServer(t, "tok")
	client, err := apiclient.New(srv.URL, "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	id, err := client.Submit(ctx, apiclient.Upload{
		Kind:        "lecture",
		Path:        writeUpload(t, "lesson_two.mp3", testsupport.Payload(1024)),
		ContentType: "audio/mpeg",
		Quiz:        true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job, err := client.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != string(ledger.StatusPending) || job.Title != "Lesson Two" {
		t.Fatalf("job = %+v", job)
	}

	jobs, err := client.ListJobs(ctx, apiclient.ListQuery{Kind: "lecture", Statuses: []string{"pending"}})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("ListJobs = %v, %v", jobs, err)
	}

	cancelled, err := client.Cancel(ctx, id)
	if err != nil || cancelled.Status != string(ledger.StatusCancelled) {
		t.Fatalf("Cancel = %+v, %v", cancelled, err)
	}

	if err := client.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := client.GetJob(ctx, id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("GetJob after delete err = %v", err)
	}

	var buf bytes.Buffer
	contentType, n, err := client.FetchBlob(ctx, job.SourceBlobRef, &buf)
	if err != nil || contentType != "audio/mpeg" || n != 1024 {
		t.Fatalf("FetchBlob = %q %d %v", contentType, n, err)
	}
}

func TestErrorsUnwrapToSentinels(t *testing.T) {
	srv, _ := newServer(t, "")
	client, err := apiclient.New(srv.URL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	_, err = client.GetJob(ctx, "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("GetJob err = %v", err)
	}
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected APIError, got %T", err)
	}

	_, err = client.Submit(ctx, apiclient.Upload{Kind: "lecture", Path: writeUpload(t, "a.mp3", testsupport.Payload(10)), ContentType: "audio/mpeg"})
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("Submit err = %v", err)
	}
}

func TestUnauthorized(t *testing.T) {
	srv, _ := newServer(t, "right")
	client, _ := apiclient.New(srv.URL, "wrong")
	_, err := client.ListJobs(context.Background(), apiclient.ListQuery{})
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	srv, _ := newServer(t, "")
	addr := srv.URL
	srv.Close()

	client, _ := apiclient.New(addr, "")
	_, err := client.Health(context.Background())
	if !apiclient.IsAPIUnavailable(err) {
		t.Fatalf("err = %v, want unavailable", err)
	}
}

func TestNewRequiresAddress(t *testing.T) {
	if _, err := apiclient.New("  ", ""); err == nil {
		t.Fatal("expected error for empty address")
	}
}
