package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"studyhub/internal/api"
	"studyhub/internal/daemon"
	"studyhub/internal/logging"
	"studyhub/internal/stage"
	"studyhub/internal/testsupport"
	"studyhub/internal/workflow"
)

type cliTestEnv struct {
	server     *httptest.Server
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("STUDYHUB_API_TOKEN", "")

	cfg := testsupport.NewConfig(t)
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

	configPath := filepath.Join(base, "studyhub.toml")
	contents := fmt.Sprintf("[paths]\ndata_dir = %q\nlog_dir = %q\n",
		filepath.Join(base, "cli-data"), filepath.Join(base, "cli-logs"))
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{server: srv, configPath: configPath, baseDir: base}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	full := append([]string{"--config", env.configPath, "--api", env.server.URL}, args...)
	return runCLI(t, full)
}

func runCLI(t *testing.T, args []string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func (env *cliTestEnv) submitLecture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(env.baseDir, name)
	testsupport.WriteFile(t, path, 2048)
	out, _, err := env.run(t, "--json", "submit", path, "--kind", "lecture", "--content-type", "audio/mpeg", "--quiz")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil || resp.JobID == "" {
		t.Fatalf("decode submit output %q: %v", out, err)
	}
	return resp.JobID
}

func TestSubmitAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.submitLecture(t, "week_one.mp3")

	out, _, err := env.run(t, "status", id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "pending")
	requireContains(t, out, "Week One")
	requireContains(t, out, "quiz")
}

func TestSubmitGuessesWhiteboardFromExtension(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.baseDir, "board.png")
	if err := os.WriteFile(path, testsupport.PNG(t, 8, 8), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}

	out, _, err := env.run(t, "submit", path, "--no-ocr")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Submitted whiteboard job")

	out, _, err = env.run(t, "--json", "jobs", "--kind", "whiteboard")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	var jobs []struct {
		RequestedStages []string `json:"requestedStages"`
	}
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(jobs) != 1 || len(jobs[0].RequestedStages) != 1 || jobs[0].RequestedStages[0] != "enhance" {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestSubmitRejectedByDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.baseDir, "notes.gif")
	testsupport.WriteFile(t, path, 128)

	_, _, err := env.run(t, "submit", path, "--kind", "whiteboard", "--content-type", "image/gif")
	if err == nil {
		t.Fatal("expected submit to fail")
	}
	requireContains(t, err.Error(), "400")
}

func TestJobsListing(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, "No jobs found")

	env.submitLecture(t, "algebra.mp3")
	env.submitLecture(t, "biology.mp3")

	out, _, err = env.run(t, "jobs", "--search", "algebra")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, "Algebra")
	if strings.Contains(out, "Biology") {
		t.Fatalf("search should filter, got:\n%s", out)
	}
}

func TestCancel(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.submitLecture(t, "lecture.mp3")

	out, _, err := env.run(t, "cancel", id)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "cancelled")

	if _, _, err := env.run(t, "cancel", id); err == nil {
		t.Fatal("expected second cancel to conflict")
	}
}

func TestDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.submitLecture(t, "lecture.mp3")

	if _, _, err := env.run(t, "delete", id); err == nil {
		t.Fatal("expected delete of a pending job to conflict")
	}
	if _, _, err := env.run(t, "cancel", id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	out, _, err := env.run(t, "delete", id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	requireContains(t, out, "deleted")
}

func TestFetch(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.submitLecture(t, "lecture.mp3")

	_, _, err := env.run(t, "fetch", id)
	if err == nil {
		t.Fatal("expected fetch of pending job to fail")
	}
	requireContains(t, err.Error(), "no artifact yet")

	out, _, err := env.run(t, "--json", "status", id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var job struct {
		SourceBlobRef string `json:"sourceBlobRef"`
	}
	if err := json.Unmarshal([]byte(out), &job); err != nil || job.SourceBlobRef == "" {
		t.Fatalf("decode status %q: %v", out, err)
	}

	target := filepath.Join(env.baseDir, "downloads", "source.bin")
	_, stderr, err := env.run(t, "fetch", job.SourceBlobRef, "-o", target)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	requireContains(t, stderr, "Wrote 2048 bytes")
	info, err := os.Stat(target)
	if err != nil || info.Size() != 2048 {
		t.Fatalf("downloaded file: %v, %v", info, err)
	}
}

func TestDaemonHealth(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon:")
	requireContains(t, out, "render_pdf")
	requireContains(t, out, "Tesseract")
}

func TestUnreachableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.server.Close()

	_, _, err := env.run(t, "jobs")
	if err == nil {
		t.Fatal("expected connection error")
	}
	requireContains(t, err.Error(), "is studyhubd running?")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"--config", env.configPath, "config", "validate"})
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected init without --overwrite to fail")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestGuessContentType(t *testing.T) {
	tests := []struct {
		path string
		want string
		kind string
	}{
		{"board.PNG", "image/png", "whiteboard"},
		{"board.jpg", "image/jpeg", "whiteboard"},
		{"notes.pdf", "application/pdf", "lecture"},
		{"recording", "", "lecture"},
	}
	for _, tt := range tests {
		if got := guessContentType(tt.path); got != tt.want {
			t.Errorf("guessContentType(%q) = %q, want %q", tt.path, got, tt.want)
		}
		if got := guessKind(tt.path); got != tt.kind {
			t.Errorf("guessKind(%q) = %q, want %q", tt.path, got, tt.kind)
		}
	}
}

func TestFetchSaveDir(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.submitLecture(t, "lecture.mp3")
	out, _, err := env.run(t, "--json", "status", id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var job struct {
		SourceBlobRef string `json:"sourceBlobRef"`
	}
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode status: %v", err)
	}

	dir := filepath.Join(env.baseDir, "saved")
	if _, _, err := env.run(t, "fetch", job.SourceBlobRef, "--save-dir", dir); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("saved entries = %v, %v", entries, err)
	}
}

func TestArtifactFileName(t *testing.T) {
	if got := artifactFileName("ref", &api.Job{ID: "abc", Title: "Week 3: Heat"}); got != "Week 3- Heat.pdf" {
		t.Fatalf("titled artifact = %q", got)
	}
	if got := artifactFileName("ref", &api.Job{ID: "ABC-1", Title: "???"}); got != "abc-1.pdf" {
		t.Fatalf("untitled artifact = %q", got)
	}
	if got := artifactFileName("Sha256:AB", nil); got != "sha256_ab" {
		t.Fatalf("blob file = %q", got)
	}
}
