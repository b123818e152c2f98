package tesseract

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"studyhub/internal/services"
)

type stubRunner struct {
	stdout []byte
	stderr []byte
	err    error
	name   string
	args   []string
	input  []byte
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.name = name
	s.args = args
	if len(args) > 0 {
		s.input, _ = os.ReadFile(args[0])
	}
	return s.stdout, s.stderr, s.err
}

func TestRecognizeRunsTesseract(t *testing.T) {
	runner := &stubRunner{stdout: []byte("F = ma\n\n\n|||||\nWork = F d\f")}
	engine := New(Config{Language: "eng", PSM: 6}, runner)

	text, err := engine.Recognize(context.Background(), []byte("png-bytes"), ".png", "")
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if text != "F = ma\n\nWork = F d" {
		t.Fatalf("unexpected text %q", text)
	}
	if runner.name != "tesseract" {
		t.Fatalf("unexpected binary %q", runner.name)
	}
	joined := strings.Join(runner.args[1:], " ")
	if joined != "stdout -l eng --psm 6" {
		t.Fatalf("unexpected args %q", joined)
	}
	if string(runner.input) != "png-bytes" {
		t.Fatalf("expected image written to temp file, got %q", runner.input)
	}
}

func TestRecognizeLanguageOverride(t *testing.T) {
	runner := &stubRunner{stdout: []byte("bonjour")}
	engine := New(Config{}, runner)
	if _, err := engine.Recognize(context.Background(), []byte("x"), "", "fra"); err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if runner.args[3] != "fra" {
		t.Fatalf("expected language override, got %v", runner.args)
	}
}

func TestRecognizeErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		runner *stubRunner
		image  []byte
		marker error
	}{
		{name: "missing binary", runner: &stubRunner{err: exec.ErrNotFound}, image: []byte("x"), marker: services.ErrAdapterUnavailable},
		{name: "exit failure", runner: &stubRunner{err: &exec.ExitError{}, stderr: []byte("Error in pixReadMem")}, image: []byte("x"), marker: services.ErrAdapterRejected},
		{name: "blank output", runner: &stubRunner{stdout: []byte("  \n ")}, image: []byte("x"), marker: services.ErrAdapterRejected},
		{name: "empty image", runner: &stubRunner{}, image: nil, marker: services.ErrAdapterRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := New(Config{}, tt.runner)
			_, err := engine.Recognize(context.Background(), tt.image, ".png", "")
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
		})
	}
}

func TestAvailableResolvesBinary(t *testing.T) {
	self, err := os.Executable()
	if err != nil {
		t.Skipf("no executable path: %v", err)
	}
	if err := New(Config{Binary: self}, nil).Available(); err != nil {
		t.Fatalf("expected %s to resolve: %v", self, err)
	}
	err = New(Config{Binary: "studyhub-no-such-tesseract"}, nil).Available()
	if err == nil || !strings.Contains(err.Error(), "studyhub-no-such-tesseract") {
		t.Fatalf("expected missing binary error, got %v", err)
	}
}
