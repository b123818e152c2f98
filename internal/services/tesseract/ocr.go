package tesseract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"studyhub/internal/services"
)

const (
	defaultBinary   = "tesseract"
	defaultLanguage = "eng"
)

var boxNoise = regexp.MustCompile(`[|_]{3,}`)

// Config selects the tesseract binary and recognition settings.
type Config struct {
	Binary      string
	Language    string
	TessdataDir string
	PSM         int
}

// Engine extracts text from images by shelling out to tesseract.
type Engine struct {
	cfg    Config
	runner Runner
}

// New constructs an Engine. A nil runner uses ExecRunner.
func New(cfg Config, runner Runner) *Engine {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = defaultBinary
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = defaultLanguage
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Engine{cfg: cfg, runner: runner}
}

// Available reports whether the configured binary resolves on PATH.
func (e *Engine) Available() error {
	if _, err := exec.LookPath(e.cfg.Binary); err != nil {
		return fmt.Errorf("%s not found: %w", e.cfg.Binary, err)
	}
	return nil
}

// Recognize runs OCR over the encoded image and returns normalized text.
// language overrides the configured language when non-empty.
func (e *Engine) Recognize(ctx context.Context, image []byte, ext, language string) (string, error) {
	if len(image) == 0 {
		return "", services.Wrap(services.ErrAdapterRejected, "ocr", "prepare", "empty image", nil)
	}
	dir, err := os.MkdirTemp("", "studyhub-ocr-")
	if err != nil {
		return "", services.Wrap(services.ErrAdapterUnavailable, "ocr", "prepare", "create temp dir", err)
	}
	defer os.RemoveAll(dir)

	if ext == "" {
		ext = ".png"
	}
	input := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(input, image, 0o600); err != nil {
		return "", services.Wrap(services.ErrAdapterUnavailable, "ocr", "prepare", "write temp image", err)
	}

	lang := strings.TrimSpace(language)
	if lang == "" {
		lang = e.cfg.Language
	}
	args := []string{input, "stdout", "-l", lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, stderr, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", services.Wrap(services.ErrAdapterUnavailable, "ocr", "run", e.cfg.Binary+" not installed", err)
		}
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrAdapterUnavailable, "ocr", "run", "interrupted", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", services.Wrap(services.ErrAdapterRejected, "ocr", "run", strings.TrimSpace(string(stderr)), err)
		}
		return "", services.Wrap(services.ErrAdapterUnavailable, "ocr", "run", "", err)
	}

	text := Normalize(string(out))
	if text == "" {
		return "", services.Wrap(services.ErrAdapterRejected, "ocr", "run", "no text recognized", nil)
	}
	return text, nil
}

// Normalize trims line noise and collapses runs of blank lines.
func Normalize(text string) string {
	text = boxNoise.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\f", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
