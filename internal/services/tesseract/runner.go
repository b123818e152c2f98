package tesseract

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"studyhub/internal/logging"
)

// Runner lets tests stub the external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec and logs their outcome.
type ExecRunner struct {
	Logger *slog.Logger
}

// Run executes name with args.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	start := time.Now()
	logger.Debug("running command", logging.String("cmd_line", strings.Join(append([]string{name}, args...), " ")))

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		logger.Warn("command failed",
			logging.String("cmd", name),
			logging.Duration("duration", time.Since(start)),
			logging.Error(err),
			logging.String("stderr", truncate(errb.String(), 8<<10)),
		)
	} else {
		logger.Debug("command finished",
			logging.String("cmd", name),
			logging.Duration("duration", time.Since(start)),
			logging.Int("stdout_bytes", out.Len()),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
