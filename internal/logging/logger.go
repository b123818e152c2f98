package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"studyhub/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string // "console" (default) or "json"
	OutputPaths []string
	Development bool
	// Color forces ANSI level colors on the console handler. When nil, color
	// is enabled only if every output is a terminal.
	Color *bool
}

// New builds a slog logger. Output paths may name files or the special
// values "stdout" and "stderr"; an empty list means stdout.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	source := opts.Development || level.Level() <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != "" && format != "console" && format != "json" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	out, err := openSinks(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(out.writer(), &slog.HandlerOptions{
			Level:       level,
			AddSource:   source,
			ReplaceAttr: jsonAttr,
		})), nil
	}
	color := out.allTerminals
	if opts.Color != nil {
		color = *opts.Color
	}
	return slog.New(newConsoleHandler(out.writer(), level, source, color)), nil
}

// NewFromConfig logs to stdout and, when a log directory is configured, to
// <log_dir>/studyhubd.log as well.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}
	paths := []string{"stdout"}
	if dir := cfg.Paths.LogDir; dir != "" {
		paths = append(paths, filepath.Join(dir, "studyhubd.log"))
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPaths: paths})
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	switch value := strings.ToLower(strings.TrimSpace(level)); value {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	default:
		if err := parsed.UnmarshalText([]byte(value)); err != nil {
			return slog.LevelInfo
		}
		return parsed
	}
}

type sinks struct {
	writers      []io.Writer
	allTerminals bool
}

func (s sinks) writer() io.Writer {
	if len(s.writers) == 1 {
		return s.writers[0]
	}
	return io.MultiWriter(s.writers...)
}

func openSinks(paths []string) (sinks, error) {
	out := sinks{allTerminals: true}
	var seen []string
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" || slices.Contains(seen, path) {
			continue
		}
		seen = append(seen, path)

		var f *os.File
		switch path {
		case "stdout":
			f = os.Stdout
		case "stderr":
			f = os.Stderr
		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return out, fmt.Errorf("create log dir for %s: %w", path, err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return out, fmt.Errorf("open log file %s: %w", path, err)
			}
			f = file
		}
		out.writers = append(out.writers, f)
		out.allTerminals = out.allTerminals && isTerminal(f)
	}
	if len(out.writers) == 0 {
		out.writers = []io.Writer{os.Stdout}
		out.allTerminals = isTerminal(os.Stdout)
	}
	return out, nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// jsonAttr renames time to "ts" in RFC 3339 UTC, lowercases the level and
// trims source locations to file:line.
func jsonAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339))
		}
		attr.Key = "ts"
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}
