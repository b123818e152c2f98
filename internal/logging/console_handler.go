package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// levelStyles maps a minimum level to its label and ANSI color, highest first.
var levelStyles = []struct {
	min   slog.Level
	label string
	color string
}{
	{slog.LevelError, "ERROR", "\x1b[31m"},
	{slog.LevelWarn, "WARN", "\x1b[33m"},
	{slog.LevelInfo, "INFO", "\x1b[34m"},
	{slog.LevelDebug - 100, "DEBUG", "\x1b[90m"},
}

const (
	colorReset = "\x1b[0m"
	colorKey   = "\x1b[90m"
)

// syncWriter serializes whole lines from every handler derived from one root.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) writeLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, line)
	return err
}

// consoleHandler renders one line per record:
//
//	2024-01-02T15:04:05Z INFO component: message [file.go:12] key=value ...
//
// Attributes bound with WithAttrs are rendered once and reused.
type consoleHandler struct {
	out       *syncWriter
	level     slog.Leveler
	source    bool
	color     bool
	component string
	keyPrefix string
	bound     string
}

func newConsoleHandler(w io.Writer, level slog.Leveler, source, color bool) *consoleHandler {
	return &consoleHandler{out: &syncWriter{w: w}, level: level, source: source, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	component := h.component
	var fields strings.Builder
	fields.WriteString(h.bound)
	record.Attrs(func(attr slog.Attr) bool {
		if c, ok := h.componentOf(attr); ok {
			if component == "" {
				component = c
			}
			return true
		}
		h.writeAttr(&fields, h.keyPrefix, attr)
		return true
	})

	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var line strings.Builder
	line.WriteString(when.UTC().Format(time.RFC3339))
	line.WriteByte(' ')
	line.WriteString(h.label(record.Level))
	line.WriteByte(' ')
	if component != "" {
		line.WriteString(component + ": ")
	}
	line.WriteString(message)
	if h.source {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&line, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	line.WriteString(fields.String())
	line.WriteByte('\n')
	return h.out.writeLine(line.String())
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	var bound strings.Builder
	bound.WriteString(h.bound)
	for _, attr := range attrs {
		if c, ok := h.componentOf(attr); ok {
			next.component = c
			continue
		}
		h.writeAttr(&bound, h.keyPrefix, attr)
	}
	next.bound = bound.String()
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.keyPrefix = h.keyPrefix + name + "."
	return &next
}

// componentOf reports whether attr is the ungrouped component field.
func (h *consoleHandler) componentOf(attr slog.Attr) (string, bool) {
	if h.keyPrefix != "" || attr.Key != FieldComponent {
		return "", false
	}
	return attr.Value.Resolve().String(), true
}

func (h *consoleHandler) label(level slog.Level) string {
	for _, style := range levelStyles {
		if level < style.min {
			continue
		}
		if h.color {
			return style.color + style.label + colorReset
		}
		return style.label
	}
	return level.String()
}

func (h *consoleHandler) writeAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix += attr.Key + "."
		}
		for _, child := range value.Group() {
			h.writeAttr(b, prefix, child)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	b.WriteByte(' ')
	if h.color {
		b.WriteString(colorKey + prefix + attr.Key + "=" + colorReset)
	} else {
		b.WriteString(prefix + attr.Key + "=")
	}
	b.WriteString(renderValue(value))
}

func renderValue(v slog.Value) string {
	var text string
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration, slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindBool:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			text = err.Error()
		} else {
			text = fmt.Sprint(v.Any())
		}
	default:
		text = v.String()
	}
	if text == "" || strings.ContainsFunc(text, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(text)
	}
	return text
}
