package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// ColorTextHandler is a slog.Handler that writes single-line human-readable
// records, colorized when the destination is a terminal.
type ColorTextHandler struct {
	w        io.Writer
	opts     *slog.HandlerOptions
	mu       *sync.Mutex // shared across WithAttrs/WithGroup clones
	attrs    []slog.Attr
	groups   []string
	useColor bool
}

// NewColorTextHandler returns a handler writing to w. A nil opts selects
// slog's defaults.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, useColor bool) *ColorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}

	return &ColorTextHandler{
		w:        w,
		opts:     opts,
		mu:       new(sync.Mutex),
		useColor: useColor,
	}
}

// Enabled reports whether records at the given level are emitted.
func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

// Handle formats and writes a log record.
// The line is assembled in a local buffer; the lock covers only the write.
func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(h.formatLevel(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)

	for _, attr := range h.attrs {
		h.writeAttr(&b, attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	_, err := io.WriteString(h.w, b.String())
	h.mu.Unlock()
	return err
}

// formatLevel returns the level name with optional color
func (h *ColorTextHandler) formatLevel(level slog.Level) string {
	name, color := "ERROR", ansiRed
	switch {
	case level < slog.LevelInfo:
		name, color = "DEBUG", ansiGray
	case level < slog.LevelWarn:
		name, color = "INFO", ansiGreen
	case level < slog.LevelError:
		name, color = "WARN", ansiYellow
	}

	if !h.useColor {
		return name
	}
	return color + name + ansiReset
}

// writeAttr appends one " key=value" pair to the line
func (h *ColorTextHandler) writeAttr(b *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()

	b.WriteByte(' ')
	if h.useColor {
		b.WriteString(ansiCyan)
		b.WriteString(a.Key)
		b.WriteString(ansiReset)
	} else {
		b.WriteString(a.Key)
	}
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

// formatValue renders a slog.Value without quoting.
func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}

func (h *ColorTextHandler) clone() *ColorTextHandler {
	return &ColorTextHandler{
		w:        h.w,
		opts:     h.opts,
		mu:       h.mu,
		attrs:    append([]slog.Attr{}, h.attrs...),
		groups:   append([]string{}, h.groups...),
		useColor: h.useColor,
	}
}

// WithAttrs returns a handler that prefixes every record with attrs.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := h.clone()
	cp.attrs = append(cp.attrs, attrs...)
	return cp
}

// WithGroup returns a handler scoped to the named group.
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := h.clone()
	cp.groups = append(cp.groups, name)
	return cp
}
