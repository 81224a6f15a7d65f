package logger

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

const timeLayout = "2006-01-02 15:04:05.000"

// levelStyle is the label and ANSI colour of a level.
type levelStyle struct {
	label string
	color string
}

var (
	styleDebug = levelStyle{"DEBUG", "\033[90m"}
	styleInfo  = levelStyle{"INFO ", "\033[32m"}
	styleWarn  = levelStyle{"WARN ", "\033[33m"}
	styleError = levelStyle{"ERROR", "\033[31m"}
)

const (
	ansiReset = "\033[0m"
	ansiKey   = "\033[36m"
)

func styleFor(l slog.Level) levelStyle {
	switch {
	case l >= slog.LevelError:
		return styleError
	case l >= slog.LevelWarn:
		return styleWarn
	case l >= slog.LevelInfo:
		return styleInfo
	default:
		return styleDebug
	}
}

// textHandler writes one line per record:
//
//	2026-01-02 15:04:05.000 INFO  message key=value other="quoted value"
//
// Groups become dotted key prefixes.
type textHandler struct {
	opts     slog.HandlerOptions
	w        io.Writer
	mu       *sync.Mutex
	prefix   string // rendered WithAttrs fields
	group    string // dotted group prefix, with trailing dot
	useColor bool
}

func newTextHandler(w io.Writer, opts *slog.HandlerOptions, useColor bool) *textHandler {
	h := &textHandler{w: w, mu: &sync.Mutex{}, useColor: useColor}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *textHandler) Enabled(_ context.Context, l slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return l >= threshold
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	if !r.Time.IsZero() {
		b.WriteString(r.Time.Format(timeLayout))
		b.WriteByte(' ')
	}

	style := styleFor(r.Level)
	if h.useColor {
		b.WriteString(style.color + style.label + ansiReset)
	} else {
		b.WriteString(style.label)
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.prefix)

	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *textHandler) writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		sub := group
		if a.Key != "" {
			sub += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.writeAttr(b, sub, ga)
		}
		return
	}

	b.WriteByte(' ')
	if h.useColor {
		b.WriteString(ansiKey + group + a.Key + ansiReset)
	} else {
		b.WriteString(group + a.Key)
	}
	b.WriteByte('=')
	b.WriteString(renderValue(a.Value))
}

// renderValue quotes strings that would otherwise be ambiguous on the line.
func renderValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = v.String()
		}
	default:
		return v.String()
	}

	if s == "" || strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return unicode.IsSpace(r) || r == '"' || r == '=' || !unicode.IsPrint(r)
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		h.writeAttr(&b, h.group, a)
	}
	clone := *h
	clone.prefix = b.String()
	return &clone
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = h.group + name + "."
	return &clone
}
