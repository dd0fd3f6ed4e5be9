package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// csHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<session>\t<message>\t<key=value ...>
//
// Every record goes to w. Records at consoleLevel or above are also
// written to console, so per-item debug lines stay in the log file.
type csHandler struct {
	w            io.Writer
	console      io.Writer
	consoleLevel slog.Level
	session      string
	attrs        []slog.Attr
}

func (h *csHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *csHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\t%s\t%s\t%s", r.Time.UTC().Format("2006-01-02T15:04:05Z"), r.Level, h.session, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&b, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, "\t%s=%v", a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')

	line := b.String()
	if _, err := io.WriteString(h.w, line); err != nil {
		return err
	}
	if h.console != nil && r.Level >= h.consoleLevel {
		if _, err := io.WriteString(h.console, line); err != nil {
			return err
		}
	}
	return nil
}

func (h *csHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &csHandler{
		w:            h.w,
		console:      h.console,
		consoleLevel: h.consoleLevel,
		session:      h.session,
		attrs:        append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *csHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes everything to
// logDir/cs.log and info and above to stderr.
// It returns the slog.Logger, the open log file (for cleanup), and any error.
func newLogger(logDir string, session string) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "cs.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := &csHandler{w: f, console: os.Stderr, consoleLevel: slog.LevelInfo, session: session}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the cs.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
