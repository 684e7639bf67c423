// Package logging provides the bracket-tagged log lines used across pdfdesk.
//
// Callers write lines such as
//
//	logging.Logf("[MERGE] merged %d files", n)
//
// and the package routes them through a log/slog handler so that the output
// can be switched between plain text and JSON with LOG_FORMAT.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stdout, "text", "info")
)

// Setup replaces the package logger. format is "text" or "json", level is one
// of debug, info, warn, error.
func Setup(w io.Writer, format, level string) {
	l := newLogger(w, format, level)
	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// Logger returns the current slog logger for callers that want structured
// attributes instead of a formatted line.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Logf logs an informational line.
func Logf(format string, v ...interface{}) {
	emit(slog.LevelInfo, format, v...)
}

// Warnf logs a warning line.
func Warnf(format string, v ...interface{}) {
	emit(slog.LevelWarn, format, v...)
}

// Errorf logs an error line. It does not return an error.
func Errorf(format string, v ...interface{}) {
	emit(slog.LevelError, format, v...)
}

// Debugf logs a debug line.
func Debugf(format string, v ...interface{}) {
	emit(slog.LevelDebug, format, v...)
}

func emit(level slog.Level, format string, v ...interface{}) {
	l := Logger()
	if !l.Enabled(context.Background(), level) {
		return
	}
	msg := fmt.Sprintf(format, v...)
	tag, rest := splitTag(msg)
	if tag == "" {
		l.Log(context.Background(), level, msg)
		return
	}
	l.Log(context.Background(), level, rest, "component", tag)
}

// splitTag pulls a leading "[TAG]" off msg.
func splitTag(msg string) (string, string) {
	if !strings.HasPrefix(msg, "[") {
		return "", msg
	}
	end := strings.Index(msg, "]")
	if end <= 1 {
		return "", msg
	}
	return msg[1:end], strings.TrimSpace(msg[end+1:])
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", "pdfdesk")
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
