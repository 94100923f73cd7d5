// Package logging configures structured logging for pacc.
//
// All components log through log/slog. The CLI installs a TTY-aware text
// handler by default and a JSON handler for structured consumers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// Format selects the log output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config controls logger construction. A nil Output falls back to
// os.Stderr; an unknown Format falls back to text.
type Config struct {
	Level  slog.Level
	Format Format
	Output io.Writer
}

// New creates a logger from cfg.
func New(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(NewHandler(output, opts))
}

// Default returns the standard CLI logger: Info level, text, stderr.
func Default() *slog.Logger {
	return New(Config{Level: slog.LevelInfo})
}

// NewDiscard returns a logger that drops everything. Used for quiet mode
// and as the fallback when a component receives a nil logger.
func NewDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ForTest returns a debug-level logger writing through the test's log,
// visible on failure or with -v.
func ForTest(t *testing.T) *slog.Logger {
	t.Helper()
	return New(Config{
		Level:  slog.LevelDebug,
		Output: testWriter{t},
	})
}

// testWriter routes handler output to t.Log, trimming the newline t.Log
// adds itself.
type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
