// Package logging builds the structured logger shared by lifetrack
// components
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var pid = os.Getpid

// Options controls where and how much is logged.
type Options struct {
	Path       string
	Level      slog.Level
	MaxSize    int
	MaxBackups int
}

// New returns a JSON logger writing to a rotating file at opts.Path. The
// returned closer flushes and closes the file.
func New(opts Options) (*slog.Logger, io.Closer) {
	w := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
	}

	return NewWithWriter(w, opts.Level), w
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	return slog.New(h).With(slog.Int("pid", pid()))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
