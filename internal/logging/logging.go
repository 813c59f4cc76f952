// Package logging builds the structured logger shared by the commands.
// Records go to stderr as text, or to a rotating JSON file when a log
// directory is configured.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps slog.Logger with the file it writes to, if any.
type Logger struct {
	*slog.Logger

	// LogFile is the rotating log file path; empty when logging to stderr
	LogFile string
	Start   time.Time

	handler slog.Handler
	closer  io.Closer
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger for the command named app. With an empty dir the
// logger writes text to stderr; otherwise JSON to dir/app.slog, rotated
// at 64 MB and kept for 14 days.
func New(app, level, dir string) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	l := &Logger{Start: time.Now()}
	if dir == "" {
		l.handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		w := &lumberjack.Logger{
			Filename: filepath.Join(dir, app+".slog"),
			MaxSize:  64, // MB
			MaxAge:   14,
			Compress: true,
		}
		l.handler = slog.NewJSONHandler(w, opts)
		l.LogFile = w.Filename
		l.closer = w
	}
	l.Logger = slog.New(l.handler)

	l.Info("Hello logging",
		slog.String("app", app),
		slog.Time("start", l.Start),
		slog.String("GOOS", runtime.GOOS),
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("go", runtime.Version()))
	return l
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	h := slog.NewTextHandler(io.Discard, nil)
	return &Logger{Logger: slog.New(h), Start: time.Now(), handler: h}
}

// StdLogger returns a standard library logger writing into the same sink
// at the given level, for packages that only take a *log.Logger.
func (l *Logger) StdLogger(level slog.Level) *log.Logger {
	return slog.NewLogLogger(l.handler, level)
}

// Close flushes and closes the log file, if there is one.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
