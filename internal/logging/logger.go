package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Output formats. FormatAuto picks text on a terminal and JSON otherwise.
const (
	FormatAuto = "auto"
	FormatJSON = "json"
	FormatText = "text"
)

// Options configures New.
type Options struct {
	Level      string
	Format     string
	File       string // empty logs to stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger is the process logger together with the file it writes to, if any.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a Logger. With a File set, output goes through a lumberjack
// rotating writer and Close must be called on shutdown.
func New(opts Options) (*Logger, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer
		isTTY  = term.IsTerminal(int(os.Stderr.Fd()))
	)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		w, closer, isTTY = lj, lj, false
	}

	return &Logger{
		Logger: slog.New(newHandler(w, opts.Format, isTTY, ParseLevel(opts.Level))),
		closer: closer,
	}, nil
}

func newHandler(w io.Writer, format string, isTTY bool, level slog.Level) slog.Handler {
	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case FormatText:
		return slog.NewTextHandler(w, hopts)
	case FormatJSON:
		return slog.NewJSONHandler(w, hopts)
	}
	if isTTY {
		return slog.NewTextHandler(w, hopts)
	}
	return slog.NewJSONHandler(w, hopts)
}

// ParseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close closes the log file. It is a no-op when logging to stderr.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
