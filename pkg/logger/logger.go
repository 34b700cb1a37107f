package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the optional rotated log file.
// An empty Path disables file output.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New creates a configured zerolog.Logger.
// level: debug, info, warn, error. pretty: human-readable console output.
func New(level string, pretty bool) zerolog.Logger {
	return NewWithFile(level, pretty, FileOptions{})
}

// NewWithFile is like New but also writes JSON lines to a rotated file when file.Path is set.
func NewWithFile(level string, pretty bool, file FileOptions) zerolog.Logger {
	var w io.Writer = os.Stdout

	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	if file.Path != "" {
		w = zerolog.MultiLevelWriter(w, newFileWriter(file))
	}

	lvl := parseLevel(level)

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Logger()
}

// NewWithWriter creates a logger writing to a custom writer (useful for testing).
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	lvl := parseLevel(level)
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func newFileWriter(opts FileOptions) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    positiveOr(opts.MaxSizeMB, 100),
		MaxBackups: positiveOr(opts.MaxBackups, 7),
		MaxAge:     positiveOr(opts.MaxAgeDays, 30),
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
