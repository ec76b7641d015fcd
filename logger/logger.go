// Package logger - Structured logging shared by the benchmark packages.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. Setup replaces it.
var Log = New(os.Stderr, "info", "console")

// Logger wraps a zerolog logger with key-value helpers.
type Logger struct {
	z zerolog.Logger
}

// Setup configures the global logger to write to stderr.
//
// Arguments:
//   - level: debug, info, warn or error (case-insensitive, defaults to info).
//   - format: "json" for JSON lines, anything else for the console writer.
func Setup(level, format string) {
	Log = New(os.Stderr, level, format)
}

// New creates a logger writing to w.
func New(w io.Writer, level, format string) *Logger {
	if strings.ToLower(format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &Logger{z: z}
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child logger carrying the given key-value pairs on every event.
func (l *Logger) With(args ...interface{}) *Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(args); i += 2 {
		ctx = ctx.Interface(keyOf(args[i]), args[i+1])
	}
	return &Logger{z: ctx.Logger()}
}

// Debug logs at debug level with variadic key-value pairs.
func (l *Logger) Debug(msg string, args ...interface{}) {
	emit(l.z.Debug(), msg, args...)
}

// Info logs at info level with variadic key-value pairs.
func (l *Logger) Info(msg string, args ...interface{}) {
	emit(l.z.Info(), msg, args...)
}

// Warn logs at warn level with variadic key-value pairs.
func (l *Logger) Warn(msg string, args ...interface{}) {
	emit(l.z.Warn(), msg, args...)
}

// Error logs at error level with variadic key-value pairs.
func (l *Logger) Error(msg string, args ...interface{}) {
	emit(l.z.Error(), msg, args...)
}

func emit(e *zerolog.Event, msg string, args ...interface{}) {
	for i := 0; i+1 < len(args); i += 2 {
		if err, ok := args[i+1].(error); ok {
			e.AnErr(keyOf(args[i]), err)
			continue
		}
		e.Interface(keyOf(args[i]), args[i+1])
	}
	e.Msg(msg)
}

func keyOf(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", k)
}
