// Package core provides the ambient services the forwarding plane leans
// on: structured logging, layered configuration, and the wrapped-time
// clock used by the scheduler and the tables.
package core

import (
	"fmt"
	"log/slog"
	"os"
)

// Level mirrors the teacher daemon's log levels (std/log), spaced on the
// slog scale so TRACE can sit below slog's own Debug.
type Level int

const (
	LevelTrace Level = -8
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
	LevelFatal Level = 12
)

// Parses a log level name (as found in CCND_DEBUG-style config) into a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level: %s", s)
}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger wraps slog with the source-tagged call convention used throughout
// the forwarding plane: Log.Info(source, msg, "key", value, ...).
type Logger struct {
	level   Level
	handler *slog.Logger
}

var std = NewLogger(LevelInfo)

// Log is the package-wide logger instance, analogous to core.Log in the
// teacher daemon.
var Log = std

// Constructs a Logger writing to stderr at the given level.
func NewLogger(level Level) *Logger {
	// The handler accepts every level; Logger.log filters against l.level,
	// so SetLevel can lower the threshold as well as raise it.
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(LevelTrace),
	})
	return &Logger{level: level, handler: slog.New(h)}
}

// SetLevel adjusts the package-wide logger's minimum level, e.g. from CCND_DEBUG.
func SetLevel(level Level) { std.level = level }

// Level returns the logger's current minimum level.
func (l *Logger) Level() Level { return l.level }

func (l *Logger) log(level Level, source fmt.Stringer, msg string, kv ...any) {
	if level < l.level {
		return
	}
	args := make([]any, 0, len(kv)+2)
	args = append(args, "source", source.String())
	args = append(args, kv...)
	l.handler.Log(nil, slog.Level(level), msg, args...)
}

func (l *Logger) Trace(source fmt.Stringer, msg string, kv ...any) { l.log(LevelTrace, source, msg, kv...) }
func (l *Logger) Debug(source fmt.Stringer, msg string, kv ...any) { l.log(LevelDebug, source, msg, kv...) }
func (l *Logger) Info(source fmt.Stringer, msg string, kv ...any)  { l.log(LevelInfo, source, msg, kv...) }
func (l *Logger) Warn(source fmt.Stringer, msg string, kv ...any)  { l.log(LevelWarn, source, msg, kv...) }
func (l *Logger) Error(source fmt.Stringer, msg string, kv ...any) { l.log(LevelError, source, msg, kv...) }

// Fatal logs at FATAL and terminates the process, matching core.Log.Fatal
// in the teacher daemon (used only for unrecoverable startup errors, never
// from the forwarding plane itself per spec.md §7).
func (l *Logger) Fatal(source fmt.Stringer, msg string, kv ...any) {
	l.log(LevelFatal, source, msg, kv...)
	os.Exit(1)
}
