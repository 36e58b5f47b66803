// Package logging provides structured logging for the hub. It mirrors the
// slog-backed logger the rest of the module expects, but every record is
// also handed to an optional Sink so the event bus can republish it on the
// LOG topic (see internal/eventbus) without logging becoming aware of the
// bus itself.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Level mirrors slog's severities using the vocabulary the rest of the hub
// uses (debug/info/warn/error), so call sites never import log/slog directly.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Record is a single structured log entry.
type Record struct {
	Timestamp time.Time
	Level     Level
	Subsystem string
	Message   string
	Err       error
}

// Sink receives every record logged through this package, in emission
// order. Registering a Sink never blocks a log call: implementations must
// not perform blocking work synchronously.
type Sink func(Record)

var (
	mu       sync.RWMutex
	logger   = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	minLevel = LevelInfo
	sink     Sink
)

// Configure sets the minimum level and output writer for the default
// logger. Call once at process startup.
func Configure(level Level, output *os.File) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = level
	logger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level.slogLevel()}))
}

// SetSink installs the function invoked for every record at or above the
// configured minimum level. Passing nil removes the sink.
func SetSink(s Sink) {
	mu.Lock()
	defer mu.Unlock()
	sink = s
}

func emit(level Level, subsystem string, err error, format string, args ...any) {
	mu.RLock()
	l, s, enabled := logger, sink, level >= minLevel
	mu.RUnlock()
	if !enabled {
		return
	}

	msg := fmt.Sprintf(format, args...)
	attrs := []any{"subsystem", subsystem}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	l.Log(context.Background(), level.slogLevel(), msg, attrs...)

	if s != nil {
		s(Record{
			Timestamp: time.Now(),
			Level:     level,
			Subsystem: subsystem,
			Message:   msg,
			Err:       err,
		})
	}
}

func Debug(subsystem, format string, args ...any) { emit(LevelDebug, subsystem, nil, format, args...) }
func Info(subsystem, format string, args ...any)  { emit(LevelInfo, subsystem, nil, format, args...) }
func Warn(subsystem, format string, args ...any)  { emit(LevelWarn, subsystem, nil, format, args...) }
func Error(subsystem string, err error, format string, args ...any) {
	emit(LevelError, subsystem, err, format, args...)
}
