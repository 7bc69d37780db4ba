// Package events writes the import's event log.
//
// Each event is one line of the form
//
//	[level][code] message
//
// with level "warning" or "error". Events are also mirrored into the
// structured slog logger so they appear alongside the rest of the run's
// diagnostics.
package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Level is the severity of an event.
type Level string

const (
	Warning Level = "warning"
	Error   Level = "error"
)

// Event codes.
const (
	CodeInvalidJSON         = "invalid-json"
	CodeSchemaViolation     = "schema-violation"
	CodeValidationException = "validation-exception"
	CodeClaimTimeout        = "claim-timeout"
	CodeImportFailed        = "import-failed"
	CodeReadFailed          = "read-failed"
)

// Event is a single logged occurrence.
type Event struct {
	Level   Level
	Code    string
	Message string
}

// String formats the event as a log line without the trailing newline.
func (e Event) String() string {
	return fmt.Sprintf("[%s][%s] %s", e.Level, e.Code, e.Message)
}

// Logger writes events to w and to slog.
//
// Thread-safety: Logger is safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	w      io.Writer
	slog   *slog.Logger
	counts map[Level]int
}

// New creates a Logger. A nil w discards lines; a nil logger uses slog.Default().
func New(w io.Writer, logger *slog.Logger) *Logger {
	if w == nil {
		w = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{w: w, slog: logger, counts: make(map[Level]int)}
}

// Warning logs a warning event.
func (l *Logger) Warning(code, format string, args ...any) {
	l.Log(Event{Level: Warning, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Error logs an error event.
func (l *Logger) Error(code, format string, args ...any) {
	l.Log(Event{Level: Error, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Log writes e.
func (l *Logger) Log(e Event) {
	l.mu.Lock()
	l.counts[e.Level]++
	fmt.Fprintln(l.w, e.String())
	l.mu.Unlock()

	level := slog.LevelWarn
	if e.Level == Error {
		level = slog.LevelError
	}
	l.slog.Log(context.Background(), level, e.Message, "code", e.Code)
}

// Counts returns how many events were logged per level.
func (l *Logger) Counts() map[Level]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[Level]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}
