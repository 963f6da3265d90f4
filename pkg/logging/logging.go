// Package logging wraps the standard library's log.Logger with a
// component-name prefix and leveled helpers, the informal
// "[Component] message" convention (log.New(log.Writer(), "[Name] ",
// log.LstdFlags)). It adds nothing beyond that: no structured
// logging library, no levels enforced by a hierarchy, just a thin
// label.
package logging

import (
	"io"
	"log"
)

// Logger is a component-tagged wrapper around *log.Logger.
type Logger struct {
	*log.Logger
}

// New builds a Logger for component, writing to log.Writer() (the
// process-wide default) with the standard date/time flags, matching
// log.New(log.Writer(), "[Component] ", log.LstdFlags).
func New(component string) *Logger {
	return &Logger{Logger: log.New(log.Writer(), "["+component+"] ", log.LstdFlags)}
}

// NewWithOutput builds a Logger for component writing to w, for tests
// and callers that want to capture output.
func NewWithOutput(w io.Writer, component string) *Logger {
	return &Logger{Logger: log.New(w, "["+component+"] ", log.LstdFlags)}
}

// Info logs at informational level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.Printf("INFO "+format, args...)
}

// Warn logs at warning level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.Printf("WARN "+format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.Printf("ERROR "+format, args...)
}
