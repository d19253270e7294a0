// Package logging provides the scaler's minimal progress-reporting
// wrapper: an io.Writer sink with leveled prefixes, using fmt.Fprintf
// against an injected writer rather than an external logging library.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Logger writes timestamped, leveled lines to an injected io.Writer.
type Logger struct {
	w io.Writer
}

// New creates a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Default returns a Logger writing to os.Stderr, the destination used for
// anything that isn't primary command output.
func Default() *Logger {
	return New(os.Stderr)
}

func (l *Logger) logf(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(l.w, "%s %s %s\n", time.Now().UTC().Format(time.RFC3339), level, msg)
}

// Infof logs a routine progress line.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf("INFO", format, args...)
}

// Warnf logs a recoverable problem: a bad tick, a dropped job, a retry.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf("WARN", format, args...)
}

// Errorf logs a problem the caller could not recover from on its own.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf("ERROR", format, args...)
}
