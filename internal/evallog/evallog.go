// Package evallog is a thin wrapper around the standard log package:
// no structured-logging framework, just prefixed log.Printf calls.
package evallog

import (
	"log"
	"os"
)

// Logger prefixes every line with a pipeline stage name, e.g. "[scoring]".
type Logger struct {
	stage string
	std   *log.Logger
}

func New(stage string) *Logger {
	return &Logger{stage: stage, std: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *Logger) Printf(format string, args ...any) {
	l.std.Printf("["+l.stage+"] "+format, args...)
}

func (l *Logger) Println(args ...any) {
	l.std.Println(append([]any{"[" + l.stage + "]"}, args...)...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.Printf("warning: "+format, args...)
}
