package logging

import (
	"fmt"
	"io"
	"os"
)

// EarlyLog prints to stderr/stdout before the zap logger is configured.
type EarlyLog struct {
	prefix string
	out    io.Writer
	errOut io.Writer
}

func NewEarlyLog(service string) *EarlyLog {
	return &EarlyLog{prefix: service, out: os.Stdout, errOut: os.Stderr}
}

func (l *EarlyLog) Fatal(msg string, args ...interface{}) {
	l.write(l.errOut, "FATAL", msg, args...)
	os.Exit(1)
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.write(l.errOut, "ERROR", msg, args...)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.write(l.errOut, "WARN", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.write(l.out, "INFO", msg, args...)
}

func (l *EarlyLog) write(w io.Writer, level, msg string, args ...interface{}) {
	if l.prefix != "" {
		fmt.Fprintf(w, "%s [%s] %s\n", level, l.prefix, fmt.Sprintf(msg, args...))
		return
	}
	fmt.Fprintf(w, "%s: %s\n", level, fmt.Sprintf(msg, args...))
}
