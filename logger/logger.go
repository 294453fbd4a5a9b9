package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Logger takes in a message and tag pairs.
type Logger interface {
	Debug(msg string, tags ...interface{})
	Info(msg string, tags ...interface{})
	Warn(msg string, tags ...interface{})
	Error(msg string, tags ...interface{})
}

// Level is the minimum severity a logger writes.
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
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

type logger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

// New creates a logger that writes entries of at least level to w.
func New(w io.Writer, level Level) Logger { return &logger{out: w, level: level} }

// NewStdout creates a logger that writes info and above to stdout.
func NewStdout() Logger { return New(os.Stdout, LevelInfo) }

// print writes one line: the level, the message, then key=value pairs.
func (l *logger) print(level Level, msg string, tags ...interface{}) {
	if level < l.level {
		return
	}
	var b strings.Builder
	b.WriteString(level.String())
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i < len(tags); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(tags) {
			fmt.Fprintf(&b, "%v=%v", tags[i], tags[i+1])
		} else {
			fmt.Fprintf(&b, "%v", tags[i])
		}
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.out, b.String())
}

// Debug creates a debug log entry.
func (l *logger) Debug(msg string, tags ...interface{}) { l.print(LevelDebug, msg, tags...) }

// Info creates an info log entry.
func (l *logger) Info(msg string, tags ...interface{}) { l.print(LevelInfo, msg, tags...) }

// Warn creates a warn log entry.
func (l *logger) Warn(msg string, tags ...interface{}) { l.print(LevelWarn, msg, tags...) }

// Error creates an error log entry.
func (l *logger) Error(msg string, tags ...interface{}) { l.print(LevelError, msg, tags...) }

type nop struct{}

// Nop returns a logger that discards everything.
func Nop() Logger { return nop{} }

func (nop) Debug(string, ...interface{}) {}
func (nop) Info(string, ...interface{})  {}
func (nop) Warn(string, ...interface{})  {}
func (nop) Error(string, ...interface{}) {}
