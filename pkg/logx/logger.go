// Package logx provides the structured, leveled logger used throughout
// navcore. It wraps logrus so that call-sites can pass alternating
// key/value pairs the way the rest of the codebase expects, without every
// package needing to know which logging library sits behind the interface.
package logx

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a leveled, structured logger scoped to a named component.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a Logger at the given level ("debug", "info", "warn",
// "error", "trace") for the named component. An empty level defaults to
// "info"; an empty component omits the field.
func NewLogger(level, component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base.SetLevel(parseLevel(level))

	entry := logrus.NewEntry(base)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return &Logger{entry: entry}
}

// NewLoggerWithOutput is like NewLogger but writes to an arbitrary writer;
// used by tests that want to capture log output.
func NewLoggerWithOutput(level, component string, w io.Writer) *Logger {
	l := NewLogger(level, component)
	l.entry.Logger.SetOutput(w)
	return l
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// fields turns a flat "key1", val1, "key2", val2, ... varargs list (and,
// for backward compatibility with a couple of call sites, a single
// map[string]interface{}) into logrus.Fields.
func fields(kv []interface{}) logrus.Fields {
	if len(kv) == 1 {
		if m, ok := kv[0].(map[string]interface{}); ok {
			return logrus.Fields(m)
		}
	}

	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		f[key] = kv[i+1]
	}
	return f
}

// Debug logs at debug level with structured key/value fields.
func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Debug(msg)
}

// Info logs at info level with structured key/value fields.
func (l *Logger) Info(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Info(msg)
}

// Warn logs at warn level with structured key/value fields.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Warn(msg)
}

// Error logs at error level with structured key/value fields.
func (l *Logger) Error(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Error(msg)
}

// With returns a Logger with additional fields attached to every future
// call, used to scope a logger to a single device or request.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(fields(kv))}
}
