// Package storelog is the storage core's structured logging layer. The
// core never logs through the standard library logger directly; every
// package that needs to note an eviction, a catalog bootstrap step, or a
// split/merge decision takes a *storelog.Logger and calls through it.
package storelog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry scoped to one storage component.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger tagged with component, e.g. "bufferpool" or "btree".
func New(component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: base.WithField("component", component)}
}

// Nop returns a Logger that discards everything, for tests that don't care.
func Nop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.PanicLevel + 1)
	return &Logger{entry: logrus.NewEntry(base)}
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// With returns a child logger carrying an additional key/value field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}
