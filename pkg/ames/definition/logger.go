// Package definition holds the small collaborator interfaces and default
// implementations the transport depends on but does not own: logging and
// metrics.
package definition

import (
	"github.com/sirupsen/logrus"
)

// Logger is the logging surface the transport calls into, kept as a small
// interface so a caller can swap in any backend without touching call sites.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	Panic(v ...interface{})
	Panicf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}

// DefaultLogger is the logrus-backed logger used when a host does not
// supply its own.
type DefaultLogger struct {
	entry *logrus.Logger
}

func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: l}
}

func (l *DefaultLogger) Info(v ...interface{})                    { l.entry.Info(v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})    { l.entry.Infof(format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                    { l.entry.Warn(v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})    { l.entry.Warnf(format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                   { l.entry.Error(v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{})   { l.entry.Errorf(format, v...) }
func (l *DefaultLogger) Debug(v ...interface{})                   { l.entry.Debug(v...) }
func (l *DefaultLogger) Debugf(format string, v ...interface{})   { l.entry.Debugf(format, v...) }
func (l *DefaultLogger) Fatal(v ...interface{})                   { l.entry.Fatal(v...) }
func (l *DefaultLogger) Fatalf(format string, v ...interface{})   { l.entry.Fatalf(format, v...) }
func (l *DefaultLogger) Panic(v ...interface{})                   { l.entry.Panic(v...) }
func (l *DefaultLogger) Panicf(format string, v ...interface{})   { l.entry.Panicf(format, v...) }

// ToggleDebug flips the logger between info and debug verbosity, matching
// the "spew" task's per-ship/per-flow verbosity toggles at the logger
// level.
func (l *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		l.entry.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.SetLevel(logrus.InfoLevel)
	}
	return value
}
