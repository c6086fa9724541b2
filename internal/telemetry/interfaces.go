package telemetry

import (
	"github.com/sirupsen/logrus"
)

// Logger exposes the logging capabilities required by server components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogrus adapts a logrus logger to the Logger interface.
func WrapLogrus(logger *logrus.Logger) Logger {
	return &logrusAdapter{logger: logger}
}

type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Infof(format, args...)
}

// Metrics exposes the telemetry methods required by server components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}
