// Package logging defines the node-wide Logger interface and the default
// logrus-backed implementation. The interface shape is carried over from
// the teacher's definition.Logger so every component can be handed a
// capturing fake in tests without touching call sites.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logging surface every component receives.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// WithField returns a derived logger carrying one structured field,
	// used to stamp peer_id / message_id / node_id onto a subtree of logs.
	WithField(key string, value interface{}) Logger
}

// Config mirrors spec §6's logging.{level,format,output} surface.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|pretty
	Output string // stdout|stderr|path
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New builds the default Logger from a Config, defaulting to info/pretty/stdout.
func New(cfg Config) Logger {
	lg := logrus.New()

	switch strings.ToLower(cfg.Format) {
	case "json":
		lg.SetFormatter(&logrus.JSONFormatter{})
	default:
		lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	lg.SetLevel(level)

	lg.SetOutput(resolveOutput(cfg.Output))

	return &logrusLogger{entry: logrus.NewEntry(lg)}
}

func resolveOutput(output string) io.Writer {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stdout
		}
		return f
	}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

// Discard is a Logger that drops everything, useful for quiet unit tests.
func Discard() Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return &logrusLogger{entry: logrus.NewEntry(lg)}
}
