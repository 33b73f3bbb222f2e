package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Level describes severity of log message.
type Level = logrus.Level

// ParseLevel converts string to Level, falling back to info.
func ParseLevel(v string) Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(v)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Logger is a thin levelled wrapper around a logrus entry.
type Logger struct {
	entry *logrus.Entry
}

// New creates a logger from configuration. An empty path logs to stdout,
// otherwise the file is rotated by lumberjack.
func New(cfg config.LoggingConfig) (*Logger, error) {
	var output io.Writer = os.Stdout
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		output = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
	return NewWithWriter(output, ParseLevel(cfg.Level), cfg.Format), nil
}

// NewWithWriter creates a logger writing to w in the given format ("text" or "json").
func NewWithWriter(w io.Writer, level Level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true})
	}
	return &Logger{entry: logrus.NewEntry(l).WithField("app", "devconf")}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, logrus.PanicLevel, "text")
}

// With returns a child logger carrying an extra field.
func (l *Logger) With(key string, value interface{}) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Infof logs informational messages.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.Infof(format, args...)
}

// Debugf logs verbose diagnostic messages.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.Debugf(format, args...)
}

// Warnf logs recoverable problems such as dropped input lines or unreachable devices.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.Warnf(format, args...)
}

// Errorf logs errors.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.Errorf(format, args...)
}

// Printf keeps compatibility with standard log API.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.Infof(format, args...)
}
