package logger

import (
	"io"
	"os"
	"path/filepath"

	"handyhub-admin-console/src/internal/config"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger from the logs section. A bad
// level falls back to info; an unwritable log file falls back to stdout.
func Init(cfg *config.Configuration) {
	configure(logrus.StandardLogger(), cfg.Logs)

	if cfg.Guard.Debug && logrus.GetLevel() < logrus.DebugLevel {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func configure(l *logrus.Logger, settings config.LogsSettings) {
	level, err := logrus.ParseLevel(settings.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if settings.EnableJSONOutput {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(output(settings.Path))
}

func output(path string) io.Writer {
	if path == "" {
		return os.Stdout
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Cannot create log directory, logging to stdout")
		return os.Stdout
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Cannot open log file, logging to stdout")
		return os.Stdout
	}

	return io.MultiWriter(os.Stdout, file)
}
