// Package logging builds the shared logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logger writing to stdout and, when logPath is non-empty,
// appending to the given file as well. The app tag is attached to every record.
func New(app, logPath, level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Warnf("Cannot open log file %s: %v", logPath, err)
		} else {
			logger.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}

	return logger.WithField("app", app)
}
