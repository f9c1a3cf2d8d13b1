package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// SetLoggerToStructured switches the standard logger to JSON on stderr,
// tee'd into filePath when one is given. The returned func closes the file.
func SetLoggerToStructured(level logrus.Level, filePath string) func() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(level)

	if filePath == "" {
		logrus.SetOutput(os.Stderr)
		return func() {}
	}

	_ = os.MkdirAll(filepath.Dir(filePath), 0o755)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logrus.SetOutput(os.Stderr)
		logrus.WithError(err).Error("Could not create file for logging")
		return func() {}
	}

	logrus.SetOutput(io.MultiWriter(os.Stderr, file))
	return func() {
		logrus.SetOutput(os.Stderr)
		_ = file.Close()
	}
}
