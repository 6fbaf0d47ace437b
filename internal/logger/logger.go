// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// It wraps logrus behind package-level printf-style helpers and can silence
// all process output for the duration of a call.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// Global logger instance
	defaultLogger *logrus.Logger
)

// Init initializes the default logger with the specified level and format
func Init(level string, format string) {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	switch strings.ToLower(level) {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if strings.ToLower(format) == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	defaultLogger = l
}

// SetOutput redirects the default logger.
func SetOutput(w io.Writer) {
	if defaultLogger != nil {
		defaultLogger.SetOutput(w)
	}
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debugf(format, args...)
	}
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Infof(format, args...)
	}
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warnf(format, args...)
	}
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Errorf(format, args...)
	}
}

// Fatal logs a message at ErrorLevel and exits
func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Fatalf(format, args...)
	}
	log.Fatal(fmt.Sprintf(format, args...))
}

// Suppress runs fn with standard output, standard error and the default
// logger discarded, and restores all three on every exit path.
func Suppress(fn func() error) error {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}

	stdout, stderr := os.Stdout, os.Stderr
	var out io.Writer
	if defaultLogger != nil {
		out = defaultLogger.Out
		defaultLogger.SetOutput(io.Discard)
	}
	os.Stdout, os.Stderr = devNull, devNull

	defer func() {
		os.Stdout, os.Stderr = stdout, stderr
		if defaultLogger != nil {
			defaultLogger.SetOutput(out)
		}
		_ = devNull.Close()
	}()

	return fn()
}
