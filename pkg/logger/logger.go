// Package logger provides structured logging configuration for the OAuth2
// service with support for different log levels, formats, and output
// destinations, including simultaneous console and file output.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// FieldCorrelationID is the log field carrying the per-request correlation ID.
const FieldCorrelationID = "correlation_id"

// New creates a new configured logrus logger instance with the specified
// log level, format, and output destination.
func New(level, format, output string) *logrus.Logger {
	logger := logrus.New()

	logger.SetLevel(parseLevel(level))
	logger.SetFormatter(newFormatter(format))

	switch strings.ToLower(output) {
	case "stdout", "":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := openLogFile(output)
		if err != nil {
			logger.SetOutput(os.Stdout)
			logger.WithError(err).Warn("Failed to open log file, using stdout")
		} else {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		}
	}

	return logger
}

// NewWithConfig creates a logger from the logging configuration. When dual
// output is enabled and a file path is configured, log lines go to both the
// console (ConsoleFormat) and the file; the file wins the formatter choice
// since a single logrus instance has one formatter, and machine-readable
// JSON in the aggregated file matters more than pretty console output.
func NewWithConfig(cfg *config.LoggingConfig) *logrus.Logger {
	if !cfg.EnableDualOutput || cfg.FilePath == "" {
		return New(cfg.Level, cfg.Format, cfg.Output)
	}

	logger := logrus.New()
	logger.SetLevel(parseLevel(cfg.Level))
	logger.SetFormatter(newFormatter(cfg.FileFormat))

	file, err := openLogFile(cfg.FilePath)
	if err != nil {
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(newFormatter(cfg.ConsoleFormat))
		logger.WithError(err).Warn("Failed to open log file for dual output, using stdout only")
		return logger
	}

	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return logger
}

// WithCorrelationID returns a log entry tagged with the request's
// correlation ID so all lines from one request can be tied together.
func WithCorrelationID(logger *logrus.Logger, correlationID string) *logrus.Entry {
	return logger.WithField(FieldCorrelationID, correlationID)
}

func parseLevel(level string) logrus.Level {
	logLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return logLevel
}

func newFormatter(format string) logrus.Formatter {
	switch strings.ToLower(format) {
	case "text":
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		}
	default:
		// Default to JSON for structured logging
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		}
	}
}

// openLogFile validates and opens the log file path, rejecting paths that
// escape the working directory via "..".
func openLogFile(path string) (*os.File, error) {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return nil, os.ErrPermission
	}

	// #nosec G304 -- Path is validated and cleaned above to prevent traversal attacks
	return os.OpenFile(cleanPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}
