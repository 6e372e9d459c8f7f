package common

import "io"

// Logger is the logging interface used across all lock-manager packages.
// It is intentionally small, so that callers embedding this library can plug in
// their own logging framework. A zerolog-backed implementation is provided by
// NewLogger, and NoopLogger can be used in tests.
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger

	// HttpLoggingHandler returns a writer for HTTP access logs, or nil if
	// access logging is disabled.
	HttpLoggingHandler() io.Writer
}
