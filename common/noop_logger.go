package common

import "io"

// NoopLogger is a Logger that discards everything. It is used in tests and as
// a fallback when no logger is provided.
type NoopLogger struct{}

func (l *NoopLogger) Debug(_ string)                    {}
func (l *NoopLogger) Debugf(_ string, _ ...interface{}) {}
func (l *NoopLogger) Info(_ string)                     {}
func (l *NoopLogger) Infof(_ string, _ ...interface{})  {}
func (l *NoopLogger) Warnf(_ string, _ ...interface{})  {}
func (l *NoopLogger) Error(_ string)                    {}
func (l *NoopLogger) Errorf(_ string, _ ...interface{}) {}

//nolint:ireturn // implementations of Logger return the interface
func (l *NoopLogger) WithField(_ string, _ interface{}) Logger {
	return l
}

//nolint:ireturn // implementations of Logger return the interface
func (l *NoopLogger) WithFields(_ map[string]interface{}) Logger {
	return l
}

func (l *NoopLogger) HttpLoggingHandler() io.Writer {
	return nil
}
