package common

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type zerologLogger struct {
	logger     zerolog.Logger
	accessLogs bool
}

// NewLogger returns a zerolog-backed Logger writing JSON lines to out.
// Level is one of "debug", "info", "warn" or "error"; unknown values fall back
// to "info". When accessLogs is true, HttpLoggingHandler returns a writer that
// emits HTTP access logs at debug level.
func NewLogger(out io.Writer, level string, accessLogs bool) Logger {
	if out == nil {
		out = os.Stderr
	}

	logLevel := zerolog.InfoLevel

	switch strings.ToLower(level) {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn", "warning":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	}

	logger := zerolog.New(out).Level(logLevel).With().Timestamp().Logger()

	return &zerologLogger{logger: logger, accessLogs: accessLogs}
}

func (l *zerologLogger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *zerologLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *zerologLogger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *zerologLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l *zerologLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *zerologLogger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

func (l *zerologLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

//nolint:ireturn // implementations of Logger return the interface
func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return &zerologLogger{
		logger:     l.logger.With().Interface(key, value).Logger(),
		accessLogs: l.accessLogs,
	}
}

//nolint:ireturn // implementations of Logger return the interface
func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	logCtx := l.logger.With()

	for key, value := range fields {
		logCtx = logCtx.Interface(key, value)
	}

	return &zerologLogger{logger: logCtx.Logger(), accessLogs: l.accessLogs}
}

func (l *zerologLogger) HttpLoggingHandler() io.Writer {
	if !l.accessLogs {
		return nil
	}

	return &accessLogWriter{logger: l.logger}
}

type accessLogWriter struct {
	logger zerolog.Logger
}

func (w *accessLogWriter) Write(p []byte) (int, error) {
	w.logger.Debug().Msg(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
