package client

// Logger is the logging contract this client needs. It is a subset of the
// common.Logger interface, so any lock-manager logger satisfies it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// restyLogger adapts Logger to resty's logging interface. Resty logs retried
// attempts at warn and error level; those are demoted to debug here, because
// the client surfaces a typed error once the retry budget is spent and the
// caller decides what is error-worthy.
type restyLogger struct {
	logger Logger
}

func (l *restyLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *restyLogger) Warnf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *restyLogger) Errorf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}
