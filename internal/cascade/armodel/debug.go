package armodel

import "go.uber.org/zap"

var logger = zap.NewNop().Sugar()

// SetLogger routes armodel diagnostics to l. Pass nil to mute them.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l.Named("armodel")
}

// opsf logs conditions an operator should look at.
func opsf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// tracef logs per-level detail at debug level.
func tracef(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}
