package flow

import "go.uber.org/zap"

var logger = zap.NewNop().Sugar()

// SetLogger routes flow diagnostics to l. Pass nil to mute them.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l.Named("flow")
}

// diagf logs per-cycle tracking results.
func diagf(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

// tracef logs per-block detail at debug level.
func tracef(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}
