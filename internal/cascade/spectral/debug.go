package spectral

import "go.uber.org/zap"

var logger = zap.NewNop().Sugar()

// SetLogger routes spectral diagnostics to l. Pass nil to mute them.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l.Named("spectral")
}

// tracef logs per-level detail at debug level.
func tracef(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}
