package cascade

import "go.uber.org/zap"

var pkgLogger = zap.NewNop().Sugar()

// SetLogger sets the logger new engines use when their Config has no
// LogPath. Pass nil to mute them.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		pkgLogger = zap.NewNop().Sugar()
		return
	}
	pkgLogger = l
}

// opsf logs to the ops stream (actionable warnings, errors, data loss).
func (e *Engine) opsf(format string, args ...interface{}) {
	e.log.Warnf(format, args...)
}

// diagf logs to the diag stream (per-cycle statistics, parameter fits).
func (e *Engine) diagf(format string, args ...interface{}) {
	e.log.Infof(format, args...)
}

// tracef logs to the trace stream (per-level detail).
func (e *Engine) tracef(format string, args ...interface{}) {
	e.log.Debugf(format, args...)
}
