// Package monitoring builds the zap loggers used across scalesep and keeps
// a printf-style hook for infrastructure code.
package monitoring

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logf is the package-level diagnostic logger. It defaults to a no-op and
// is pointed at a zap logger by SetLogger or UseSugared. Tests or
// production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// UseSugared routes Logf to l at info level.
func UseSugared(l *zap.SugaredLogger) {
	if l == nil {
		SetLogger(nil)
		return
	}
	SetLogger(l.Infof)
}

// Options configures NewLogger.
type Options struct {
	Debug bool // enable debug level (trace streams)

	// FilePath, when set, adds a rotating JSON log file next to the
	// console output.
	FilePath   string
	MaxSizeMB  int // rotate after this many megabytes (default: 50)
	MaxBackups int // rotated files to keep (default: 5)

	// Console receives human-readable output; nil means stderr.
	Console io.Writer
	// NoConsole drops the console sink, leaving only the file.
	NoConsole bool
}

// NewLogger builds a sugared logger from opts. The returned close function
// flushes the logger and releases the log file.
func NewLogger(opts Options) (*zap.SugaredLogger, func() error, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	if !opts.NoConsole {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		encCfg := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level))
	}

	var rotator *lumberjack.Logger
	if opts.FilePath != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		backups := opts.MaxBackups
		if backups <= 0 {
			backups = 5
		}
		rotator = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: backups,
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}
	if len(cores) == 0 {
		return nil, nil, fmt.Errorf("logger needs a console or a file sink")
	}

	base := zap.New(zapcore.NewTee(cores...))
	sugar := base.Sugar()
	closeFn := func() error {
		// Sync on a console sink reports EINVAL for terminals; only the
		// file result matters.
		_ = base.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return sugar, closeFn, nil
}
