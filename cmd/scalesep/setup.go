package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/banshee-data/scalesep/internal/cascade"
	"github.com/banshee-data/scalesep/internal/cascade/armodel"
	"github.com/banshee-data/scalesep/internal/cascade/flow"
	"github.com/banshee-data/scalesep/internal/cascade/spectral"
	"github.com/banshee-data/scalesep/internal/config"
	"github.com/banshee-data/scalesep/internal/fsutil"
	"github.com/banshee-data/scalesep/internal/monitoring"
)

// logFlags are shared by the commands that drive an engine.
type logFlags struct {
	debug   bool
	logFile string
}

func (f *logFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging, including per-level traces")
	fs.StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this rotating file")
}

// setup builds the process logger and points every package at it. The
// returned function flushes and closes it.
func (f *logFlags) setup(stderr io.Writer) (*zap.SugaredLogger, func(), error) {
	l, closeLog, err := monitoring.NewLogger(monitoring.Options{
		Debug:    f.debug,
		FilePath: f.logFile,
		Console:  stderr,
	})
	if err != nil {
		return nil, nil, err
	}
	monitoring.UseSugared(l.Named("archive"))
	cascade.SetLogger(l.Named("cascade"))
	spectral.SetLogger(l.Named("spectral"))
	flow.SetLogger(l.Named("flow"))
	armodel.SetLogger(l.Named("armodel"))
	return l, func() { _ = closeLog() }, nil
}

// loadConfig reads the cascade config at path, or the built-in defaults
// file when path is empty.
func loadConfig(path string) (*config.CascadeConfig, error) {
	if path == "" {
		path = config.DefaultConfigPath
	}
	return config.LoadCascadeConfig(path)
}

// openEngine hot-starts from the config's persist path when a state file
// exists there, and cold-starts otherwise. The bool reports a hot start.
func openEngine(cc *config.CascadeConfig, statePath string, l *zap.SugaredLogger) (*cascade.Engine, bool, error) {
	if statePath == "" && cc.PersistPath != nil {
		statePath = *cc.PersistPath
	}
	opts := []cascade.Option{cascade.WithTuning(cc.Tuning()), cascade.WithLogger(l.Named("cascade"))}
	if statePath != "" && (fsutil.OSFileSystem{}).Exists(statePath) {
		e, err := cascade.Open(statePath, opts...)
		if err != nil {
			return nil, false, err
		}
		return e, true, nil
	}

	cfg, err := cc.EngineConfig()
	if err != nil {
		return nil, false, fmt.Errorf("cold start: %w", err)
	}
	if statePath != "" {
		cfg.PersistPath = statePath
	}
	e, err := cascade.New(cfg, opts...)
	if err != nil {
		return nil, false, err
	}
	return e, false, nil
}

// mapSize returns the number of values in one input map. An upscaled
// engine reads maps at twice its own resolution.
func mapSize(cc *config.CascadeConfig, e *cascade.Engine) (rows, cols int) {
	g := e.Geometry()
	rows, cols = g.Rows, g.Cols
	if cc.Upscale != nil && *cc.Upscale {
		rows, cols = 2*rows, 2*cols
		if cc.Rows != nil && cc.Cols != nil {
			rows, cols = *cc.Rows, *cc.Cols
		}
	}
	return rows, cols
}
