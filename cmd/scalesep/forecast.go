package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/banshee-data/scalesep/internal/cascade"
	"github.com/banshee-data/scalesep/internal/cascade/archive"
)

func cmdForecast(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("forecast", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "Cascade config file (.json or .yaml)")
	statePath := fs.String("state", "", "State file, overriding the config persist_path")
	fromArchive := fs.Bool("from-archive", false, "Start from the newest archived snapshot instead of the state file")
	steps := fs.IntP("steps", "n", 12, "Number of forecast time steps")
	outDir := fs.StringP("out", "o", "", "Directory for the forecast fields (raw float32, mm/h)")
	record := fs.Bool("record", false, "Record a summary of the run in the config archive_path")
	var lf logFlags
	lf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return usageErrorf("--steps must be at least 1, got %d", *steps)
	}

	cc, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	l, closeLog, err := lf.setup(stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	source := cc.GetSource()
	var store *archive.Store
	if *fromArchive || *record {
		if cc.GetArchivePath() == "" {
			return usageErrorf("--from-archive and --record need archive_path in the config")
		}
		if store, err = archive.Open(cc.GetArchivePath()); err != nil {
			return err
		}
		defer store.Close()
	}

	var (
		e          *cascade.Engine
		snapshotID string
	)
	if *fromArchive {
		snap, err := store.LatestSnapshot(ctx, source)
		if err != nil {
			return fmt.Errorf("latest snapshot of %s: %w", source, err)
		}
		snapshotID = snap.SnapshotID
		e, err = cascade.Restore(ctx, store, source, cascade.WithTuning(cc.Tuning()), cascade.WithLogger(l.Named("cascade")))
		if err != nil {
			return err
		}
	} else {
		path := *statePath
		if path == "" && cc.PersistPath != nil {
			path = *cc.PersistPath
		}
		if path == "" {
			return usageErrorf("no state file: set persist_path or --state")
		}
		// A read-only forecast must not rewrite the state on close.
		e, err = cascade.Open(path, cascade.WithTuning(cc.Tuning()), cascade.WithLogger(l.Named("cascade")), cascade.WithPersistPath(""))
		if err != nil {
			return err
		}
	}
	defer e.Close()

	if !e.HaveParameters() {
		return fmt.Errorf("state holds %d maps; at least two are needed to forecast", e.ImageNumber()+1)
	}
	fields, err := e.SmoothForecastRain(*steps)
	if err != nil {
		return err
	}

	cfg := e.Config()
	issued := e.MapTimes()[0]
	if *outDir != "" {
		for k, fx := range fields {
			name := fmt.Sprintf("%s_%s_+%03dmin.f32", source, issued.Format("200601021504"), (k+1)*cfg.TimeStepMinutes)
			if err := writeFloats(filepath.Join(*outDir, name), fx); err != nil {
				return err
			}
		}
	}

	summary := archive.Summarize(fields, cfg.NoData, cfg.Tuning.RainThreshold)
	fmt.Fprintf(stdout, "%-8s  %10s  %9s  %10s\n", "lead", "mean mm/h", "rain", "max mm/h")
	for k := range fields {
		fmt.Fprintf(stdout, "+%3dmin   %10.3f  %8.1f%%  %10.3f\n",
			(k+1)*cfg.TimeStepMinutes, summary.MeanRate[k], 100*summary.RainFrac[k], summary.MaxRate[k])
	}

	if *record {
		run := &archive.ForecastRun{
			SnapshotID:  snapshotID,
			Source:      source,
			LeadTimes:   len(fields),
			StepMinutes: cfg.TimeStepMinutes,
			Summary:     summary,
		}
		if err := store.InsertForecastRun(ctx, run); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "forecast run %s\n", run.RunID)
	}
	return nil
}
