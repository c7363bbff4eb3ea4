package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/banshee-data/scalesep/internal/cascade"
	"github.com/banshee-data/scalesep/internal/cascade/archive"
	"github.com/banshee-data/scalesep/internal/cascade/grid"
	"github.com/banshee-data/scalesep/internal/cascade/report"
	"github.com/banshee-data/scalesep/internal/timeutil"
)

func cmdRun(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "Cascade config file (.json or .yaml)")
	statePath := fs.String("state", "", "State file, overriding the config persist_path")
	start := fs.String("start", "", "Time of the first map (RFC3339); defaults to one step after the state's last map")
	dbz := fs.Bool("dbz", false, "Maps hold reflectivity in dBZ instead of rain rate in mm/h")
	reset := fs.Bool("reset", false, "Restart the map sequence even when resuming from a state file")
	snapshot := fs.Bool("snapshot", false, "Archive the final state in the config archive_path")
	keep := fs.Int("keep", 0, "Snapshots of this source to keep after archiving (0 keeps all)")
	reportDir := fs.String("report", "", "Write spectrum and level plots to this directory")
	var lf logFlags
	lf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErrorf("at least one map file is required")
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

	e, hot, err := openEngine(cc, *statePath, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			l.Errorf("close engine: %v", err)
		}
	}()

	step := time.Duration(e.Config().TimeStepMinutes) * time.Minute
	var first time.Time
	switch {
	case *start != "":
		if first, err = time.Parse(time.RFC3339, *start); err != nil {
			return usageErrorf("--start: %v", err)
		}
	case hot:
		first = e.MapTimes()[0].Add(step)
	default:
		return usageErrorf("--start is required on a cold start")
	}

	rows, cols := mapSize(cc, e)
	upscale := cc.Upscale != nil && *cc.Upscale
	noData := e.Config().NoData
	var history []report.LevelSample

	for i, ts := range timeutil.ScanTimes(first, step, fs.NArg()) {
		path := fs.Arg(i)
		field, err := readFloats(path, rows*cols)
		if err != nil {
			return err
		}
		if upscale {
			field = grid.Upscale(field, rows, cols, noData)
		}
		resetSeq := i == 0 && (!hot || *reset)
		if *dbz {
			err = e.UpdateMapsDBZ(field, ts, resetSeq)
		} else {
			err = e.UpdateMaps(field, ts, resetSeq)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := e.UpdateParameters(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		history = append(history, report.SampleFrom(e, ts))

		st := e.Stats()
		fmt.Fprintf(stdout, "%s  %-24s  image %4d  rain %5.1f%%  mean %7.3f mm/h\n",
			ts.UTC().Format(time.RFC3339), filepath.Base(path), e.ImageNumber(), 100*st.RainFrac, st.RainMean)
	}

	if err := e.Flush(); err != nil {
		return err
	}

	if *snapshot {
		if err := archiveState(e, cc.GetArchivePath(), cc.GetSource(), *keep, stdout); err != nil {
			return err
		}
	}
	if *reportDir != "" {
		if err := writeReports(*reportDir, e, history); err != nil {
			return err
		}
	}
	return nil
}

func archiveState(e *cascade.Engine, dbPath, source string, keep int, stdout io.Writer) error {
	if dbPath == "" {
		return usageErrorf("--snapshot needs archive_path in the config")
	}
	store, err := archive.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	id, err := e.Snapshot(ctx, store, source, "run")
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "snapshot %s\n", id)
	if keep > 0 {
		n, err := store.Prune(ctx, source, keep)
		if err != nil {
			return err
		}
		if n > 0 {
			fmt.Fprintf(stdout, "pruned %d snapshots\n", n)
		}
	}
	return nil
}

func writeReports(dir string, e *cascade.Engine, history []report.LevelSample) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if s := e.Spectrum(); s != nil {
		if err := report.PlotSpectrum(filepath.Join(dir, "spectrum.png"), *s); err != nil {
			return err
		}
	}
	g := e.Geometry()
	if err := report.PlotLevelStats(filepath.Join(dir, "levels.png"), g.CascadeSize, e.Config().PixelSizeKm, e.Parameters()); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, "levels.html"))
	if err != nil {
		return err
	}
	if err := report.WriteLevelChart(f, history); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
