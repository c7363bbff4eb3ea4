package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/banshee-data/scalesep/internal/cascade"
	"github.com/banshee-data/scalesep/internal/cascade/archive"
)

func cmdInspect(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "Cascade config file (.json or .yaml)")
	snapshots := fs.Int("snapshots", 0, "List this many archived snapshots instead of reading a state file")
	runs := fs.Int("runs", 0, "Also list this many recorded forecast runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cc, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if *snapshots > 0 || *runs > 0 {
		return inspectArchive(cc.GetArchivePath(), cc.GetSource(), *snapshots, *runs, stdout)
	}

	path := fs.Arg(0)
	if path == "" && cc.PersistPath != nil {
		path = *cc.PersistPath
	}
	if path == "" {
		return usageErrorf("no state file: pass one or set persist_path")
	}
	cascade.SetLogger(nil)
	e, err := cascade.Open(path, cascade.WithTuning(cc.Tuning()), cascade.WithPersistPath(""))
	if err != nil {
		return err
	}
	defer e.Close()

	g := e.Geometry()
	st := e.Stats()
	fmt.Fprintf(stdout, "state       %s\n", path)
	fmt.Fprintf(stdout, "map         %dx%d in a %d cascade, %d levels\n", g.Rows, g.Cols, g.CascadeSize, e.Parameters().Levels)
	fmt.Fprintf(stdout, "image       %d, last map %s\n", e.ImageNumber(), e.MapTimes()[0].Format(time.RFC3339))
	fmt.Fprintf(stdout, "rain        mean %.3f mm/h, std %.3f, fraction %.1f%%, conditional mean %.3f\n",
		st.RainMean, st.RainStd, 100*st.RainFrac, st.CondMean)
	fmt.Fprintf(stdout, "field       mean %.3f, std %.3f\n", st.FieldMean, st.FieldStd)
	fmt.Fprintf(stdout, "valid       %.1f%%\n\n", 100*e.ValidFraction())
	printParameters(stdout, e.Parameters(), func(l int) float64 { return e.NominalScale(l) * e.Config().PixelSizeKm })
	return nil
}

func printParameters(w io.Writer, p cascade.Parameters, scaleKm func(int) float64) {
	lags := 0
	if p.Levels > 0 {
		lags = len(p.Correlations) / p.Levels
	}
	fmt.Fprintf(w, "beta        %.3f / %.3f, scale ratio %.4f\n", p.BetaOne, p.BetaTwo, p.ScaleRatio)
	fmt.Fprintf(w, "%5s  %9s  %8s  %8s", "level", "scale km", "mean", "std")
	for k := 1; k <= lags; k++ {
		fmt.Fprintf(w, "  %7s", fmt.Sprintf("rho%d", k))
	}
	for k := 1; k <= lags; k++ {
		fmt.Fprintf(w, "  %7s", fmt.Sprintf("phi%d", k))
	}
	fmt.Fprintln(w)
	for l := 0; l < p.Levels; l++ {
		fmt.Fprintf(w, "%5d  %9.2f  %8.3f  %8.3f", l, scaleKm(l), p.Means[l], p.Stds[l])
		for k := 0; k < lags; k++ {
			fmt.Fprintf(w, "  %7.4f", p.Correlations[k*p.Levels+l])
		}
		for k := 1; k <= lags; k++ {
			fmt.Fprintf(w, "  %7.4f", p.Phi[k*p.Levels+l])
		}
		fmt.Fprintln(w)
	}
}

func inspectArchive(dbPath, source string, snapshots, runs int, stdout io.Writer) error {
	if dbPath == "" {
		return usageErrorf("archive_path is not set in the config")
	}
	store, err := archive.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	if snapshots > 0 {
		list, err := store.ListSnapshots(ctx, source, snapshots)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%-36s  %-20s  %6s  %9s  %6s  %s\n", "snapshot", "taken", "image", "grid", "rain", "reason")
		for _, s := range list {
			st, _, err := cascade.DecodeSnapshotSummary(s.Stats)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%-36s  %-20s  %6d  %9s  %5.1f%%  %s\n",
				s.SnapshotID, time.Unix(s.TakenUnix, 0).UTC().Format(time.RFC3339), s.ImageNumber,
				fmt.Sprintf("%dx%d", s.Rows, s.Cols), 100*st.RainFrac, s.Reason)
		}
	}

	if runs > 0 {
		list, err := store.ForecastRuns(ctx, source, runs)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%-36s  %-20s  %5s  %10s\n", "run", "issued", "steps", "last mean")
		for _, r := range list {
			last := float32(0)
			if n := len(r.Summary.MeanRate); n > 0 {
				last = r.Summary.MeanRate[n-1]
			}
			fmt.Fprintf(stdout, "%-36s  %-20s  %5d  %10.3f\n",
				r.RunID, time.Unix(r.IssuedUnix, 0).UTC().Format(time.RFC3339), r.LeadTimes, last)
		}
	}
	return nil
}
