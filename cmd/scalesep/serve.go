package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"tailscale.com/tsweb"

	"github.com/banshee-data/scalesep/internal/cascade"
	"github.com/banshee-data/scalesep/internal/cascade/archive"
	"github.com/banshee-data/scalesep/internal/cascade/report"
)

// levelHistoryLimit is one day of 5-minute snapshots.
const levelHistoryLimit = 288

func cmdServe(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "Cascade config file (.json or .yaml)")
	listen := fs.String("listen", "localhost:8080", "Listen address for the debug pages")
	var lf logFlags
	lf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cc, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cc.GetArchivePath() == "" {
		return usageErrorf("archive_path is not set in the config")
	}
	l, closeLog, err := lf.setup(stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := archive.Open(cc.GetArchivePath())
	if err != nil {
		return err
	}
	defer store.Close()

	mux, err := newAdminMux(store, cc.GetSource())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: *listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	fmt.Fprintf(stdout, "serving %s archive on http://%s/debug/\n", cc.GetSource(), *listen)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	l.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newAdminMux mounts the archive routes and the level history chart of
// source under /debug/.
func newAdminMux(store *archive.Store, source string) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("levels", "Per-level model across archived snapshots", func(w http.ResponseWriter, r *http.Request) {
		history, err := levelHistory(r.Context(), store, source)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(history) == 0 {
			http.Error(w, "no snapshots archived for "+source, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := report.WriteLevelChart(w, history); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return mux, nil
}

// levelHistory rebuilds the level samples of source, oldest first, from
// the summaries archived with its snapshots.
func levelHistory(ctx context.Context, store *archive.Store, source string) ([]report.LevelSample, error) {
	snaps, err := store.ListSnapshots(ctx, source, levelHistoryLimit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(snaps)

	history := make([]report.LevelSample, 0, len(snaps))
	for _, s := range snaps {
		st, p, err := cascade.DecodeSnapshotSummary(s.Stats)
		if err != nil {
			return nil, err
		}
		lag1 := p.Correlations
		if len(lag1) > p.Levels {
			lag1 = lag1[:p.Levels]
		}
		history = append(history, report.LevelSample{
			Time:         time.Unix(s.TakenUnix, 0).UTC(),
			Stds:         p.Stds,
			Correlations: lag1,
			RainFrac:     st.RainFrac,
		})
	}
	return history, nil
}
