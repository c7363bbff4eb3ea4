package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ForecastSummary condenses one forecast run, one entry per lead time.
type ForecastSummary struct {
	MeanRate []float32 `msgpack:"mean_rate"` // mm/h over valid pixels
	RainFrac []float32 `msgpack:"rain_frac"`
	MaxRate  []float32 `msgpack:"max_rate"`
}

// ForecastRun records a forecast issued from a snapshot.
type ForecastRun struct {
	RunID       string
	SnapshotID  string // empty when the run did not start from a snapshot
	Source      string
	IssuedUnix  int64
	LeadTimes   int
	StepMinutes int
	Summary     ForecastSummary
}

// InsertForecastRun stores r. An empty RunID gets a new UUID and a zero
// IssuedUnix the current time.
func (s *Store) InsertForecastRun(ctx context.Context, r *ForecastRun) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.IssuedUnix == 0 {
		r.IssuedUnix = s.clock.Now().Unix()
	}
	blob, err := msgpack.Marshal(&r.Summary)
	if err != nil {
		return fmt.Errorf("encode forecast summary: %w", err)
	}
	var snapshotID any
	if r.SnapshotID != "" {
		snapshotID = r.SnapshotID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forecast_runs (
			run_id, snapshot_id, source, issued_unix,
			lead_times, step_minutes, summary_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, snapshotID, r.Source, r.IssuedUnix, r.LeadTimes, r.StepMinutes, blob,
	)
	if err != nil {
		return fmt.Errorf("insert forecast run: %w", err)
	}
	return nil
}

// ForecastRuns returns up to limit runs of source, newest first.
func (s *Store) ForecastRuns(ctx context.Context, source string, limit int) ([]*ForecastRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, snapshot_id, source, issued_unix, lead_times, step_minutes, summary_blob
		FROM forecast_runs
		WHERE source = ?
		ORDER BY issued_unix DESC, rowid DESC
		LIMIT ?`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("query forecast runs: %w", err)
	}
	defer rows.Close()

	var out []*ForecastRun
	for rows.Next() {
		var r ForecastRun
		var snapshotID sql.NullString
		var blob []byte
		if err := rows.Scan(&r.RunID, &snapshotID, &r.Source, &r.IssuedUnix,
			&r.LeadTimes, &r.StepMinutes, &blob); err != nil {
			return nil, fmt.Errorf("scan forecast run: %w", err)
		}
		r.SnapshotID = snapshotID.String
		if len(blob) > 0 {
			if err := msgpack.Unmarshal(blob, &r.Summary); err != nil {
				return nil, fmt.Errorf("decode forecast summary %s: %w", r.RunID, err)
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Summarize builds a ForecastSummary from forecast rain-rate fields.
// Pixels at or below noData+1 are skipped; rates of at least
// rainThreshold count as raining.
func Summarize(fields [][]float32, noData, rainThreshold float32) ForecastSummary {
	sum := ForecastSummary{
		MeanRate: make([]float32, len(fields)),
		RainFrac: make([]float32, len(fields)),
		MaxRate:  make([]float32, len(fields)),
	}
	for k, f := range fields {
		var total float64
		var valid, raining int
		for _, v := range f {
			if v <= noData+1 {
				continue
			}
			valid++
			total += float64(v)
			if v >= rainThreshold {
				raining++
			}
			sum.MaxRate[k] = max(sum.MaxRate[k], v)
		}
		if valid > 0 {
			sum.MeanRate[k] = float32(total / float64(valid))
			sum.RainFrac[k] = float32(raining) / float32(valid)
		}
	}
	return sum
}
