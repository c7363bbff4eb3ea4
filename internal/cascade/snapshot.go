package cascade

import (
	"bytes"
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/banshee-data/scalesep/internal/cascade/archive"
)

// SnapshotStore is the part of the archive the engine writes to and
// restores from.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s *archive.Snapshot) error
	LatestSnapshot(ctx context.Context, source string) (*archive.Snapshot, error)
}

// snapshotSummary is the msgpack document stored next to each state.
type snapshotSummary struct {
	Stats      FieldStatistics `msgpack:"stats"`
	Parameters Parameters      `msgpack:"parameters"`
}

// Snapshot archives the current state of the engine under source and
// returns the snapshot id.
func (e *Engine) Snapshot(ctx context.Context, store SnapshotStore, source, reason string) (string, error) {
	if err := e.checkOpen(); err != nil {
		return "", err
	}
	var state bytes.Buffer
	if err := e.WriteState(&state); err != nil {
		return "", err
	}
	stats, err := msgpack.Marshal(&snapshotSummary{Stats: e.stats, Parameters: e.Parameters()})
	if err != nil {
		return "", fmt.Errorf("encode snapshot summary: %w", err)
	}
	snap := &archive.Snapshot{
		Source:      source,
		TakenUnix:   e.clock.Now().Unix(),
		ImageNumber: e.imageNumber,
		Rows:        e.geom.Rows,
		Cols:        e.geom.Cols,
		Levels:      e.levels,
		Stats:       stats,
		State:       state.Bytes(),
		Reason:      reason,
	}
	if err := store.InsertSnapshot(ctx, snap); err != nil {
		return "", err
	}
	e.diagf("snapshot %s of %s at image %d (%s)", snap.SnapshotID, source, e.imageNumber, reason)
	return snap.SnapshotID, nil
}

// Restore hot-starts an engine from the newest snapshot of source.
func Restore(ctx context.Context, store SnapshotStore, source string, opts ...Option) (*Engine, error) {
	snap, err := store.LatestSnapshot(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot of %s: %w", source, err)
	}
	e, err := ReadState(bytes.NewReader(snap.State), opts...)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.SnapshotID, err)
	}
	return e, nil
}

// DecodeSnapshotSummary unpacks the statistics and parameters archived
// with a snapshot.
func DecodeSnapshotSummary(blob []byte) (FieldStatistics, Parameters, error) {
	var s snapshotSummary
	if err := msgpack.Unmarshal(blob, &s); err != nil {
		return FieldStatistics{}, Parameters{}, fmt.Errorf("decode snapshot summary: %w", err)
	}
	return s.Stats, s.Parameters, nil
}
