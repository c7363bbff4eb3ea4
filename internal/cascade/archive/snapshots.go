package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Snapshot is one archived engine state.
type Snapshot struct {
	SnapshotID  string
	Source      string
	TakenUnix   int64
	ImageNumber int
	Rows        int
	Cols        int
	Levels      int
	Stats       []byte // msgpack summary written by the engine
	State       []byte // state-file bytes, uncompressed
	Reason      string
}

// InsertSnapshot stores s, gzip compressing its state. An empty SnapshotID
// gets a new UUID and a zero TakenUnix the current time.
func (s *Store) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.SnapshotID == "" {
		snap.SnapshotID = uuid.New().String()
	}
	if snap.TakenUnix == 0 {
		snap.TakenUnix = s.clock.Now().Unix()
	}
	state, err := compress(snap.State)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cascade_snapshots (
			snapshot_id, source, taken_unix, image_number,
			rows, cols, levels, stats_blob, state_blob, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SnapshotID, snap.Source, snap.TakenUnix, snap.ImageNumber,
		snap.Rows, snap.Cols, snap.Levels, snap.Stats, state, snap.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `snapshot_id, source, taken_unix, image_number,
		       rows, cols, levels, stats_blob, state_blob, reason`

// LatestSnapshot returns the most recent snapshot of source.
func (s *Store) LatestSnapshot(ctx context.Context, source string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM cascade_snapshots
		WHERE source = ?
		ORDER BY taken_unix DESC, rowid DESC
		LIMIT 1`, source)
	return scanSnapshot(row, true)
}

// SnapshotByID returns one snapshot.
func (s *Store) SnapshotByID(ctx context.Context, id string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM cascade_snapshots
		WHERE snapshot_id = ?`, id)
	return scanSnapshot(row, true)
}

// ListSnapshots returns up to limit snapshots of source, newest first,
// without their state.
func (s *Store) ListSnapshots(ctx context.Context, source string, limit int) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM cascade_snapshots
		WHERE source = ?
		ORDER BY taken_unix DESC, rowid DESC
		LIMIT ?`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots of source and returns
// the number removed.
func (s *Store) Prune(ctx context.Context, source string, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cascade_snapshots
		WHERE source = ? AND snapshot_id NOT IN (
			SELECT snapshot_id FROM cascade_snapshots
			WHERE source = ?
			ORDER BY taken_unix DESC, rowid DESC
			LIMIT ?
		)`, source, source, max(keep, 0))
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner, withState bool) (*Snapshot, error) {
	var snap Snapshot
	var state []byte
	err := row.Scan(
		&snap.SnapshotID, &snap.Source, &snap.TakenUnix, &snap.ImageNumber,
		&snap.Rows, &snap.Cols, &snap.Levels, &snap.Stats, &state, &snap.Reason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if withState {
		if snap.State, err = decompress(state); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", snap.SnapshotID, err)
		}
	}
	return &snap, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress state: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress state: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress state: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress state: %w", err)
	}
	return out, nil
}
