package cascade

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scalesep/internal/cascade/archive"
	"github.com/banshee-data/scalesep/internal/fsutil"
	"github.com/banshee-data/scalesep/internal/timeutil"
)

const testStatePath = "state/radar-a.cascade"

// cycledEngine returns an engine with a full history behind it, backed by
// an in-memory filesystem.
func cycledEngine(t *testing.T) (*Engine, *fsutil.MemoryFileSystem) {
	t.Helper()
	mem := fsutil.NewMemoryFileSystem()
	cfg := testConfig()
	cfg.PersistPath = testStatePath
	e := newTestEngine(t, cfg, WithFileSystem(mem))
	runCycles(t, e, texturedRain(32, 24, 0), texturedRain(32, 24, 1), texturedRain(32, 24, 2))
	require.NoError(t, e.UpdateWeights())
	return e, mem
}

func stateBytes(t *testing.T, e *Engine) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, e.WriteState(&buf))
	return buf.Bytes()
}

func TestStateFileLayout(t *testing.T) {
	t.Parallel()

	e, _ := cycledEngine(t)
	data := stateBytes(t, e)

	cas := 48 * 48
	levels := e.levels
	floats := 2*levels + 2*levels + 3*levels + 3*levels*cas + 2*cas + 2*cas + 32*24
	assert.Len(t, data, 2*nameLen+8*8+4*32+4*32+4*floats)

	assert.Equal(t, "state/radar-a", string(bytes.TrimRight(data[nameLen:2*nameLen], "\x00")),
		"flow name is the persist path up to its first dot")
	ints := data[2*nameLen+8*8:]
	assert.Equal(t, uint32(cas), binary.LittleEndian.Uint32(ints[0:]))
	assert.Equal(t, uint32(96), binary.LittleEndian.Uint32(ints[4*intFFTSize:]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ints[4*intImageNumber:]))
}

func TestFlushAndOpenRoundTrip(t *testing.T) {
	t.Parallel()

	e, mem := cycledEngine(t)
	require.NoError(t, e.Flush())
	require.True(t, mem.Exists(testStatePath))

	hot, err := Open(testStatePath, WithFileSystem(mem))
	require.NoError(t, err)
	t.Cleanup(func() { hot.Close() })

	assert.Equal(t, stateBytes(t, e), stateBytes(t, hot), "state survives a write and read bit for bit")
	if diff := cmp.Diff(e.Parameters(), hot.Parameters()); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, e.Stats(), hot.Stats())
	assert.Equal(t, e.MapTimes(), hot.MapTimes())
	assert.Equal(t, e.ImageNumber(), hot.ImageNumber())
	assert.Equal(t, e.DataMask(), hot.DataMask())
	assert.Equal(t, testStatePath, hot.Config().PersistPath)

	// Both engines go on to make the same forecast.
	want, err := e.SmoothForecastRain(2)
	require.NoError(t, err)
	got, err := hot.SmoothForecastRain(2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCloseFlushes(t *testing.T) {
	t.Parallel()

	mem := fsutil.NewMemoryFileSystem()
	cfg := testConfig()
	cfg.PersistPath = "radar.cascade"
	e, err := New(cfg, WithFileSystem(mem))
	require.NoError(t, err)
	require.NoError(t, e.UpdateMaps(texturedRain(32, 24, 0), testStart, true))
	require.NoError(t, e.Close())
	assert.True(t, mem.Exists("radar.cascade"))
	assert.False(t, mem.Exists("radar.cascade.tmp"))
	assert.ErrorIs(t, e.Flush(), ErrClosed)
}

func TestFlushShortWrite(t *testing.T) {
	t.Parallel()

	e, mem := cycledEngine(t)
	mem.LimitWrites(100)
	err := e.Flush()
	assert.ErrorIs(t, err, ErrShortWrite)
	assert.False(t, mem.Exists(testStatePath))
	assert.False(t, mem.Exists(testStatePath+".tmp"), "the partial file is removed")

	// A failed write leaves the engine as it was.
	mem.LimitWrites(-1)
	assert.NoError(t, e.Flush())
}

func TestOpenShortRead(t *testing.T) {
	t.Parallel()

	e, mem := cycledEngine(t)
	data := stateBytes(t, e)

	for _, n := range []int{0, 100, len(data) / 2, len(data) - 1} {
		mem.WriteFile("short.cascade", data[:n])
		_, err := Open("short.cascade", WithFileSystem(mem))
		assert.ErrorIs(t, err, ErrShortRead, "truncated to %d bytes", n)
	}
}

func TestOpenGeometryMismatch(t *testing.T) {
	t.Parallel()

	e, mem := cycledEngine(t)
	good := stateBytes(t, e)
	ints := 2*nameLen + 8*8

	tests := []struct {
		name  string
		slot  int
		value uint32
	}{
		{"fft size", intFFTSize, 100},
		{"cascade array", intCascadeArray, 7},
		{"map array", intMapArray, 5},
		{"levels", intLevels, 9},
		{"lags", intLags, 3},
		{"maps", intNumberMaps, 4},
		{"too few cascades", intNumberCascades, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(nil), good...)
			binary.LittleEndian.PutUint32(data[ints+4*tt.slot:], tt.value)
			mem.WriteFile("bad.cascade", data)
			_, err := Open("bad.cascade", WithFileSystem(mem))
			assert.ErrorIs(t, err, ErrGeometryMismatch)
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Open("nowhere.cascade", WithFileSystem(fsutil.NewMemoryFileSystem()))
	assert.Error(t, err)
}

func TestOpenRebuildsMaskFromLatestMap(t *testing.T) {
	t.Parallel()

	mem := fsutil.NewMemoryFileSystem()
	cfg := testConfig()
	cfg.PersistPath = "radar.cascade"
	e := newTestEngine(t, cfg, WithFileSystem(mem))
	raw := texturedRain(32, 24, 0)
	raw[0] = testNoData
	require.NoError(t, e.UpdateMaps(raw, testStart, true))
	require.NoError(t, e.Flush())

	hot, err := Open("radar.cascade", WithFileSystem(mem))
	require.NoError(t, err)
	t.Cleanup(func() { hot.Close() })
	assert.Equal(t, e.DataMask(), hot.DataMask())
}

func TestSnapshotAndRestore(t *testing.T) {
	t.Parallel()

	store, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := timeutil.NewMockClock(testStart.Add(time.Hour))
	mem := fsutil.NewMemoryFileSystem()
	cfg := testConfig()
	e := newTestEngine(t, cfg, WithFileSystem(mem), WithClock(clock))
	runCycles(t, e, texturedRain(32, 24, 0), texturedRain(32, 24, 1), texturedRain(32, 24, 2))

	ctx := context.Background()
	id, err := e.Snapshot(ctx, store, "radar-a", "cycle")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	snap, err := store.SnapshotByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Unix(), snap.TakenUnix)
	assert.Equal(t, 2, snap.ImageNumber)
	stats, params, err := DecodeSnapshotSummary(snap.Stats)
	require.NoError(t, err)
	assert.Equal(t, e.Stats(), stats)
	if diff := cmp.Diff(e.Parameters(), params); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}

	hot, err := Restore(ctx, store, "radar-a", WithFileSystem(mem), WithPersistPath("restored.cascade"))
	require.NoError(t, err)
	assert.Equal(t, stateBytes(t, e), stateBytes(t, hot))
	require.NoError(t, hot.Close())
	assert.True(t, mem.Exists("restored.cascade"))

	_, err = Restore(ctx, store, "radar-b")
	assert.ErrorIs(t, err, archive.ErrNotFound)
}
