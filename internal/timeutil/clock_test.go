package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockNow(t *testing.T) {
	t.Parallel()
	c := RealClock{}
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))
	assert.GreaterOrEqual(t, c.Since(before), time.Duration(0))
}

func TestMockClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(5 * time.Minute)
	assert.Equal(t, start.Add(5*time.Minute), c.Now())
	assert.Equal(t, 5*time.Minute, c.Since(start))

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestScanTimes(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
	got := ScanTimes(start, 6*time.Minute, 3)
	assert.Equal(t, []time.Time{start, start.Add(6 * time.Minute), start.Add(12 * time.Minute)}, got)
	assert.Empty(t, ScanTimes(start, time.Minute, 0))
}
