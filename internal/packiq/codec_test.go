package packiq

import (
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeSaturation(t *testing.T) {
	t.Parallel()
	c := NewCodec()

	tests := []struct {
		name  string
		v     float32
		flags Flags
		want  uint16
	}{
		{"high snr positive", 5.0, HighSNR, 0xF7FF},
		{"high snr negative", -5.0, HighSNR, 0xF800},
		{"high snr at limit", 4.0, HighSNR, 0xF7FF},
		{"high snr at negative limit", -4.0, HighSNR, 0xF800},
		{"legacy positive", 5.0, 0, 0xFBFF},
		{"legacy negative", -5.0, 0, 0xFC00},
		{"legacy zero", 0.0, 0, 0x0000},
		{"high snr zero", 0.0, HighSNR, 0x0000},
		{"legacy infinity", float32(math.Inf(1)), 0, 0xFBFF},
		{"high snr negative infinity", float32(math.Inf(-1)), HighSNR, 0xF800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Encode(tt.v, tt.flags))
		})
	}
}

func TestEncodeJustBelowLimitSaturates(t *testing.T) {
	t.Parallel()
	c := NewCodec()

	// Rounds the mantissa up and would overflow the exponent field.
	v := math.Nextafter32(4.0, 0)
	assert.Equal(t, HighSNRMaxCode, c.Encode(v, HighSNR))
	assert.Equal(t, LegacyMaxCode, c.Encode(v, 0))
	assert.Equal(t, LegacyMaxCode, c.Encode(3.9999, 0))
}

func TestLegacyUnderflowClampsToZero(t *testing.T) {
	t.Parallel()
	c := NewCodec()
	assert.Equal(t, uint16(0), c.Encode(1e-12, 0))
	assert.Equal(t, uint16(0), c.Encode(-1e-12, 0))
}

func TestSaturationCodesDecodeNearLimits(t *testing.T) {
	t.Parallel()
	c := NewCodec()
	assert.InDelta(t, 4.0, c.Decode(HighSNRMaxCode, HighSNR), 1e-3)
	assert.Equal(t, float32(-4.0), c.Decode(HighSNRMinCode, HighSNR))
	assert.InDelta(t, 4.0, c.Decode(LegacyMaxCode, 0), 3e-3)
	assert.Equal(t, float32(-4.0), c.Decode(LegacyMinCode, 0))
}

// Every code decodes to a value that encodes back to the same code. Any
// mismatch is collected so a failure lists the offending codes.
func TestRoundTripExhaustive(t *testing.T) {
	t.Parallel()

	for _, flags := range []Flags{HighSNR, 0, HighSNR | ByteSwap, ByteSwap} {
		c := NewCodec()
		var mismatches []uint16
		for code := 0; code < tableSize; code++ {
			v := c.Decode(uint16(code), flags)
			if got := c.Encode(v, flags); got != uint16(code) {
				mismatches = append(mismatches, uint16(code))
			}
		}
		assert.Empty(t, mismatches, "flags=%#x", flags)
	}
}

func TestHighSNRUnderflowBranch(t *testing.T) {
	t.Parallel()
	c := NewCodec()

	code := c.Encode(1e-5, HighSNR)
	assert.Zero(t, code&0xF000, "underflow values carry a zero exponent nibble")
	assert.InDelta(t, 1e-5, c.Decode(code, HighSNR), 1.0/(1<<24))

	neg := c.Encode(-1e-5, HighSNR)
	assert.Zero(t, neg&0xF000)
	assert.InDelta(t, -1e-5, c.Decode(neg, HighSNR), 1.0/(1<<24))
}

func TestByteSwapIsSymmetric(t *testing.T) {
	t.Parallel()
	c := NewCodec()

	for _, v := range []float32{0.5, -1.25, 3.0, 1e-3, -2e-5} {
		plain := c.Encode(v, HighSNR)
		swapped := c.Encode(v, HighSNR|ByteSwap)
		assert.Equal(t, bits.ReverseBytes16(plain), swapped)
		assert.Equal(t, c.Decode(plain, HighSNR), c.Decode(swapped, HighSNR|ByteSwap))
	}
}

func TestDecodeSliceUsesTablesLazily(t *testing.T) {
	t.Parallel()
	c := NewCodec()
	require.False(t, c.TableBuilt(HighSNR))

	src := []uint16{0x0000, 0x1234, 0xF7FF, 0xF800, 0x0800}
	dst := make([]float32, len(src))
	c.DecodeSlice(dst, src, HighSNR)

	assert.True(t, c.TableBuilt(HighSNR))
	assert.False(t, c.TableBuilt(0))
	assert.False(t, c.TableBuilt(HighSNR|ByteSwap))
	for i, code := range src {
		assert.Equal(t, c.Decode(code, HighSNR), dst[i])
	}
}

func TestWithoutTablesMatchesTables(t *testing.T) {
	t.Parallel()
	direct := NewCodec(WithoutTables())
	table := NewCodec()

	src := make([]uint16, tableSize)
	for i := range src {
		src[i] = uint16(i)
	}
	for _, flags := range []Flags{0, HighSNR, ByteSwap, HighSNR | ByteSwap} {
		a := make([]float32, len(src))
		b := make([]float32, len(src))
		direct.DecodeSlice(a, src, flags)
		table.DecodeSlice(b, src, flags)
		assert.Equal(t, a, b, "flags=%#x", flags)
		assert.False(t, direct.TableBuilt(flags))
	}
}

func TestEncodeSliceShortDestination(t *testing.T) {
	t.Parallel()
	c := NewCodec()
	dst := make([]uint16, 2)
	c.EncodeSlice(dst, []float32{1, 2, 3}, 0)
	assert.Equal(t, c.Encode(1, 0), dst[0])
	assert.Equal(t, c.Encode(2, 0), dst[1])
}

func TestIQInterleave(t *testing.T) {
	t.Parallel()
	c := NewCodec()

	i := []float32{0.25, -0.5, 1.5}
	q := []float32{-0.125, 2.0, -3.75}
	packed := make([]uint16, 6)
	c.EncodeIQ(packed, i, q, HighSNR)

	gotI := make([]float32, 3)
	gotQ := make([]float32, 3)
	c.DecodeIQ(gotI, gotQ, packed, HighSNR)
	assert.Equal(t, i, gotI)
	assert.Equal(t, q, gotQ)
}

func TestEncodeMonotonic(t *testing.T) {
	t.Parallel()
	c := NewCodec()

	rapid.Check(t, func(rt *rapid.T) {
		flags := rapid.SampledFrom([]Flags{0, HighSNR}).Draw(rt, "flags")
		a := rapid.Float32Range(-5, 5).Draw(rt, "a")
		b := rapid.Float32Range(-5, 5).Draw(rt, "b")
		if a > b {
			a, b = b, a
		}
		da := c.Decode(c.Encode(a, flags), flags)
		db := c.Decode(c.Encode(b, flags), flags)
		if da > db {
			rt.Fatalf("decode(encode(%g))=%g > decode(encode(%g))=%g", a, da, b, db)
		}
	})
}

func TestEncodeRelativeError(t *testing.T) {
	t.Parallel()
	c := NewCodec()

	rapid.Check(t, func(rt *rapid.T) {
		mag := rapid.Float64Range(1e-3, 3.99).Draw(rt, "mag")
		neg := rapid.Bool().Draw(rt, "neg")
		v := float32(mag)
		if neg {
			v = -v
		}
		hs := c.Decode(c.Encode(v, HighSNR), HighSNR)
		if d := math.Abs(float64(hs - v)); d > math.Abs(float64(v))/4096*1.01 {
			rt.Fatalf("high snr error %g too large for %g", d, v)
		}
		lg := c.Decode(c.Encode(v, 0), 0)
		if d := math.Abs(float64(lg - v)); d > math.Abs(float64(v))/2048*1.01 {
			rt.Fatalf("legacy error %g too large for %g", d, v)
		}
	})
}
