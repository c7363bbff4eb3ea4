package packiq

import (
	"math"
	"math/bits"
	"sync"
)

// Flags select the packed layout and byte order.
type Flags uint16

const (
	// HighSNR selects the 12-bit mantissa layout with linear underflow.
	HighSNR Flags = 0x0001
	// ByteSwap swaps the two bytes of every code on encode output and
	// decode input.
	ByteSwap Flags = 0x0002

	flagMask = HighSNR | ByteSwap
)

// Saturation codes for inputs at or beyond +/-4.0.
const (
	LegacyMaxCode  uint16 = 0xFBFF
	LegacyMinCode  uint16 = 0xFC00
	HighSNRMaxCode uint16 = 0xF7FF
	HighSNRMinCode uint16 = 0xF800
)

const (
	tableSize = 1 << 16

	// Linear underflow window of the high-SNR layout. The bounds are not
	// symmetric: the negative edge admits -2048/2^24 exactly.
	underflowLow  = -1.221299e-4
	underflowHigh = 1.220703e-4
	underflowGain = 1.677721e7
)

// Codec encodes and decodes packed IQ codes. The zero value is not usable;
// construct with NewCodec. A Codec may be shared between goroutines.
type Codec struct {
	mu       sync.Mutex
	noTables bool
	tables   [4]*[tableSize]float32
	built    [4]bool
}

// Option configures a Codec.
type Option func(*Codec)

// WithoutTables disables the lookup tables so every decode is computed
// directly. Use it where 256 KiB per flag combination is too much memory.
func WithoutTables() Option {
	return func(c *Codec) { c.noTables = true }
}

// NewCodec returns a codec with lazily built decode tables.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode packs v into a 16-bit code.
func (c *Codec) Encode(v float32, f Flags) uint16 {
	var code uint16
	if f&HighSNR != 0 {
		code = encodeHighSNR(float64(v))
	} else {
		code = encodeLegacy(float64(v))
	}
	if f&ByteSwap != 0 {
		code = bits.ReverseBytes16(code)
	}
	return code
}

// Decode unpacks a 16-bit code. Every code decodes to some value, including
// codes that Encode never produces.
func (c *Codec) Decode(code uint16, f Flags) float32 {
	if f&ByteSwap != 0 {
		code = bits.ReverseBytes16(code)
	}
	if f&HighSNR != 0 {
		return decodeHighSNR(code)
	}
	return decodeLegacy(code)
}

// EncodeSlice packs min(len(dst), len(src)) values.
func (c *Codec) EncodeSlice(dst []uint16, src []float32, f Flags) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = c.Encode(src[i], f)
	}
}

// DecodeSlice unpacks min(len(dst), len(src)) codes, using the lookup table
// for f when one is available.
func (c *Codec) DecodeSlice(dst []float32, src []uint16, f Flags) {
	n := min(len(dst), len(src))
	if t := c.table(f); t != nil {
		for i := 0; i < n; i++ {
			dst[i] = t[src[i]]
		}
		return
	}
	for i := 0; i < n; i++ {
		dst[i] = c.Decode(src[i], f)
	}
}

// EncodeIQ packs interleaved I/Q pairs: dst[2k] from i[k], dst[2k+1] from q[k].
func (c *Codec) EncodeIQ(dst []uint16, i, q []float32, f Flags) {
	n := min(len(i), len(q), len(dst)/2)
	for k := 0; k < n; k++ {
		dst[2*k] = c.Encode(i[k], f)
		dst[2*k+1] = c.Encode(q[k], f)
	}
}

// DecodeIQ splits interleaved packed pairs into separate I and Q slices.
func (c *Codec) DecodeIQ(i, q []float32, src []uint16, f Flags) {
	n := min(len(i), len(q), len(src)/2)
	t := c.table(f)
	for k := 0; k < n; k++ {
		if t != nil {
			i[k], q[k] = t[src[2*k]], t[src[2*k+1]]
			continue
		}
		i[k], q[k] = c.Decode(src[2*k], f), c.Decode(src[2*k+1], f)
	}
}

// TableBuilt reports whether the lookup table for f has been built.
func (c *Codec) TableBuilt(f Flags) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.built[f&flagMask]
}

// table returns the lookup table for f, building it on first use. It returns
// nil when tables are disabled.
func (c *Codec) table(f Flags) *[tableSize]float32 {
	idx := f & flagMask
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noTables {
		return nil
	}
	if !c.built[idx] {
		t := new([tableSize]float32)
		for code := 0; code < tableSize; code++ {
			t[code] = c.Decode(uint16(code), idx)
		}
		c.tables[idx] = t
		c.built[idx] = true
	}
	return c.tables[idx]
}

// nint rounds half up, matching floor(0.5+x).
func nint(x float64) int32 {
	return int32(math.Floor(0.5 + x))
}

func encodeHighSNR(x float64) uint16 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= 4.0:
		return HighSNRMaxCode
	case x <= -4.0:
		return HighSNRMinCode
	case x > underflowLow && x < underflowHigh:
		man := nint(underflowGain * x)
		man = max(-2048, min(2047, man))
		return uint16(man) & 0x0FFF
	}

	frac, exp := math.Frexp(x)
	man := nint(4096 * frac)
	exp += 13
	if man == 4096 {
		exp++
	} else if man == -2048 {
		exp--
	}
	if exp > 15 {
		if x < 0 {
			return HighSNRMinCode
		}
		return HighSNRMaxCode
	}
	var sign uint16
	if x < 0 {
		sign = 1
	}
	return uint16(exp)<<12 | sign<<11 | uint16(man)&0x07FF
}

func decodeHighSNR(code uint16) float32 {
	if code&0xF000 == 0 {
		// 12-bit two's complement value scaled by 2^-24.
		lin := int32(uint32(code) << 20)
		return float32(math.Ldexp(float64(lin), -44))
	}
	man := int32(code & 0x07FF)
	exp := int(code>>12) & 0x0F
	if code&0x0800 != 0 {
		man -= 0x1000
	} else {
		man |= 0x0800
	}
	return float32(math.Ldexp(float64(man), exp-25))
}

func encodeLegacy(x float64) uint16 {
	switch {
	case x == 0 || math.IsNaN(x):
		return 0
	case x >= 4.0:
		return LegacyMaxCode
	case x <= -4.0:
		return LegacyMinCode
	}

	frac, exp := math.Frexp(x)
	man := nint(2048 * frac)
	exp += 29
	if man == 2048 {
		exp++
	} else if man == -1024 {
		exp--
	}
	if exp < 0 {
		return 0
	}
	if exp > 31 {
		if x < 0 {
			return LegacyMinCode
		}
		return LegacyMaxCode
	}
	var sign uint16
	if x < 0 {
		sign = 1
	}
	return uint16(exp)<<11 | sign<<10 | uint16(man)&0x03FF
}

func decodeLegacy(code uint16) float32 {
	if code == 0 {
		return 0
	}
	man := int32(code & 0x03FF)
	exp := int(code>>11) & 0x1F
	if code&0x0400 != 0 {
		man -= 0x0800
	} else {
		man |= 0x0400
	}
	return float32(math.Ldexp(float64(man), exp-40))
}
