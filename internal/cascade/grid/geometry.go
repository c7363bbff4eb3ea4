// Package grid maps rectangular radar maps onto the padded square cascade
// domain and back.
package grid

import "fmt"

// DefaultMapOffset is the padding added on each side of the larger map edge.
const DefaultMapOffset = 64

// Geometry describes a rows×cols map centred in a CascadeSize×CascadeSize
// square.
type Geometry struct {
	Rows        int
	Cols        int
	MapOffset   int
	CascadeSize int
}

// NewGeometry sizes the cascade square for a rows×cols map.
func NewGeometry(rows, cols, mapOffset int) (Geometry, error) {
	if rows <= 0 || cols <= 0 {
		return Geometry{}, fmt.Errorf("map must have positive dimensions, got %dx%d", rows, cols)
	}
	if mapOffset < 0 {
		return Geometry{}, fmt.Errorf("map offset must be non-negative, got %d", mapOffset)
	}
	return Geometry{
		Rows:        rows,
		Cols:        cols,
		MapOffset:   mapOffset,
		CascadeSize: max(rows, cols) + 2*mapOffset,
	}, nil
}

// MapArraySize returns rows×cols.
func (g Geometry) MapArraySize() int { return g.Rows * g.Cols }

// CascadeArraySize returns CascadeSize².
func (g Geometry) CascadeArraySize() int { return g.CascadeSize * g.CascadeSize }

// RowOffset returns the first cascade row covered by the map.
func (g Geometry) RowOffset() int { return (g.CascadeSize - g.Rows) / 2 }

// ColOffset returns the first cascade column covered by the map.
func (g Geometry) ColOffset() int { return (g.CascadeSize - g.Cols) / 2 }

// ToCascade centres in (map domain) in out (cascade domain) and fills the
// rest of out with noData. When mask is non-nil it is rewritten: 1 where a
// valid map pixel was copied, 0 elsewhere.
func (g Geometry) ToCascade(in, out []float32, mask []uint8, noData float32) {
	Fill(out, noData)
	if mask != nil {
		clear(mask)
	}
	ro, co := g.RowOffset(), g.ColOffset()
	for r := 0; r < g.Rows; r++ {
		src := in[r*g.Cols : (r+1)*g.Cols]
		base := (r+ro)*g.CascadeSize + co
		copy(out[base:base+g.Cols], src)
		if mask == nil {
			continue
		}
		for c, v := range src {
			if Valid(v, noData) {
				mask[base+c] = 1
			}
		}
	}
}

// FromCascade copies the centred map window of in (cascade domain) to out
// (map domain).
func (g Geometry) FromCascade(in, out []float32) {
	ro, co := g.RowOffset(), g.ColOffset()
	for r := 0; r < g.Rows; r++ {
		base := (r+ro)*g.CascadeSize + co
		copy(out[r*g.Cols:(r+1)*g.Cols], in[base:base+g.Cols])
	}
}

// Valid reports whether v is real data. The one-unit slack absorbs
// round-off in values that were stored as noData.
func Valid(v, noData float32) bool {
	return v > noData+1
}

// Fill sets every element of dst to v.
func Fill(dst []float32, v float32) {
	for i := range dst {
		dst[i] = v
	}
}

// CountMask returns the number of set mask pixels.
func CountMask(mask []uint8) int {
	n := 0
	for _, m := range mask {
		n += int(m)
	}
	return n
}

// Upscale averages each 2×2 block of a rows×cols map into one pixel of a
// (rows/2)×(cols/2) map. Missing pixels are left out of the average; a
// block with none valid is noData. An odd last row or column is dropped.
func Upscale(in []float32, rows, cols int, noData float32) []float32 {
	or, oc := rows/2, cols/2
	out := make([]float32, or*oc)
	for r := 0; r < or; r++ {
		for c := 0; c < oc; c++ {
			var sum float32
			n := 0
			for _, i := range [4]int{
				2*r*cols + 2*c, 2*r*cols + 2*c + 1,
				(2*r+1)*cols + 2*c, (2*r+1)*cols + 2*c + 1,
			} {
				if Valid(in[i], noData) {
					sum += in[i]
					n++
				}
			}
			if n == 0 {
				out[r*oc+c] = noData
				continue
			}
			out[r*oc+c] = sum / float32(n)
		}
	}
	return out
}
