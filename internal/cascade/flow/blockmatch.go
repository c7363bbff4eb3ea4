package flow

import (
	"fmt"
	"math"
)

// MatcherConfig sizes a BlockMatcher.
type MatcherConfig struct {
	Rows int
	Cols int

	BlockSize    int     // edge of the matched tiles in pixels (default: 8)
	SearchRadius int     // largest displacement tried per axis (default: 4)
	StepMinutes  float64 // length of one advection step (default: 5)

	// MinValidFraction is the share of a tile that must hold data in both
	// maps for the tile to vote (default: 0.5).
	MinValidFraction float64
}

func (c *MatcherConfig) applyDefaults() {
	if c.BlockSize == 0 {
		c.BlockSize = 8
	}
	if c.SearchRadius == 0 {
		c.SearchRadius = 4
	}
	if c.StepMinutes == 0 {
		c.StepMinutes = 5
	}
	if c.MinValidFraction == 0 {
		c.MinValidFraction = 0.5
	}
}

// Validate checks the configuration after defaults are applied.
func (c MatcherConfig) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("grid must have positive dimensions, got %dx%d", c.Rows, c.Cols)
	}
	if c.BlockSize < 1 {
		return fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	if c.SearchRadius < 0 {
		return fmt.Errorf("search radius must be non-negative, got %d", c.SearchRadius)
	}
	if c.StepMinutes <= 0 {
		return fmt.Errorf("step minutes must be positive, got %f", c.StepMinutes)
	}
	if c.MinValidFraction <= 0 || c.MinValidFraction > 1 {
		return fmt.Errorf("min valid fraction must be in (0, 1], got %f", c.MinValidFraction)
	}
	return nil
}

// BlockMatcher tracks motion by matching square tiles of the current map
// against shifted tiles of the previous one, minimising the mean absolute
// difference. Tile vectors are interpolated bilinearly between tile
// centres to give a dense field. Advection is semi-Lagrangian: each output
// pixel is traced back along the velocity field and sampled bilinearly.
//
// A BlockMatcher is not safe for concurrent use.
type BlockMatcher struct {
	cfg   MatcherConfig
	east  []float32
	south []float32
	tmp   []float32
}

// NewBlockMatcher returns a matcher with a zero velocity field.
func NewBlockMatcher(cfg MatcherConfig) (*BlockMatcher, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.Rows * cfg.Cols
	return &BlockMatcher{
		cfg:   cfg,
		east:  make([]float32, n),
		south: make([]float32, n),
		tmp:   make([]float32, n),
	}, nil
}

// Config returns the configuration with defaults applied.
func (m *BlockMatcher) Config() MatcherConfig { return m.cfg }

func (m *BlockMatcher) size() int { return m.cfg.Rows * m.cfg.Cols }

// tileVector is the displacement found for one tile.
type tileVector struct {
	dx, dy float64
	ok     bool
}

// FindVelocities estimates a dense velocity field from prev to curr. Tiles
// without enough data, or without any texture, take the mean of the tiles
// that matched; when no tile matched the field is zero.
func (m *BlockMatcher) FindVelocities(prev, curr []float32, noData float32, deltaMinutes float64) error {
	if len(prev) != m.size() || len(curr) != m.size() {
		return fmt.Errorf("maps must have %d values, got %d and %d", m.size(), len(prev), len(curr))
	}
	bs := m.cfg.BlockSize
	tilesR := (m.cfg.Rows + bs - 1) / bs
	tilesC := (m.cfg.Cols + bs - 1) / bs
	tiles := make([]tileVector, tilesR*tilesC)

	var sumX, sumY float64
	matched := 0
	for tr := 0; tr < tilesR; tr++ {
		for tc := 0; tc < tilesC; tc++ {
			v := m.matchTile(prev, curr, noData, tr*bs, tc*bs)
			tiles[tr*tilesC+tc] = v
			if v.ok {
				sumX += v.dx
				sumY += v.dy
				matched++
				tracef("tile %d,%d moved %v,%v", tr, tc, v.dx, v.dy)
			}
		}
	}

	var meanX, meanY float64
	if matched > 0 {
		meanX, meanY = sumX/float64(matched), sumY/float64(matched)
	}
	for i := range tiles {
		if !tiles[i].ok {
			tiles[i] = tileVector{dx: meanX, dy: meanY, ok: true}
		}
	}

	// Displacements were measured over deltaMinutes; scale them to one step.
	scale := 1.0
	if deltaMinutes > 0 {
		scale = m.cfg.StepMinutes / deltaMinutes
	}
	m.interpolateTiles(tiles, tilesR, tilesC, scale)
	diagf("matched %d of %d tiles, mean motion east=%.3f south=%.3f px/step",
		matched, len(tiles), meanX*scale, meanY*scale)
	return nil
}

// matchTile searches the displacement of the tile whose top-left pixel is
// (r0, c0). Ties keep the smaller displacement.
func (m *BlockMatcher) matchTile(prev, curr []float32, noData float32, r0, c0 int) tileVector {
	rows, cols := m.cfg.Rows, m.cfg.Cols
	r1 := min(r0+m.cfg.BlockSize, rows)
	c1 := min(c0+m.cfg.BlockSize, cols)
	area := (r1 - r0) * (c1 - c0)
	need := int(math.Ceil(m.cfg.MinValidFraction * float64(area)))

	// A tile with no spread in the current map cannot tell shifts apart.
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			if v := curr[r*cols+c]; v > noData+1 {
				lo = min(lo, v)
				hi = max(hi, v)
			}
		}
	}
	if hi <= lo {
		return tileVector{}
	}

	best := tileVector{}
	bestCost := math.Inf(1)
	bestDist := math.MaxInt
	rad := m.cfg.SearchRadius
	for dy := -rad; dy <= rad; dy++ {
		for dx := -rad; dx <= rad; dx++ {
			var cost float64
			n := 0
			for r := r0; r < r1; r++ {
				pr := r - dy
				if pr < 0 || pr >= rows {
					continue
				}
				for c := c0; c < c1; c++ {
					pc := c - dx
					if pc < 0 || pc >= cols {
						continue
					}
					a, b := curr[r*cols+c], prev[pr*cols+pc]
					if a <= noData+1 || b <= noData+1 {
						continue
					}
					cost += math.Abs(float64(a - b))
					n++
				}
			}
			if n < need {
				continue
			}
			cost /= float64(n)
			dist := dx*dx + dy*dy
			if cost < bestCost || (cost == bestCost && dist < bestDist) {
				bestCost, bestDist = cost, dist
				best = tileVector{dx: float64(dx), dy: float64(dy), ok: true}
			}
		}
	}
	return best
}

// interpolateTiles spreads the tile vectors over the grid, bilinearly
// between tile centres and constant beyond the outermost centres.
func (m *BlockMatcher) interpolateTiles(tiles []tileVector, tilesR, tilesC int, scale float64) {
	bs := float64(m.cfg.BlockSize)
	for r := 0; r < m.cfg.Rows; r++ {
		ty, fy, ty1 := tileCoord(float64(r), bs, tilesR)
		for c := 0; c < m.cfg.Cols; c++ {
			tx, fx, tx1 := tileCoord(float64(c), bs, tilesC)
			t00 := tiles[ty*tilesC+tx]
			t01 := tiles[ty*tilesC+tx1]
			t10 := tiles[ty1*tilesC+tx]
			t11 := tiles[ty1*tilesC+tx1]
			w00 := (1 - fx) * (1 - fy)
			w01 := fx * (1 - fy)
			w10 := (1 - fx) * fy
			w11 := fx * fy
			i := r*m.cfg.Cols + c
			m.east[i] = float32(scale * (w00*t00.dx + w01*t01.dx + w10*t10.dx + w11*t11.dx))
			m.south[i] = float32(scale * (w00*t00.dy + w01*t01.dy + w10*t10.dy + w11*t11.dy))
		}
	}
}

// tileCoord locates pixel p between the centres of tiles t and t1 with
// fractional offset f.
func tileCoord(p, bs float64, tiles int) (t int, f float64, t1 int) {
	pos := (p+0.5)/bs - 0.5
	if pos <= 0 {
		return 0, 0, 0
	}
	if pos >= float64(tiles-1) {
		return tiles - 1, 0, tiles - 1
	}
	t = int(pos)
	return t, pos - float64(t), t + 1
}

// Velocities returns copies of the east and south fields.
func (m *BlockMatcher) Velocities() (east, south []float32) {
	return append([]float32(nil), m.east...), append([]float32(nil), m.south...)
}

// SetVelocities copies east and south into the matcher.
func (m *BlockMatcher) SetVelocities(east, south []float32) error {
	if len(east) != m.size() || len(south) != m.size() {
		return fmt.Errorf("velocities must have %d values, got %d and %d", m.size(), len(east), len(south))
	}
	copy(m.east, east)
	copy(m.south, south)
	return nil
}

// Advect traces every output pixel back steps times along the velocity
// field and samples in once at the departure point. Advecting twice by one
// step therefore smooths more than advecting once by two. in and out may
// be the same slice.
func (m *BlockMatcher) Advect(steps int, noData float32, in, out []float32) error {
	if len(in) != m.size() || len(out) != m.size() {
		return fmt.Errorf("fields must have %d values, got %d and %d", m.size(), len(in), len(out))
	}
	if steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", steps)
	}
	src := in
	if &in[0] == &out[0] {
		copy(m.tmp, in)
		src = m.tmp
	}
	rows, cols := m.cfg.Rows, m.cfg.Cols
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			y, x := float64(r), float64(c)
			for s := 0; s < steps; s++ {
				u := m.sampleVelocity(m.east, y, x)
				v := m.sampleVelocity(m.south, y, x)
				x -= u
				y -= v
			}
			out[r*cols+c] = sample(src, rows, cols, y, x, noData)
		}
	}
	return nil
}

// sampleVelocity interpolates f at (y, x), clamping to the grid edge.
func (m *BlockMatcher) sampleVelocity(f []float32, y, x float64) float64 {
	rows, cols := m.cfg.Rows, m.cfg.Cols
	y = math.Min(math.Max(y, 0), float64(rows-1))
	x = math.Min(math.Max(x, 0), float64(cols-1))
	v := sample(f, rows, cols, y, x, float32(math.Inf(-1)))
	return float64(v)
}

// sample interpolates f bilinearly at (y, x). A corner that carries weight
// and lies off the grid or on missing data makes the result noData.
func sample(f []float32, rows, cols int, y, x float64, noData float32) float32 {
	y0f, x0f := math.Floor(y), math.Floor(x)
	fy, fx := y-y0f, x-x0f
	y0, x0 := int(y0f), int(x0f)

	var acc float64
	corners := [4]struct {
		dy, dx int
		w      float64
	}{
		{0, 0, (1 - fy) * (1 - fx)},
		{0, 1, (1 - fy) * fx},
		{1, 0, fy * (1 - fx)},
		{1, 1, fy * fx},
	}
	for _, k := range corners {
		if k.w == 0 {
			continue
		}
		r, c := y0+k.dy, x0+k.dx
		if r < 0 || r >= rows || c < 0 || c >= cols {
			return noData
		}
		v := f[r*cols+c]
		if v <= noData+1 {
			return noData
		}
		acc += k.w * float64(v)
	}
	return float32(acc)
}
