package spectral

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Plan is a reusable unnormalized 2-D real FFT of an n×n field. The
// half spectrum is laid out as n rows of Stride() columns, row-major, which
// is the layout the filter masks index.
//
// A Plan owns scratch buffers and is not safe for concurrent use.
type Plan struct {
	n      int
	stride int
	rows   *fourier.FFT
	cols   *fourier.CmplxFFT

	rowCoeff []complex128
	column   []complex128
	work     []complex128
}

// NewPlan allocates a plan for n×n fields.
func NewPlan(n int) (*Plan, error) {
	if n < 2 {
		return nil, fmt.Errorf("fft size must be at least 2, got %d", n)
	}
	stride := n/2 + 1
	return &Plan{
		n:        n,
		stride:   stride,
		rows:     fourier.NewFFT(n),
		cols:     fourier.NewCmplxFFT(n),
		rowCoeff: make([]complex128, stride),
		column:   make([]complex128, n),
		work:     make([]complex128, n*stride),
	}, nil
}

// Size returns n.
func (p *Plan) Size() int { return p.n }

// Stride returns the number of complex columns per row, n/2+1.
func (p *Plan) Stride() int { return p.stride }

// ArraySize returns the number of complex coefficients, n×(n/2+1).
func (p *Plan) ArraySize() int { return p.n * p.stride }

// Forward transforms src (n×n) into dst (n×Stride). Rows of src that are
// entirely zero are skipped.
func (p *Plan) Forward(dst []complex128, src []float64) {
	n, s := p.n, p.stride
	for r := 0; r < n; r++ {
		row := src[r*n : (r+1)*n]
		out := dst[r*s : (r+1)*s]
		if allZero(row) {
			clear(out)
			continue
		}
		p.rows.Coefficients(p.rowCoeff, row)
		copy(out, p.rowCoeff)
	}
	for c := 0; c < s; c++ {
		for r := 0; r < n; r++ {
			p.column[r] = dst[r*s+c]
		}
		p.cols.Coefficients(p.column, p.column)
		for r := 0; r < n; r++ {
			dst[r*s+c] = p.column[r]
		}
	}
}

// Inverse transforms coeff (n×Stride) back to the spatial domain, writing
// only the first `rows` rows of the n×n result into dst. coeff is not
// modified. The output is scaled by n² relative to the original field.
func (p *Plan) Inverse(dst []float64, coeff []complex128, rows int) {
	n, s := p.n, p.stride
	rows = max(0, min(rows, n))
	copy(p.work, coeff)
	for c := 0; c < s; c++ {
		for r := 0; r < n; r++ {
			p.column[r] = p.work[r*s+c]
		}
		p.cols.Sequence(p.column, p.column)
		for r := 0; r < n; r++ {
			p.work[r*s+c] = p.column[r]
		}
	}
	for r := 0; r < rows; r++ {
		p.rows.Sequence(dst[r*n:(r+1)*n], p.work[r*s:(r+1)*s])
	}
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
