package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeometry(t *testing.T) {
	t.Parallel()

	g, err := NewGeometry(64, 40, DefaultMapOffset)
	require.NoError(t, err)
	assert.Equal(t, 192, g.CascadeSize)
	assert.Equal(t, 64, g.RowOffset())
	assert.Equal(t, 76, g.ColOffset())
	assert.Equal(t, 64*40, g.MapArraySize())
	assert.Equal(t, 192*192, g.CascadeArraySize())

	_, err = NewGeometry(0, 10, 64)
	assert.Error(t, err)
	_, err = NewGeometry(10, 10, -1)
	assert.Error(t, err)
}

func TestToFromCascadeRoundTrip(t *testing.T) {
	t.Parallel()

	const noData = -999
	g, err := NewGeometry(3, 5, 2)
	require.NoError(t, err)

	in := make([]float32, g.MapArraySize())
	for i := range in {
		in[i] = float32(i)
	}
	in[7] = noData

	out := make([]float32, g.CascadeArraySize())
	mask := make([]uint8, g.CascadeArraySize())
	g.ToCascade(in, out, mask, noData)

	assert.Equal(t, g.MapArraySize()-1, CountMask(mask))
	assert.Equal(t, float32(noData), out[0], "padding is noData")
	assert.Equal(t, uint8(0), mask[0])

	back := make([]float32, g.MapArraySize())
	g.FromCascade(out, back)
	assert.Equal(t, in, back)
}

func TestToCascadeWithoutMaskLeavesMaskAlone(t *testing.T) {
	t.Parallel()

	g, err := NewGeometry(2, 2, 1)
	require.NoError(t, err)
	out := make([]float32, g.CascadeArraySize())
	g.ToCascade([]float32{1, 2, 3, 4}, out, nil, -999)
	assert.Equal(t, float32(1), out[g.RowOffset()*g.CascadeSize+g.ColOffset()])
}

func TestValid(t *testing.T) {
	t.Parallel()
	assert.False(t, Valid(-999, -999))
	assert.False(t, Valid(-998.5, -999))
	assert.True(t, Valid(-997.9, -999))
	assert.True(t, Valid(0, -999))
}

func TestUpscale(t *testing.T) {
	t.Parallel()

	const noData = -999
	in := []float32{
		1, 3, 5, 5, 9,
		1, 3, noData, noData, 9,
		noData, noData, 2, 4, 9,
		noData, noData, 6, 8, 9,
		7, 7, 7, 7, 7,
	}
	out := Upscale(in, 5, 5, noData)
	assert.Equal(t, []float32{2, 5, noData, 5}, out)
}
