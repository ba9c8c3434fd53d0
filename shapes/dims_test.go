package shapes

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		d, err := New(3, 2048, 96, 128)
		require.NoError(t, err)
		assert.Equal(t, 4, d.NDims())
		assert.Equal(t, int64(3*2048*96*128), d.NElements())
	})

	t.Run("too many dims", func(t *testing.T) {
		_, err := New(1, 2, 3, 4, 5)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrShapeInvalid))
	})

	t.Run("zero component", func(t *testing.T) {
		_, err := New(2, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrShapeInvalid))
	})

	t.Run("negative component", func(t *testing.T) {
		_, err := New(2, -1)
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := New()
		require.Error(t, err)
	})
}

func TestPad(t *testing.T) {
	assert.Equal(t, int64(8), Pad(5, 8))
	assert.Equal(t, int64(8), Pad(8, 8))
	assert.Equal(t, int64(16), Pad(9, 8))
	assert.Equal(t, int64(5), Pad(5, 1))
	assert.Equal(t, int64(5), Pad(5, 0))
}

func TestLCM(t *testing.T) {
	assert.Equal(t, int64(12), LCM(4, 6))
	assert.Equal(t, int64(7), LCM(1, 7))
	assert.Equal(t, int64(7), LCM(7, 1))
	assert.Equal(t, int64(1), LCM(0, 0))
}

func TestDimsEqual(t *testing.T) {
	a, _ := New(2, 3)
	b, _ := New(2, 3)
	c, _ := New(2, 4)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Dims{2, 3, 1}))
}

func TestIsNoDim(t *testing.T) {
	assert.True(t, NoDim.IsNoDim())
	d, _ := New(1)
	assert.False(t, d.IsNoDim())
}
