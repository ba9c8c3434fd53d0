package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/gpusched/shapes"
)

func mustShape(t *testing.T, comps ...int64) shapes.Dims {
	d, err := shapes.New(comps...)
	require.NoError(t, err)
	return d
}

func TestNewDefaults(t *testing.T) {
	shape := mustShape(t, 2, 3)
	buf := NewTensorBuf(2*3*4, 0)
	tn, err := New(0, shape, FP32, buf, Config{ImportedRank: -1})
	require.NoError(t, err)
	assert.True(t, tn.LDims.Equal(shape))
	assert.Equal(t, shapes.Dims{0, 0}, tn.Offs)
	assert.Equal(t, shapes.Dims{1, 1}, tn.Pads)
	assert.Equal(t, -1, tn.ImportedRank)
	assert.False(t, tn.Exported)
}

func TestNewRejectsMismatchedRank(t *testing.T) {
	shape := mustShape(t, 2, 3)
	buf := NewTensorBuf(100, 0)
	_, err := New(0, shape, FP32, buf, Config{ImportedRank: -1, Offs: shapes.Dims{0, 0, 0}})
	require.Error(t, err)
}

func TestNewRejectsOutOfBounds(t *testing.T) {
	shape := mustShape(t, 4)
	ldims := mustShape(t, 4)
	offs := mustShape(t, 2)
	buf := NewTensorBuf(100, 0)
	_, err := New(0, shape, FP32, buf, Config{ImportedRank: -1, LDims: ldims, Offs: offs})
	require.Error(t, err)
}

// TestOffsetLaw verifies that for any valid tensor, offset(i) is unique
// and lies within [0, size(ldims)).
func TestOffsetLaw(t *testing.T) {
	shape := mustShape(t, 3, 4, 5)
	ldims := mustShape(t, 3, 6, 7) // padded beyond shape
	buf := NewTensorBuf(3*6*7*4, 0)
	tn, err := New(0, shape, FP32, buf, Config{ImportedRank: -1, LDims: ldims})
	require.NoError(t, err)

	seen := map[int64]bool{}
	maxOff := tn.LDims.NElements()
	for i0 := int64(0); i0 < shape[0]; i0++ {
		for i1 := int64(0); i1 < shape[1]; i1++ {
			for i2 := int64(0); i2 < shape[2]; i2++ {
				off, err := tn.Offset(i0, i1, i2)
				require.NoError(t, err)
				assert.False(t, seen[off], "offset %d repeated", off)
				seen[off] = true
				assert.GreaterOrEqual(t, off, int64(0))
				assert.Less(t, off, maxOff)
			}
		}
	}
}

// TestUpdatePadsMonotonic verifies that pads and ldims only grow.
func TestUpdatePadsMonotonic(t *testing.T) {
	shape := mustShape(t, 8, 8)
	ldims := mustShape(t, 8, 8)
	buf := NewTensorBuf(8*8*4, 0)
	tn, err := New(0, shape, FP32, buf, Config{ImportedRank: -1, LDims: ldims})
	require.NoError(t, err)

	oldPads := tn.Pads.Clone()
	oldLDims := tn.LDims.Clone()

	require.NoError(t, tn.UpdatePads([]int64{4}))

	for i := range oldPads {
		assert.Equal(t, int64(0), tn.Pads[i]%oldPads[i], "new pad must be a multiple of the old pad")
		assert.GreaterOrEqual(t, tn.LDims[i], oldLDims[i])
	}
	// Trailing axis aligned to 4.
	assert.Equal(t, int64(0), tn.Pads[1]%4)
}

func TestUpdatePadsRejectsNonPositive(t *testing.T) {
	shape := mustShape(t, 4)
	buf := NewTensorBuf(16, 0)
	tn, err := New(0, shape, FP32, buf, Config{ImportedRank: -1})
	require.NoError(t, err)
	require.Error(t, tn.UpdatePads([]int64{0}))
	require.Error(t, tn.UpdatePads([]int64{-2}))
}

func TestOverlapsWith(t *testing.T) {
	buf := NewTensorBuf(100, 0)
	a, err := New(0, mustShape(t, 4), FP32, buf, Config{ImportedRank: -1, LDims: mustShape(t, 10), Offs: shapes.Dims{0}})
	require.NoError(t, err)
	b, err := New(1, mustShape(t, 4), FP32, buf, Config{ImportedRank: -1, LDims: mustShape(t, 10), Offs: mustShape(t, 4)})
	require.NoError(t, err)
	c, err := New(2, mustShape(t, 4), FP32, buf, Config{ImportedRank: -1, LDims: mustShape(t, 10), Offs: mustShape(t, 2)})
	require.NoError(t, err)

	assert.False(t, a.OverlapsWith(b))
	assert.True(t, a.OverlapsWith(c))
}

// TestTransposeRoundTrip verifies that transposing by a permutation and
// then by its inverse reconstructs the original Shape/LDims/Offs/Pads.
func TestTransposeRoundTrip(t *testing.T) {
	shape := mustShape(t, 3, 2048, 96, 128)
	ldims := mustShape(t, 3, 2048, 96, 128)
	buf := NewTensorBuf(3*2048*96*128*4, 0)
	tn, err := New(0, shape, FP32, buf, Config{ImportedRank: -1, LDims: ldims})
	require.NoError(t, err)

	perm := []int{0, 2, 1, 3}
	transposed, err := tn.Transpose(perm)
	require.NoError(t, err)
	assert.Equal(t, shapes.Dims{3, 96, 2048, 128}, transposed.Shape)
	assert.Same(t, tn.Buf, transposed.Buf)

	restored, err := transposed.Transpose(InvertPerm(perm))
	require.NoError(t, err)
	assert.True(t, restored.Shape.Equal(tn.Shape))
	assert.True(t, restored.LDims.Equal(tn.LDims))
	assert.True(t, restored.Offs.Equal(tn.Offs))
	assert.True(t, restored.Pads.Equal(tn.Pads))
}

// TestTransposeRejectsBadPerm verifies that a non-permutation axis vector
// is rejected rather than silently producing a corrupt view.
func TestTransposeRejectsBadPerm(t *testing.T) {
	shape := mustShape(t, 2, 3, 4)
	buf := NewTensorBuf(2*3*4*4, 0)
	tn, err := New(0, shape, FP32, buf, Config{ImportedRank: -1})
	require.NoError(t, err)

	_, err = tn.Transpose([]int{0, 1})
	require.Error(t, err)
	_, err = tn.Transpose([]int{0, 1, 1})
	require.Error(t, err)
	_, err = tn.Transpose([]int{0, 1, 3})
	require.Error(t, err)
}

func TestTypeBytes(t *testing.T) {
	w, err := TypeBytes(FP32)
	require.NoError(t, err)
	assert.Equal(t, 4, w)

	w, err = TypeBytes(FP16)
	require.NoError(t, err)
	assert.Equal(t, 2, w)

	w, err = TypeBytes(Byte)
	require.NoError(t, err)
	assert.Equal(t, 1, w)

	w, err = TypeBytes(Int32)
	require.NoError(t, err)
	assert.Equal(t, 4, w)
}
