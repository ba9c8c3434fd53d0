// Package tensor implements the logical tensor and buffer model: views
// over a TensorBuf with shape/ldims/offs/pads, the row-major offset
// arithmetic those views require, and a monotonic padding update.
package tensor

import (
	"github.com/pkg/errors"

	"github.com/flowmesh/gpusched/shapes"
)

// Tensor is a view over a TensorBuf.
type Tensor struct {
	ID   int
	Name string

	Buf *TensorBuf

	Shape shapes.Dims // logical extent per axis
	LDims shapes.Dims // leading dimensions (physical stride skeleton)
	Offs  shapes.Dims // per-axis origin of the view inside the buffer
	Pads  shapes.Dims // per-axis alignment
	Type  DType

	// Exported, if true and StreamID >= 0 on the backing buffer, publishes
	// this buffer to other ranks.
	Exported bool

	// ImportedRank, if >= 0, means the backing buffer actually lives on
	// that remote rank; this tensor is a local placeholder for it.
	ImportedRank int

	// ProducerOp is the id of the Op that produced this tensor, or -1 if
	// it is a graph input / has no producer. Stored as an id rather than a
	// pointer so a Tensor never holds a direct reference into the op graph.
	ProducerOp int
}

// Config bundles the optional constructor arguments for New. LDims, Offs
// and Pads may be left as shapes.NoDim to take their default. ImportedRank
// has no implicit default: callers must set it to
// -1 explicitly for a local (non-imported) tensor, since 0 is itself a
// valid rank number.
type Config struct {
	LDims        shapes.Dims
	Offs         shapes.Dims
	Pads         shapes.Dims
	Exported     bool
	ImportedRank int
	Name         string
}

// New constructs and validates a Tensor. shape must not be NoDim.
// Defaults, taken from ark/tensor.cc: an omitted ldims equals
// shape, an omitted offs is all-zero, an omitted pads is all-one.
func New(id int, shape shapes.Dims, dtype DType, buf *TensorBuf, cfg Config) (*Tensor, error) {
	if shape.IsNoDim() {
		return nil, errors.Wrapf(shapes.ErrShapeInvalid, "tensor %d: shape must not be empty", id)
	}
	if !IsSupportedDType(dtype) {
		return nil, errors.Errorf("tensor %d: unsupported dtype %v", id, dtype)
	}
	ndims := shape.NDims()

	ldims := cfg.LDims
	if ldims.IsNoDim() {
		ldims = shape.Clone()
	} else if ldims.NDims() != ndims {
		return nil, errors.Wrapf(shapes.ErrShapeInvalid,
			"tensor %d: shape %s and ldims %s must have the same number of dims", id, shape, ldims)
	}

	offs := cfg.Offs
	if offs.IsNoDim() {
		offs = make(shapes.Dims, ndims)
	} else if offs.NDims() != ndims {
		return nil, errors.Wrapf(shapes.ErrShapeInvalid,
			"tensor %d: shape %s and offs %s must have the same number of dims", id, shape, offs)
	}

	pads := cfg.Pads
	if pads.IsNoDim() {
		pads = make(shapes.Dims, ndims)
		for i := range pads {
			pads[i] = 1
		}
	} else if pads.NDims() != ndims {
		return nil, errors.Wrapf(shapes.ErrShapeInvalid,
			"tensor %d: shape %s and pads %s must have the same number of dims", id, shape, pads)
	}

	for i := 0; i < ndims; i++ {
		if pads[i] <= 0 {
			return nil, errors.Wrapf(shapes.ErrShapeInvalid, "tensor %d: pads[%d]=%d must be > 0", id, i, pads[i])
		}
		if ldims[i]%pads[i] != 0 {
			return nil, errors.Wrapf(shapes.ErrShapeInvalid,
				"tensor %d: ldims[%d]=%d is not a multiple of pads[%d]=%d", id, i, ldims[i], i, pads[i])
		}
	}
	for i := 0; i < ndims; i++ {
		if offs[i]+shape[i] > ldims[i] {
			return nil, errors.Wrapf(shapes.ErrShapeInvalid,
				"tensor %d: offs[%d]+shape[%d]=%d exceeds ldims[%d]=%d", id, i, i, offs[i]+shape[i], i, ldims[i])
		}
	}

	return &Tensor{
		ID:           id,
		Name:         cfg.Name,
		Buf:          buf,
		Shape:        shape,
		LDims:        ldims,
		Offs:         offs,
		Pads:         pads,
		Type:         dtype,
		Exported:     cfg.Exported,
		ImportedRank: cfg.ImportedRank,
		ProducerOp:   -1,
	}, nil
}

// NDims returns the number of axes.
func (t *Tensor) NDims() int {
	return t.Shape.NDims()
}

// Size returns the number of elements in the tensor, excluding padding.
func (t *Tensor) Size() int64 {
	return t.Shape.NElements()
}

// UpdatePads replaces pads[i] with lcm(pads[i], p[i]) and rounds ldims[i]
// up to a multiple of the new pad, for each axis. It is monotonic: pads
// and ldims only grow. p must have the same rank as the tensor, or
// fewer components, in which case it is right-aligned against the
// trailing axes (leading axes default to pad 1), matching
// ark/tensor.cc's update_pads.
func (t *Tensor) UpdatePads(p []int64) error {
	ndims := t.LDims.NDims()
	if len(p) > ndims {
		return errors.Errorf("tensor %d: update_pads given %d components for a %d-dim tensor", t.ID, len(p), ndims)
	}
	for _, v := range p {
		if v <= 0 {
			return errors.Errorf("tensor %d: update_pads components must be positive, got %d", t.ID, v)
		}
	}
	aligned := make([]int64, ndims)
	for i := range aligned {
		aligned[i] = 1
	}
	offset := ndims - len(p)
	for i, v := range p {
		aligned[offset+i] = v
	}
	for i := 0; i < ndims; i++ {
		newPad := shapes.LCM(t.Pads[i], aligned[i])
		t.Pads[i] = newPad
		t.LDims[i] = shapes.Pad(t.LDims[i], newPad)
	}
	return nil
}

// Offset returns the linear offset, within the TensorBuf and measured in
// elements, of the element at the given per-axis indices. Specialized per
// rank 1-4 for determinism, matching ark/tensor.cc's Tensor::offset.
func (t *Tensor) Offset(idx ...int64) (int64, error) {
	n := t.NDims()
	if len(idx) != n {
		return 0, errors.Errorf("tensor %d: offset given %d indices for a %d-dim tensor", t.ID, len(idx), n)
	}
	l, o := t.LDims, t.Offs
	switch n {
	case 1:
		return o[0] + idx[0], nil
	case 2:
		return (o[0]+idx[0])*l[1] + o[1] + idx[1], nil
	case 3:
		return (o[0]+idx[0])*l[1]*l[2] + (o[1]+idx[1])*l[2] + o[2] + idx[2], nil
	default:
		return (o[0]+idx[0])*l[1]*l[2]*l[3] + (o[1]+idx[1])*l[2]*l[3] + (o[2]+idx[2])*l[3] + o[3] + idx[3], nil
	}
}

// PaddedShape returns the shape including padding: pad(shape[i], pads[i])
// for each axis.
func (t *Tensor) PaddedShape() shapes.Dims {
	ps := make(shapes.Dims, t.NDims())
	for i := range ps {
		ps[i] = shapes.Pad(t.Shape[i], t.Pads[i])
	}
	return ps
}

// TypeBytes returns the byte width of one element.
func (t *Tensor) TypeBytes() int {
	w, _ := TypeBytes(t.Type) // validated at construction
	return w
}

// ShapeBytes returns the number of bytes of the tensor's logical shape,
// excluding padding.
func (t *Tensor) ShapeBytes() int64 {
	return t.Shape.NElements() * int64(t.TypeBytes())
}

// LDimsBytes returns the number of bytes spanned by ldims; this should
// equal the backing TensorBuf's byte size for a tensor that owns its
// buffer exclusively.
func (t *Tensor) LDimsBytes() int64 {
	return t.LDims.NElements() * int64(t.TypeBytes())
}

// OffsetBytes is Offset expressed in bytes rather than elements.
func (t *Tensor) OffsetBytes(idx ...int64) (int64, error) {
	off, err := t.Offset(idx...)
	if err != nil {
		return 0, err
	}
	return off * int64(t.TypeBytes()), nil
}

// IsSequential reports whether the tensor's shape matches its ldims on
// every axis but the first -- i.e., whether its memory layout has no
// internal padding gaps between rows.
func (t *Tensor) IsSequential() bool {
	for i := 1; i < t.NDims(); i++ {
		if t.Shape[i] != t.LDims[i] {
			return false
		}
	}
	return true
}

// Transpose returns a new Tensor view of the same TensorBuf with Shape,
// LDims, Offs and Pads each permuted by perm: the returned view's axis i
// is t's axis perm[i], matching ark's model.transpose convention (see
// ark/ops/ops_transpose_test.cc's new_axis[i] = axis[perm[i]]). perm must
// be a permutation of [0, NDims()); it need not be the identity's inverse
// of anything, since any permutation is a valid axis reordering.
//
// This is pure metadata: no element is moved and the backing Buf is
// shared with t. Interpreting the resulting LDims/Offs as physical
// strides for addressing is the caller's concern (the KernelCatalog's),
// not this package's.
func (t *Tensor) Transpose(perm []int) (*Tensor, error) {
	n := t.NDims()
	if err := checkPerm(perm, n); err != nil {
		return nil, errors.Wrapf(err, "tensor %d: transpose", t.ID)
	}
	out := *t
	out.Shape = permuteDims(t.Shape, perm)
	out.LDims = permuteDims(t.LDims, perm)
	out.Offs = permuteDims(t.Offs, perm)
	out.Pads = permuteDims(t.Pads, perm)
	return &out, nil
}

// InvertPerm returns the permutation π⁻¹ such that Transpose(π) followed
// by Transpose(InvertPerm(π)) restores the original axis order.
func InvertPerm(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

func checkPerm(perm []int, n int) error {
	if len(perm) != n {
		return errors.Errorf("perm %v has %d components for a %d-dim tensor", perm, len(perm), n)
	}
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n || seen[p] {
			return errors.Errorf("perm %v is not a permutation of [0,%d)", perm, n)
		}
		seen[p] = true
	}
	return nil
}

func permuteDims(d shapes.Dims, perm []int) shapes.Dims {
	out := make(shapes.Dims, len(perm))
	for i, p := range perm {
		out[i] = d[p]
	}
	return out
}

// OverlapsWith reports whether t and other's [offs, offs+shape) rectangles
// overlap, assuming both share the same TensorBuf. Views of different
// rank are always reported as overlapping. The buffer planner does not
// call it.
func (t *Tensor) OverlapsWith(other *Tensor) bool {
	n := t.NDims()
	if other.NDims() != n {
		return true // mismatched rank on a shared buffer is never safe to call disjoint
	}
	for i := 0; i < n; i++ {
		aLo, aHi := t.Offs[i], t.Offs[i]+t.Shape[i]
		bLo, bHi := other.Offs[i], other.Offs[i]+other.Shape[i]
		if aHi <= bLo || bHi <= aLo {
			return false // disjoint on this axis is enough to guarantee disjointness overall
		}
	}
	return true
}
