// Package catalog declares the interface between the scheduler's kernel
// selection (C5) and code generation (C7) phases and the set of kernel
// implementations actually available on the target device. The scheduler
// core only ever needs to know whether a run of ops can share one kernel
// launch and how many warps that launch needs; the catalog is where the
// answer to those two questions lives.
package catalog

import (
	"github.com/flowmesh/gpusched/internal/opcode"
	"github.com/flowmesh/gpusched/tensor"
)

// Signature describes one kernel family's constraints: the opcode it
// implements, the dtypes it accepts, and the warp/SM footprint its
// instantiation needs at a given tile size.
type Signature struct {
	Opcode      opcode.Opcode
	Arity       int // number of distinct input tensors the kernel reads
	DTypes      []tensor.DType
	MinWarps    int
	MaxWarps    int
	SMsRequired int
}

// AcceptsDType reports whether dt is one of the signature's supported
// input/output element types.
func (s Signature) AcceptsDType(dt tensor.DType) bool {
	for _, d := range s.DTypes {
		if d == dt {
			return true
		}
	}
	return false
}

// SequenceCompatible reports whether an op with opcode op and dtype dt can
// be appended to a running sequence already committed to this signature,
// i.e. whether one kernel launch can serve both.
func (s Signature) SequenceCompatible(op opcode.Opcode, dt tensor.DType) bool {
	return s.Opcode == op && s.AcceptsDType(dt)
}

// KernelCatalog resolves opcodes to signatures and emits kernel source for
// a chosen sequence of ops sharing one signature. Implementations are
// expected to be stateless and safe for concurrent use; the scheduler may
// call Signature/Emit from multiple goroutines across depths.
type KernelCatalog interface {
	// Signature returns the kernel family implementing op, or an error if
	// no kernel on the target device implements it (CodegenUnsupported).
	Signature(op opcode.Opcode) (Signature, error)

	// Emit produces the kernel source text for a run of ops sharing a
	// single signature, laid out per layout (an opaque, catalog-specific
	// tiling/indexing description supplied by the op-sequence builder).
	// hash identifies the sequence for caching and must be embedded
	// verbatim as a comment or symbol name so generated sources stay
	// uniquely attributable without relying on source order.
	Emit(hash string, ops []opcode.Opcode, layout map[string]any) (string, error)
}
