// Package opcode enumerates the operation kinds the scheduler core
// understands. The kernel template library (catalog.KernelCatalog) is the
// authority on which opcodes it can actually emit; this enum is just the
// closed set the planning phases (C3-C6) need to reason about structurally
// (elementwise chains, transposes, collectives).
package opcode

// Opcode identifies the kind of computation an Op node performs.
type Opcode int

//go:generate go tool enumer -type=Opcode -json -transform=snake opcode.go

const (
	Invalid Opcode = iota

	// Elementwise unary/binary ops, coalescable into one sequence by C3's
	// optimize_model pass.
	Add
	Sub
	Mul
	Div
	Relu
	Gelu
	Exp
	Copy

	// Structural ops.
	Transpose
	Reshape
	MatMul

	// Communication ops; a depth containing any of these is packed in
	// isolation.
	Send
	Recv
	AllReduce
	AllGather
)

// IsElementwise reports whether op is a pointwise op eligible for the
// contiguous-chain coalescing optimize_model performs.
func (o Opcode) IsElementwise() bool {
	switch o {
	case Add, Sub, Mul, Div, Relu, Gelu, Exp, Copy:
		return true
	default:
		return false
	}
}

// IsCommunication reports whether op crosses rank boundaries and therefore
// forces its depth to be packed in isolation.
func (o Opcode) IsCommunication() bool {
	switch o {
	case Send, Recv, AllReduce, AllGather:
		return true
	default:
		return false
	}
}

// IsIdentityEligible reports whether op, under the right configuration
// (e.g. an identity permutation on Transpose), can be elided by
// optimize_model without changing observed semantics.
func (o Opcode) IsIdentityEligible() bool {
	return o == Transpose
}
