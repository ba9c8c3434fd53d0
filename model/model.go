// Package model defines the minimal surface the scheduler consumes from
// the (out-of-scope) tensor/op construction API. A real system has a rich
// fluent builder for constructing ops from high-level shapes; all this
// package specifies is the declaration-ordered result such a builder
// produces, since that is the only part the scheduler needs to read.
package model

import (
	"github.com/pkg/errors"

	"github.com/flowmesh/gpusched/internal/opcode"
	"github.com/flowmesh/gpusched/tensor"
)

// Op is a single node declaration: an opcode, ordered input/output tensor
// ids, and per-op configuration (permutation vectors, tile sizes, and
// the like -- opaque to the scheduler beyond what the KernelCatalog and
// op-sequence builder need to inspect).
type Op struct {
	ID      int
	Opcode  opcode.Opcode
	Inputs  []int
	Outputs []int
	Config  map[string]any

	// CostEstimate is the op's execution cost estimate; it starts symbolic
	// (zero) and may be refined by the profiler (C8).
	CostEstimate float64
}

// Model is an ordered collection of tensors and ops, built by declaring
// tensors and then ops that reference them, exactly in the order the
// caller wants them scheduled for tie-breaking. A Model may be scheduled
// at most once; the scheduler package enforces that, not this one.
type Model struct {
	Tensors map[int]*tensor.Tensor
	Ops     []*Op

	nextTensorID int
	nextOpID     int
}

// New creates an empty Model.
func New() *Model {
	return &Model{Tensors: make(map[int]*tensor.Tensor)}
}

// NextTensorID reserves and returns the next tensor id. Callers use it to
// construct a tensor.Tensor before handing it to AddTensor.
func (m *Model) NextTensorID() int {
	id := m.nextTensorID
	m.nextTensorID++
	return id
}

// AddTensor registers a tensor built with id from NextTensorID.
func (m *Model) AddTensor(t *tensor.Tensor) {
	m.Tensors[t.ID] = t
}

// AddOp appends a new op to the declaration order, validating that every
// input/output tensor id is known, and sets each output tensor's
// ProducerOp to this op's id.
func (m *Model) AddOp(op opcode.Opcode, inputs, outputs []int, cfg map[string]any) (*Op, error) {
	for _, id := range inputs {
		if _, ok := m.Tensors[id]; !ok {
			return nil, errors.Errorf("op references unknown input tensor %d", id)
		}
	}
	for _, id := range outputs {
		if _, ok := m.Tensors[id]; !ok {
			return nil, errors.Errorf("op references unknown output tensor %d", id)
		}
	}
	o := &Op{
		ID:      m.nextOpID,
		Opcode:  op,
		Inputs:  append([]int(nil), inputs...),
		Outputs: append([]int(nil), outputs...),
		Config:  cfg,
	}
	m.nextOpID++
	m.Ops = append(m.Ops, o)
	for _, id := range outputs {
		m.Tensors[id].ProducerOp = o.ID
	}
	return o, nil
}

// Tensor looks up a tensor by id, or returns an error if unknown.
func (m *Model) Tensor(id int) (*tensor.Tensor, error) {
	t, ok := m.Tensors[id]
	if !ok {
		return nil, errors.Errorf("unknown tensor %d", id)
	}
	return t, nil
}

// Op looks up an op by id. Op ids need not be contiguous with Ops'
// positions once a pass like opgraph.Optimize has dropped or fused ops,
// so this always scans by id rather than indexing Ops directly.
func (m *Model) Op(id int) (*Op, error) {
	for _, op := range m.Ops {
		if op.ID == id {
			return op, nil
		}
	}
	return nil, errors.Errorf("unknown op %d", id)
}
