// Package opseq implements C5, the op-sequence builder: it walks each
// depth of an optimized OpGraph and merges consecutive ops into
// SchedOpSeqs that can share a single kernel launch, subject to the
// warp-budget cap and the KernelCatalog's sequence-compatibility
// predicate. The merge-then-hash shape mirrors collective.go's
// attribute-map construction, generalized into a canonical hash input
// instead of a StableHLO attribute list.
package opseq

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/flowmesh/gpusched/catalog"
	"github.com/flowmesh/gpusched/model"
	"github.com/flowmesh/gpusched/opgraph"
	"github.com/flowmesh/gpusched/tensor"
)

// DefaultMaxWarpsPerSeq is MAX_WARPS_PER_SEQ's default.
const DefaultMaxWarpsPerSeq = 16

// ErrPackerInfeasible's op-sequence-side cause: a single op alone exceeds
// the configured warp budget, so no sequence containing it can ever fit.
var ErrSequenceExceedsBudget = errors.New("PackerInfeasible")

// SchedOp is one op resolved against the kernel catalog: its warp
// requirement and the signature it was matched against.
type SchedOp struct {
	Op        *model.Op
	Signature catalog.Signature
	Warps     int

	// ShapeKey canonicalizes this op's input/output shapes and dtype for
	// hashing, independent of the arbitrary tensor ids assigned to them;
	// two structurally identical ops must produce the same key.
	ShapeKey string
}

// SchedOpSeq is an ordered run of SchedOps sharing one kernel invocation.
type SchedOpSeq struct {
	ID    int
	Depth int
	Ops   []SchedOp

	Warps    int // Σ SchedOp.Warps, the sequence's total warp demand
	SMDemand int
	Hash     string
}

// Build walks g depth by depth in declaration order and returns the
// SchedOpSeqs for the whole graph, numbered per depth starting at 0. wps
// <= 0 takes the default.
func Build(g *opgraph.OpGraph, cat catalog.KernelCatalog, wps int) ([]*SchedOpSeq, error) {
	if wps <= 0 {
		wps = DefaultMaxWarpsPerSeq
	}

	var seqs []*SchedOpSeq
	for depth, opIDs := range g.Depths {
		var cur *SchedOpSeq
		seqNum := 0
		for _, opID := range opIDs {
			op, err := g.Model.Op(opID)
			if err != nil {
				return nil, err
			}
			sig, err := cat.Signature(op.Opcode)
			if err != nil {
				return nil, errors.Wrapf(err, "op %d", op.ID)
			}
			dt, err := outputDType(g.Model, op)
			if err != nil {
				return nil, err
			}
			warps := sig.MinWarps
			if warps <= 0 {
				warps = 1
			}
			if warps > wps {
				return nil, errors.Wrapf(ErrSequenceExceedsBudget, "op %d alone needs %d warps, budget is %d", op.ID, warps, wps)
			}
			shapeKey, err := canonicalShapeKey(g.Model, op, dt)
			if err != nil {
				return nil, err
			}
			so := SchedOp{Op: op, Signature: sig, Warps: warps, ShapeKey: shapeKey}

			if cur != nil && cur.Warps+warps <= wps && cur.Ops[len(cur.Ops)-1].Signature.SequenceCompatible(op.Opcode, dt) {
				cur.Ops = append(cur.Ops, so)
				cur.Warps += warps
				if sig.SMsRequired > cur.SMDemand {
					cur.SMDemand = sig.SMsRequired
				}
				continue
			}

			cur = &SchedOpSeq{ID: seqNum, Depth: depth, Ops: []SchedOp{so}, Warps: warps, SMDemand: sig.SMsRequired}
			seqNum++
			seqs = append(seqs, cur)
		}
	}

	for _, s := range seqs {
		s.Hash = SequenceHash(s)
	}
	return seqs, nil
}

// canonicalShapeKey renders op's input/output shapes and dtype as a
// string that depends only on structure, never on tensor ids, so two
// sequences built over different tensors but the same shapes hash equal.
func canonicalShapeKey(m *model.Model, op *model.Op, dt tensor.DType) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "opcode=%s;dtype=%v;", op.Opcode.String(), dt)
	for _, id := range op.Inputs {
		t, err := m.Tensor(id)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "in=%s;", t.Shape.String())
	}
	for _, id := range op.Outputs {
		t, err := m.Tensor(id)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "out=%s;", t.Shape.String())
	}
	return b.String(), nil
}

// outputDType returns the element type of op's first output, the dtype
// used to check sequence-compatibility against the running sequence.
func outputDType(m *model.Model, op *model.Op) (dt tensor.DType, err error) {
	if len(op.Outputs) == 0 {
		return dt, errors.Errorf("op %d has no outputs to resolve a dtype from", op.ID)
	}
	t, err := m.Tensor(op.Outputs[0])
	if err != nil {
		return dt, err
	}
	return t.Type, nil
}
