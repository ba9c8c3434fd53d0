package opgraph

import (
	"github.com/flowmesh/gpusched/internal/opcode"
	"github.com/flowmesh/gpusched/model"
)

// Optimize rewrites m's op list: identity transposes are elided, and
// contiguous elementwise chains are
// coalesced into a single op. A tensor marked Exported, or with no
// consumers at all (a final graph output), is never eliminated, since its
// semantics are externally observed.
//
// Optimize returns a new Model; m and its Ops are left unmodified, since
// both rewrite passes mutate op.Inputs and reassign the op list in place
// on whatever *model.Model they're handed.
func Optimize(m *model.Model) *model.Model {
	out := cloneModel(m)
	out = elideIdentityTransposes(out)
	out = coalesceElementwiseChains(out)
	return out
}

// cloneModel copies m's op list -- including each Op's Inputs/Outputs
// slices, since elideIdentityTransposes rewrites Inputs in place -- so
// the rewrite passes can mutate freely without touching the caller's
// Model. Tensors is shared: neither pass mutates a tensor, only the op
// graph's edges.
func cloneModel(m *model.Model) *model.Model {
	ops := make([]*model.Op, len(m.Ops))
	for i, op := range m.Ops {
		ops[i] = &model.Op{
			ID:           op.ID,
			Opcode:       op.Opcode,
			Inputs:       append([]int(nil), op.Inputs...),
			Outputs:      append([]int(nil), op.Outputs...),
			Config:       op.Config,
			CostEstimate: op.CostEstimate,
		}
	}
	return &model.Model{Tensors: m.Tensors, Ops: ops}
}

func isObserved(m *model.Model, tensorID int) bool {
	t, err := m.Tensor(tensorID)
	if err != nil {
		return true // unknown is safest treated as observed
	}
	return t.Exported
}

// consumerCount returns how many ops, across the whole model, take
// tensorID as an input.
func consumerCount(m *model.Model, tensorID int) int {
	n := 0
	for _, op := range m.Ops {
		for _, in := range op.Inputs {
			if in == tensorID {
				n++
			}
		}
	}
	return n
}

// elideIdentityTransposes drops any Transpose op whose permutation is the
// identity and whose output is not observed and has at least one
// consumer, rewriting every consumer to
// read the input tensor directly instead.
func elideIdentityTransposes(m *model.Model) *model.Model {
	alias := map[int]int{} // eliminated output tensor id -> replacement tensor id
	kept := make([]*model.Op, 0, len(m.Ops))

	for _, op := range m.Ops {
		if op.Opcode == opcode.Transpose && len(op.Inputs) == 1 && len(op.Outputs) == 1 && isIdentityPerm(op.Config) {
			out := op.Outputs[0]
			if !isObserved(m, out) && consumerCount(m, out) > 0 {
				alias[out] = resolveAlias(alias, op.Inputs[0])
				continue
			}
		}
		kept = append(kept, op)
	}
	if len(alias) == 0 {
		return m
	}
	for _, op := range kept {
		for i, in := range op.Inputs {
			if repl, ok := alias[in]; ok {
				op.Inputs[i] = repl
			}
		}
	}
	m.Ops = kept
	return m
}

func resolveAlias(alias map[int]int, id int) int {
	for {
		r, ok := alias[id]
		if !ok {
			return id
		}
		id = r
	}
}

func isIdentityPerm(cfg map[string]any) bool {
	raw, ok := cfg["perm"]
	if !ok {
		return false
	}
	perm, ok := raw.([]int)
	if !ok {
		return false
	}
	for i, p := range perm {
		if p != i {
			return false
		}
	}
	return true
}

// coalesceElementwiseChains merges a run of elementwise ops A1->A2->...->An
// into a single op carrying the chain in its Config, when each Ai+1
// consumes only Ai's sole output, shapes agree, and none of the
// intermediate tensors are observed or have any other consumer.
func coalesceElementwiseChains(m *model.Model) *model.Model {
	kept := make([]*model.Op, 0, len(m.Ops))
	merged := map[int]bool{} // op id -> already folded into a predecessor

	for _, op := range m.Ops {
		if merged[op.ID] {
			continue
		}
		if !op.Opcode.IsElementwise() || len(op.Outputs) != 1 {
			kept = append(kept, op)
			continue
		}
		chain := []*model.Op{op}
		cur := op
		for {
			next := findSoleElementwiseConsumer(m, cur)
			if next == nil {
				break
			}
			chain = append(chain, next)
			merged[next.ID] = true
			cur = next
		}
		if len(chain) == 1 {
			kept = append(kept, op)
			continue
		}
		fused := &model.Op{
			ID:      op.ID,
			Opcode:  op.Opcode,
			Inputs:  op.Inputs,
			Outputs: chain[len(chain)-1].Outputs,
			Config:  map[string]any{},
		}
		chained := make([]opcode.Opcode, 0, len(chain)-1)
		for _, c := range chain[1:] {
			chained = append(chained, c.Opcode)
		}
		fused.Config["coalesced"] = chained
		kept = append(kept, fused)
	}
	m.Ops = kept
	return m
}

// findSoleElementwiseConsumer returns the unique op that consumes op's
// sole output and is itself eligible to be folded into the chain, or nil.
func findSoleElementwiseConsumer(m *model.Model, op *model.Op) *model.Op {
	outTensorID := op.Outputs[0]
	if isObserved(m, outTensorID) {
		return nil
	}
	if consumerCount(m, outTensorID) != 1 {
		return nil
	}
	var consumer *model.Op
	for _, candidate := range m.Ops {
		for _, in := range candidate.Inputs {
			if in == outTensorID {
				consumer = candidate
			}
		}
	}
	if consumer == nil || !consumer.Opcode.IsElementwise() || len(consumer.Outputs) != 1 {
		return nil
	}
	if len(consumer.Inputs) != 1 || consumer.Inputs[0] != outTensorID {
		return nil // has another external input besides the chain, e.g. binary op with a second operand
	}
	outT, err1 := m.Tensor(outTensorID)
	inT, err2 := m.Tensor(consumer.Outputs[0])
	if err1 != nil || err2 != nil || !outT.Shape.Equal(inT.Shape) {
		return nil
	}
	return consumer
}
