// Package opgraph builds the dependency DAG over a Model's ops and
// assigns each op a depth: the length of the longest path from any
// source, computed by Kahn-style layering so that ties within a depth
// are ordered by declaration sequence.
package opgraph

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/flowmesh/gpusched/model"
)

// ErrCyclicGraph is the sentinel cause of every CyclicGraph failure.
var ErrCyclicGraph = errors.New("CyclicGraph")

// Node wraps one Op with its resolved graph position.
type Node struct {
	Op    *model.Op
	Depth int

	// Producers/Consumers are op ids, deduplicated: an edge A->B exists
	// at most once even if several of A's outputs feed B.
	Producers []int
	Consumers []int
}

// OpGraph is the DAG over a Model's ops, keyed by op id -- ids need not
// be contiguous with Nodes' positions, since a pass like opgraph.Optimize
// may have dropped or fused ops out of the declaration sequence.
type OpGraph struct {
	Model *model.Model
	Nodes []*Node

	// Depths groups op ids by depth, in declaration order within each
	// depth, kept deterministic.
	Depths [][]int

	// SendRecvOps lists, in declaration order, the ids of every
	// communication op (opcode.IsCommunication) in the final graph. The
	// depth packer (C6) does not read it: it detects communication ops
	// from each sequence's opcodes. It is metadata, not a structural rewrite, since spec
	// §4.6 already guarantees isolation at pack time.
	SendRecvOps []int

	byID map[int]int // op id -> index into Nodes
}

// Build constructs the DAG by scanning ops in declaration order and
// linking each op's inputs to their producers (via Tensor.ProducerOp),
// then computes depths. Returns ErrCyclicGraph if the graph is not a DAG.
func Build(m *model.Model) (*OpGraph, error) {
	g := &OpGraph{Model: m, Nodes: make([]*Node, len(m.Ops)), byID: make(map[int]int, len(m.Ops))}
	for i, op := range m.Ops {
		g.Nodes[i] = &Node{Op: op}
		g.byID[op.ID] = i
	}

	for i, op := range m.Ops {
		seen := map[int]bool{}
		for _, tid := range op.Inputs {
			tn, err := m.Tensor(tid)
			if err != nil {
				return nil, err
			}
			producer := tn.ProducerOp
			if producer < 0 || producer == op.ID || seen[producer] {
				continue
			}
			pIdx, ok := g.byID[producer]
			if !ok {
				continue // producer was eliminated (e.g. aliased away by Optimize)
			}
			seen[producer] = true
			g.Nodes[i].Producers = append(g.Nodes[i].Producers, producer)
			g.Nodes[pIdx].Consumers = append(g.Nodes[pIdx].Consumers, op.ID)
		}
	}
	// Keep producer/consumer lists in a deterministic order.
	for _, n := range g.Nodes {
		sort.Ints(n.Producers)
		sort.Ints(n.Consumers)
	}

	if err := g.assignDepths(); err != nil {
		return nil, err
	}

	for _, n := range g.Nodes {
		if n.Op.Opcode.IsCommunication() {
			g.SendRecvOps = append(g.SendRecvOps, n.Op.ID)
		}
	}
	return g, nil
}

// assignDepths runs Kahn-style layering: depth 0 is every op with no
// producers; depth d is assigned to an op only once every one of its
// producers has a finalized depth < d. Processing order within each
// wave follows Nodes' position, which is declaration order and therefore
// what makes ties inside a depth deterministic.
func (g *OpGraph) assignDepths() error {
	n := len(g.Nodes)
	inDegree := make([]int, n)
	depth := make([]int, n)
	for i, node := range g.Nodes {
		inDegree[i] = len(node.Producers)
	}

	var ready []int // Nodes indices
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	processed := 0
	maxDepth := -1
	for len(ready) > 0 {
		sort.Ints(ready)
		next := ready
		ready = nil
		for _, idx := range next {
			processed++
			if depth[idx] > maxDepth {
				maxDepth = depth[idx]
			}
			for _, cID := range g.Nodes[idx].Consumers {
				cIdx := g.byID[cID]
				if d := depth[idx] + 1; d > depth[cIdx] {
					depth[cIdx] = d
				}
				inDegree[cIdx]--
				if inDegree[cIdx] == 0 {
					ready = append(ready, cIdx)
				}
			}
		}
	}

	if processed != n {
		return errors.Wrapf(ErrCyclicGraph, "graph has %d ops but only %d could be topologically ordered", n, processed)
	}

	g.Depths = make([][]int, maxDepth+1)
	for i, node := range g.Nodes {
		node.Depth = depth[i]
		g.Depths[depth[i]] = append(g.Depths[depth[i]], node.Op.ID)
	}
	for _, layer := range g.Depths {
		sort.Ints(layer)
	}
	return nil
}

// NumDepths returns the number of depth layers in the graph.
func (g *OpGraph) NumDepths() int {
	return len(g.Depths)
}

// Node returns the node for the given op id, or nil if unknown.
func (g *OpGraph) Node(opID int) *Node {
	idx, ok := g.byID[opID]
	if !ok {
		return nil
	}
	return g.Nodes[idx]
}

// ValidateEdgeDepths checks that for every edge A->B, depth(A) < depth(B).
// Exposed for tests; Build always leaves the graph in a state satisfying
// this by construction.
func (g *OpGraph) ValidateEdgeDepths() error {
	for _, n := range g.Nodes {
		for _, p := range n.Producers {
			pNode := g.Node(p)
			if pNode.Depth >= n.Depth {
				return errors.Errorf("edge %d->%d violates depth ordering: depth(%d)=%d depth(%d)=%d",
					p, n.Op.ID, p, pNode.Depth, n.Op.ID, n.Depth)
			}
		}
	}
	return nil
}
