package packer

import (
	"context"
	"sort"
	"time"

	"github.com/flowmesh/gpusched/opseq"
)

// DefaultPartitionTimeBudget bounds how long Partitioned searches for a
// min-cut assignment before giving up and falling back to Default.
const DefaultPartitionTimeBudget = 50 * time.Millisecond

// Partitioned treats the depth as a hypergraph whose nodes are sequences
// and whose hyperedges are shared TensorBufs, greedily grouping sequences
// that share the most hyperedges into the same partition subject to the
// warp cap, then merging adjacent partitions that still fit. It consults
// C8 indirectly: sequence.Warps already reflects the profiler's pick when
// the caller threads a profiled warp count back into the SchedOpSeq
// before packing; the partitioner itself only reads that field.
type Partitioned struct {
	TimeBudget time.Duration
	Fallback   Packer
}

func (p Partitioned) timeBudget() time.Duration {
	if p.TimeBudget <= 0 {
		return DefaultPartitionTimeBudget
	}
	return p.TimeBudget
}

func (p Partitioned) fallback() Packer {
	if p.Fallback == nil {
		return Default{}
	}
	return p.Fallback
}

func (p Partitioned) Pack(depth int, seqs []*opseq.SchedOpSeq, budget Budget) ([]Sched, error) {
	if isolated(seqs) {
		return p.fallback().Pack(depth, seqs, budget)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeBudget())
	defer cancel()

	parts, ok := partition(ctx, seqs, budget.TotalWarps())
	if !ok {
		return p.fallback().Pack(depth, seqs, budget)
	}

	scheds := make([]Sched, len(parts))
	for i, part := range parts {
		scheds[i] = Sched{Depth: depth, Sequences: orderedByID(part), Warps: totalWarps(part)}
	}
	scheds = mergeAdjacent(scheds, budget.TotalWarps())
	return scheds, nil
}

// hyperedgeWeight counts how many TensorBufs two sequences share.
func hyperedgeWeight(a, b *opseq.SchedOpSeq) int {
	bufsOf := func(s *opseq.SchedOpSeq) map[int]bool {
		m := map[int]bool{}
		for _, so := range s.Ops {
			for _, id := range so.Op.Inputs {
				m[id] = true
			}
			for _, id := range so.Op.Outputs {
				m[id] = true
			}
		}
		return m
	}
	as, bs := bufsOf(a), bufsOf(b)
	n := 0
	for id := range as {
		if bs[id] {
			n++
		}
	}
	return n
}

// partition greedily groups seqs so that strongly hyperedge-connected
// sequences land together, subject to the per-partition warp cap. It
// bails out (ok=false) if ctx expires before finishing, or if it cannot
// place some sequence (which should not happen once the caller has
// already checked every individual sequence against budget).
func partition(ctx context.Context, seqs []*opseq.SchedOpSeq, totalWarps int) ([][]*opseq.SchedOpSeq, bool) {
	ordered := append([]*opseq.SchedOpSeq(nil), seqs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var parts [][]*opseq.SchedOpSeq
	var partWarps []int
	for _, s := range ordered {
		select {
		case <-ctx.Done():
			return nil, false
		default:
		}
		if s.Warps > totalWarps {
			return nil, false
		}
		best := -1
		bestWeight := -1
		for i, part := range parts {
			if partWarps[i]+s.Warps > totalWarps {
				continue
			}
			w := 0
			for _, other := range part {
				w += hyperedgeWeight(s, other)
			}
			if w > bestWeight {
				bestWeight = w
				best = i
			}
		}
		// best, when >= 0, is the partition with room that shares the most
		// hyperedges with s (possibly zero); prefer it over opening a new
		// partition, since an unnecessary partition only adds launches.
		if best >= 0 {
			parts[best] = append(parts[best], s)
			partWarps[best] += s.Warps
			continue
		}
		parts = append(parts, []*opseq.SchedOpSeq{s})
		partWarps = append(partWarps, s.Warps)
	}
	return parts, true
}

// mergeAdjacent folds consecutive Sched entries together while they still
// fit the budget, a post-partition simplification pass.
func mergeAdjacent(scheds []Sched, totalWarps int) []Sched {
	if len(scheds) == 0 {
		return scheds
	}
	merged := []Sched{scheds[0]}
	for _, s := range scheds[1:] {
		last := &merged[len(merged)-1]
		if last.Warps+s.Warps <= totalWarps {
			last.Sequences = orderedByID(append(last.Sequences, s.Sequences...))
			last.Warps += s.Warps
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
