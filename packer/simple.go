package packer

import (
	"github.com/flowmesh/gpusched/opseq"
)

// Simple packs one SchedOpSeq per Sched entry, with no bin-packing at all.
// Restored from ARK's SimpleScheduler: useful as a debugging baseline and
// whenever launch-count, not occupancy, is the thing under test.
type Simple struct{}

func (Simple) Pack(depth int, seqs []*opseq.SchedOpSeq, budget Budget) ([]Sched, error) {
	total := budget.TotalWarps()
	ordered := orderedByID(seqs)
	scheds := make([]Sched, 0, len(ordered))
	for _, s := range ordered {
		if s.Warps > total {
			return nil, ErrPackerInfeasible
		}
		scheds = append(scheds, Sched{Depth: depth, Sequences: []*opseq.SchedOpSeq{s}, Warps: s.Warps})
	}
	return scheds, nil
}
