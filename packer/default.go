package packer

import (
	"sort"

	"github.com/flowmesh/gpusched/opseq"
)

// Default is the greedy first-fit-descending packer. Sequences
// are sorted by warp count descending, ties broken by sequence id
// ascending; each is placed in the first entry with room, else a new
// entry is opened.
type Default struct{}

func (Default) Pack(depth int, seqs []*opseq.SchedOpSeq, budget Budget) ([]Sched, error) {
	total := budget.TotalWarps()
	for _, s := range seqs {
		if s.Warps > total {
			return nil, ErrPackerInfeasible
		}
	}

	if isolated(seqs) {
		if totalWarps(seqs) > total {
			return nil, ErrPackerInfeasible
		}
		return []Sched{{Depth: depth, Sequences: orderedByID(seqs), Warps: totalWarps(seqs)}}, nil
	}

	ordered := append([]*opseq.SchedOpSeq(nil), seqs...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Warps != ordered[j].Warps {
			return ordered[i].Warps > ordered[j].Warps
		}
		return ordered[i].ID < ordered[j].ID
	})

	var scheds []Sched
	for _, s := range ordered {
		placed := false
		for i := range scheds {
			if scheds[i].Warps+s.Warps <= total {
				scheds[i].Sequences = append(scheds[i].Sequences, s)
				scheds[i].Warps += s.Warps
				placed = true
				break
			}
		}
		if !placed {
			scheds = append(scheds, Sched{Depth: depth, Sequences: []*opseq.SchedOpSeq{s}, Warps: s.Warps})
		}
	}
	for i := range scheds {
		scheds[i].Sequences = orderedByID(scheds[i].Sequences)
	}
	return scheds, nil
}

func orderedByID(seqs []*opseq.SchedOpSeq) []*opseq.SchedOpSeq {
	out := append([]*opseq.SchedOpSeq(nil), seqs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
