// Package packer implements C6, the depth packer: given the SchedOpSeqs
// at one depth and the device's (sm_count, warps_per_sm) budget, it
// returns an ordered list of Sched launch entries such that every
// sequence runs exactly once and no entry exceeds the warp budget.
// Three interchangeable strategies share the Packer contract, the same
// tie-break-by-id idiom
// Atul-Ranjan12-google-dag-optimization/src-sol2/scheduler.go uses for
// its greedy scheduler.
package packer

import (
	"github.com/pkg/errors"

	"github.com/flowmesh/gpusched/opseq"
)

// ErrPackerInfeasible is returned when a single sequence alone exceeds
// the device's total warp budget -- no packing can ever place it.
var ErrPackerInfeasible = errors.New("PackerInfeasible")

// Kind selects which Packer implementation to run.
type Kind int

const (
	KindDefault Kind = iota
	KindPartitioned
	KindSimple
)

// Sched is one launch entry: the sequences executing concurrently at a
// given depth.
type Sched struct {
	Depth     int
	Sequences []*opseq.SchedOpSeq
	Warps     int // Σ Sequences[i].Warps
}

// Budget is the device resource cap a depth's sequences are packed into.
type Budget struct {
	SMCount    int
	WarpsPerSM int
}

// TotalWarps is the device's total concurrent warp capacity.
func (b Budget) TotalWarps() int {
	return b.SMCount * b.WarpsPerSM
}

// Packer assigns a depth's sequences to Sched entries under budget.
type Packer interface {
	Pack(depth int, seqs []*opseq.SchedOpSeq, budget Budget) ([]Sched, error)
}

// isolated reports whether any sequence at this depth carries a
// communication op, which forces the whole depth into a single Sched
// entry so the transport layer sees a synchronous barrier.
func isolated(seqs []*opseq.SchedOpSeq) bool {
	for _, s := range seqs {
		for _, op := range s.Ops {
			if op.Op.Opcode.IsCommunication() {
				return true
			}
		}
	}
	return false
}

func totalWarps(seqs []*opseq.SchedOpSeq) int {
	n := 0
	for _, s := range seqs {
		n += s.Warps
	}
	return n
}
