package gpusched

import (
	"github.com/flowmesh/gpusched/bufplan"
	"github.com/flowmesh/gpusched/device"
	"github.com/flowmesh/gpusched/packer"
)

// KernelPlan is Schedule's result: the emitted kernel sources, the
// per-depth launch entries, the buffer plan, and a resolver from tensor
// id to the physical address a generated kernel would read or write.
type KernelPlan struct {
	// KernelSources holds one unit of generated kernel source per unique
	// sequence hash, ordered by hash for deterministic KernelPlan bytes.
	KernelSources []string

	// Launches holds one []packer.Sched per depth, in depth order.
	Launches [][]packer.Sched

	// BufInfos is the full buffer plan, sorted by buffer id.
	BufInfos []bufplan.BufInfo

	// Resolve maps a tensor id to the physical address its backing buffer
	// was planned to. Every address Resolve can produce traces back to an
	// entry in BufInfos.
	Resolve func(tensorID int) (device.Address, error)
}
