package gpusched

import (
	"time"

	"github.com/flowmesh/gpusched/bufplan"
	"github.com/flowmesh/gpusched/packer"
)

// Config bundles Schedule's tunables, a plain options struct passed by
// value, the same shape types.CollectiveConfig uses.
type Config struct {
	// WPS is MAX_WARPS_PER_SEQ, the op-sequence builder's warp cap.
	// Default 16.
	WPS int

	// Packer selects which depth-packing strategy Schedule uses.
	Packer packer.Kind

	// PartitionTimeBudget bounds the partitioned packer's search, only
	// meaningful when Packer == packer.KindPartitioned.
	PartitionTimeBudget time.Duration

	// ImportDeadline bounds how long the buffer planner waits for a
	// cross-rank import to resolve. Default 30s.
	ImportDeadline time.Duration

	// ArenaStrategy toggles local-buffer byte reuse, for debugging.
	// Default bufplan.ReuseDisjoint.
	ArenaStrategy bufplan.ArenaStrategy

	// Budget is the device's (sm_count, warps_per_sm) resource cap used
	// by the packer. If zero, it is filled in from the device.Manager's
	// DeviceInfo() at Schedule time.
	Budget packer.Budget
}

// withDefaults returns a copy of c with every zero-valued tunable
// replaced by its spec-mandated default.
func (c Config) withDefaults() Config {
	if c.WPS <= 0 {
		c.WPS = 16
	}
	if c.ImportDeadline <= 0 {
		c.ImportDeadline = 30 * time.Second
	}
	return c
}
