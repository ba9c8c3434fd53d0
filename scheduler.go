// Package gpusched implements the scheduler core of a distributed GPU
// compute runtime: it lowers a tensor-operation graph into a dependency
// DAG, plans physical GPU memory including cross-rank import/export,
// groups operations into shareable-launch sequences, packs those
// sequences onto SM/warp budgets per depth, and drives code generation
// that emits per-depth kernel source plus a launch schedule. The
// top-level Scheduler/NewScheduler/Schedule shape mirrors builder.go's
// Builder/New/Build.
package gpusched

import (
	"context"
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/flowmesh/gpusched/bufplan"
	"github.com/flowmesh/gpusched/catalog"
	"github.com/flowmesh/gpusched/codegen"
	"github.com/flowmesh/gpusched/device"
	"github.com/flowmesh/gpusched/internal/logging"
	"github.com/flowmesh/gpusched/model"
	"github.com/flowmesh/gpusched/opgraph"
	"github.com/flowmesh/gpusched/opseq"
	"github.com/flowmesh/gpusched/packer"
)

// Scheduler is the offline, single-threaded scheduling pipeline over one
// GPU manager, one cross-rank transport, and one kernel catalog. A
// Scheduler instance schedules at most once: call NewScheduler again for
// the next model.
type Scheduler struct {
	mgr       device.Manager
	transport device.IpcTransport
	catalog   catalog.KernelCatalog
	cfg       Config
	log       logging.Logger

	mu        sync.Mutex
	used      bool
	numDepths int
}

// NewScheduler constructs a Scheduler over the given device binding,
// cross-rank transport, and kernel catalog.
func NewScheduler(mgr device.Manager, transport device.IpcTransport, cat catalog.KernelCatalog, cfg Config) *Scheduler {
	return &Scheduler{
		mgr:       mgr,
		transport: transport,
		catalog:   cat,
		cfg:       cfg.withDefaults(),
		log:       logging.Discard(),
	}
}

// WithLogger returns s with its structured logger replaced by log.
func (s *Scheduler) WithLogger(log logging.Logger) *Scheduler {
	s.log = log
	return s
}

// NumDepths returns the number of depth layers in the last model
// scheduled by this instance, or 0 before the first Schedule call.
func (s *Scheduler) NumDepths() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint(s.numDepths)
}

// Schedule runs the full pipeline over m and returns the resulting
// KernelPlan, or a fatal *SchedError. A Scheduler can only Schedule once;
// a second call returns an error without touching the device or
// transport.
func (s *Scheduler) Schedule(m *model.Model, gpuID, rank, worldSize int) (*KernelPlan, error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return nil, pkgerrors.New("scheduler: Schedule already called on this instance")
	}
	s.used = true
	s.mu.Unlock()

	ctx := context.Background()

	optimized := opgraph.Optimize(m)

	s.log.Phase("opgraph.build")
	g, err := opgraph.Build(optimized)
	if err != nil {
		return nil, newSchedError(CyclicGraph, err, nil)
	}
	s.numDepths = g.NumDepths()

	budget := s.cfg.Budget
	if budget.SMCount == 0 || budget.WarpsPerSM == 0 {
		info, err := s.mgr.DeviceInfo(ctx)
		if err != nil {
			return nil, newSchedError(OutOfDeviceMemory, err, nil)
		}
		budget = packer.Budget{SMCount: info.SMCount, WarpsPerSM: info.WarpsPerSM}
	}

	s.log.Phase("bufplan.plan")
	bufInfos, err := bufplan.Plan(ctx, g, gpuID, rank, worldSize, s.mgr, s.transport,
		bufplan.Config{ImportDeadline: s.cfg.ImportDeadline, ArenaStrategy: s.cfg.ArenaStrategy})
	if err != nil {
		return nil, wrapBufplanError(err)
	}

	s.log.Phase("opseq.build")
	seqs, err := opseq.Build(g, s.catalog, s.cfg.WPS)
	if err != nil {
		return nil, newSchedError(PackerInfeasible, err, nil)
	}

	pk := selectPacker(s.cfg)
	byDepth := make([][]*opseq.SchedOpSeq, g.NumDepths())
	for _, seq := range seqs {
		byDepth[seq.Depth] = append(byDepth[seq.Depth], seq)
	}

	s.log.Phase("packer.pack")
	launches := make([][]packer.Sched, g.NumDepths())
	var allScheds []packer.Sched
	for depth, depthSeqs := range byDepth {
		if len(depthSeqs) == 0 {
			continue
		}
		scheds, err := pk.Pack(depth, depthSeqs, budget)
		if err != nil {
			return nil, newSchedError(PackerInfeasible, err, map[string]any{"depth": depth})
		}
		launches[depth] = scheds
		allScheds = append(allScheds, scheds...)
	}

	s.log.Phase("codegen.emit")
	out, err := codegen.Emit(m, allScheds, bufInfos, s.catalog)
	if err != nil {
		return nil, newSchedError(CodegenUnsupported, err, nil)
	}

	sources := make([]string, len(out.KernelOrder))
	for i, h := range out.KernelOrder {
		sources[i] = out.KernelSources[h]
	}

	bufByID := make(map[int]bufplan.BufInfo, len(bufInfos))
	for _, bi := range bufInfos {
		bufByID[bi.TBuf.ID] = bi
	}
	resolve := func(tensorID int) (device.Address, error) {
		t, err := m.Tensor(tensorID)
		if err != nil {
			return device.Address{}, err
		}
		bi, ok := bufByID[t.Buf.ID]
		if !ok {
			return device.Address{}, pkgerrors.Errorf("tensor %d: no planned buffer", tensorID)
		}
		off, err := t.OffsetBytes(make([]int64, t.NDims())...)
		if err != nil {
			return device.Address{}, err
		}
		return device.Address{GPUID: bi.GPUID, Handle: uintptr(bi.Offset + off)}, nil
	}

	return &KernelPlan{
		KernelSources: sources,
		Launches:      launches,
		BufInfos:      sortedBufInfos(bufInfos),
		Resolve:       resolve,
	}, nil
}

func selectPacker(cfg Config) packer.Packer {
	switch cfg.Packer {
	case packer.KindPartitioned:
		return packer.Partitioned{TimeBudget: cfg.PartitionTimeBudget}
	case packer.KindSimple:
		return packer.Simple{}
	default:
		return packer.Default{}
	}
}

func wrapBufplanError(err error) error {
	switch {
	case pkgerrors.Is(err, device.ErrOutOfDeviceMemory):
		return newSchedError(OutOfDeviceMemory, err, nil)
	case pkgerrors.Is(err, device.ErrImportUnresolved):
		return newSchedError(ImportUnresolved, err, nil)
	case pkgerrors.Is(err, device.ErrExportConflict):
		return newSchedError(ExportConflict, err, nil)
	default:
		return newSchedError(OutOfDeviceMemory, err, nil)
	}
}

func sortedBufInfos(infos []bufplan.BufInfo) []bufplan.BufInfo {
	out := append([]bufplan.BufInfo(nil), infos...)
	sort.Slice(out, func(i, j int) bool { return out[i].TBuf.ID < out[j].TBuf.ID })
	return out
}
