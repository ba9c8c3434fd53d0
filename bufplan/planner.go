// Package bufplan implements C4, the buffer planner: it assigns a
// physical device arena offset (or a resolved remote address) to every
// TensorBuf in an optimized op graph, registering exports with the
// device.Manager and resolving imports via a device.IpcTransport. The
// rank/sid bookkeeping generalizes a
// device-mesh axis model from sharding axes to ranks; the single-arena
// layout is a bump allocator with disjoint-liveness reuse, the same idiom
// sublation's runtime arena uses.
package bufplan

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/flowmesh/gpusched/device"
	"github.com/flowmesh/gpusched/opgraph"
	"github.com/flowmesh/gpusched/tensor"
)

// ArenaStrategy controls whether disjoint-liveness buffers may share
// physical bytes, a debugging knob for isolating allocation bugs.
type ArenaStrategy int

const (
	ReuseDisjoint ArenaStrategy = iota
	NoReuse
)

var (
	ErrOutOfDeviceMemory = device.ErrOutOfDeviceMemory
	ErrImportUnresolved  = device.ErrImportUnresolved
	ErrExportConflict    = device.ErrExportConflict
)

// BufInfo is the planning record for one TensorBuf.
type BufInfo struct {
	GPUID  int
	Bytes  int64
	TBuf   *tensor.TensorBuf
	Sid    int // -1 means local-only
	Offset int64
}

// Config bundles the planner's tunables.
type Config struct {
	ImportDeadline time.Duration // default 30s
	ArenaStrategy  ArenaStrategy
}

func (c Config) deadline() time.Duration {
	if c.ImportDeadline <= 0 {
		return 30 * time.Second
	}
	return c.ImportDeadline
}

type liveness struct {
	first, last int
	exported    bool
	remoteRank  int // -1 if local
}

// Plan computes a BufInfo for every TensorBuf reachable from g, allocating
// local buffers in a single arena via mgr, registering exported buffers
// via mgr.RegisterExport, and resolving imported buffers via transport.
// It also binds each TensorBuf's Addr to its planned GPU id and offset.
func Plan(ctx context.Context, g *opgraph.OpGraph, gpuID, rank, worldSize int, mgr device.Manager, transport device.IpcTransport, cfg Config) ([]BufInfo, error) {
	bufs, tensorsOf := collectBufsFromGraph(g)
	live := computeLiveness(g, tensorsOf, bufs)

	var local, remote []*tensor.TensorBuf
	for _, b := range bufs {
		if live[b.ID].remoteRank >= 0 {
			remote = append(remote, b)
		} else {
			local = append(local, b)
		}
	}

	if err := checkExportConflicts(local, live); err != nil {
		return nil, err
	}

	infos, err := planLocal(ctx, local, live, mgr, cfg)
	if err != nil {
		return nil, err
	}

	remoteInfos, err := planRemote(ctx, remote, live, transport, cfg)
	if err != nil {
		return nil, err
	}

	infos = append(infos, remoteInfos...)
	sort.Slice(infos, func(i, j int) bool { return infos[i].TBuf.ID < infos[j].TBuf.ID })
	for _, info := range infos {
		info.TBuf.Addr = &tensor.PhysicalAddress{GPUID: info.GPUID, Offset: info.Offset}
	}
	return infos, nil
}

// collectBufsFromGraph returns every distinct TensorBuf referenced by g's
// model, in ascending id order, along with the set of tensor views backed
// by each one.
func collectBufsFromGraph(g *opgraph.OpGraph) ([]*tensor.TensorBuf, map[int][]*tensor.Tensor) {
	seen := map[int]*tensor.TensorBuf{}
	tensorsOf := map[int][]*tensor.Tensor{}
	for _, t := range g.Model.Tensors {
		if _, ok := seen[t.Buf.ID]; !ok {
			seen[t.Buf.ID] = t.Buf
		}
		tensorsOf[t.Buf.ID] = append(tensorsOf[t.Buf.ID], t)
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	bufs := make([]*tensor.TensorBuf, 0, len(ids))
	for _, id := range ids {
		bufs = append(bufs, seen[id])
		sort.Slice(tensorsOf[id], func(i, j int) bool { return tensorsOf[id][i].ID < tensorsOf[id][j].ID })
	}
	return bufs, tensorsOf
}

func computeLiveness(g *opgraph.OpGraph, tensorsOf map[int][]*tensor.Tensor, bufs []*tensor.TensorBuf) map[int]*liveness {
	live := map[int]*liveness{}
	for _, b := range bufs {
		live[b.ID] = &liveness{first: -1, last: -1, remoteRank: -1}
	}

	for _, n := range g.Nodes {
		for _, tid := range n.Op.Inputs {
			touch(live, g, tid, n.Depth)
		}
		for _, tid := range n.Op.Outputs {
			touch(live, g, tid, n.Depth)
		}
	}

	maxDepth := g.NumDepths() - 1
	for bufID, tensors := range tensorsOf {
		l := live[bufID]
		for _, t := range tensors {
			if t.Exported {
				l.exported = true
			}
			if t.ImportedRank >= 0 {
				l.remoteRank = t.ImportedRank
			}
		}
		if l.exported && l.last < maxDepth {
			l.last = maxDepth
		}
		if l.first < 0 {
			l.first = 0
		}
		if l.last < 0 {
			l.last = maxDepth
		}
	}
	return live
}

func touch(live map[int]*liveness, g *opgraph.OpGraph, tensorID, depth int) {
	t, err := g.Model.Tensor(tensorID)
	if err != nil {
		return
	}
	l, ok := live[t.Buf.ID]
	if !ok {
		return
	}
	if l.first < 0 || depth < l.first {
		l.first = depth
	}
	if depth > l.last {
		l.last = depth
	}
}

func overlaps(a, b *liveness) bool {
	return a.first <= b.last && b.first <= a.last
}

// slotFits reports whether l can join s without overlapping any tenant
// already assigned to it.
func slotFits(s *slot, l *liveness) bool {
	for _, t := range s.tenants {
		if t.exported || overlaps(t, l) {
			return false
		}
	}
	return true
}

func checkExportConflicts(local []*tensor.TensorBuf, live map[int]*liveness) error {
	seen := map[int]int{} // sid -> buf id
	for _, b := range local {
		if !live[b.ID].exported || b.StreamID < 0 {
			continue
		}
		if other, ok := seen[b.StreamID]; ok {
			return errors.Wrapf(ErrExportConflict, "sid %d exported by both buf %d and buf %d", b.StreamID, other, b.ID)
		}
		seen[b.StreamID] = b.ID
	}
	return nil
}

// slot is one arena offset's occupancy record: its capacity (the largest
// buffer ever placed there) and every liveness interval currently
// assigned to it. A candidate buffer may reuse a slot only if its
// interval is disjoint from every interval already in tenants, not just
// the one a caller happened to compare against -- two earlier tenants
// can each be individually disjoint from a third buffer while being live
// at different times from each other, so the slot as a whole must stay
// conflict-free across all of its tenants.
type slot struct {
	offset  int64
	bytes   int64
	tenants []*liveness
}

func planLocal(ctx context.Context, local []*tensor.TensorBuf, live map[int]*liveness, mgr device.Manager, cfg Config) ([]BufInfo, error) {
	ordered := append([]*tensor.TensorBuf(nil), local...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Bytes != ordered[j].Bytes {
			return ordered[i].Bytes > ordered[j].Bytes
		}
		return ordered[i].ID < ordered[j].ID
	})

	var slots []*slot
	var top int64
	infos := make([]BufInfo, 0, len(ordered))
	for _, b := range ordered {
		l := live[b.ID]
		var target *slot
		if cfg.ArenaStrategy != NoReuse && !l.exported {
			for _, s := range slots {
				if s.bytes < b.Bytes {
					continue
				}
				if slotFits(s, l) {
					target = s
					break
				}
			}
		}
		var offset int64
		if target != nil {
			offset = target.offset
			target.tenants = append(target.tenants, l)
		} else {
			offset = top
			top += b.Bytes
			slots = append(slots, &slot{offset: offset, bytes: b.Bytes, tenants: []*liveness{l}})
		}
		infos = append(infos, BufInfo{Bytes: b.Bytes, TBuf: b, Sid: b.StreamID, Offset: offset})
	}

	base, err := mgr.AllocateArena(ctx, top)
	if err != nil {
		return nil, errors.Wrap(err, "allocating local arena")
	}

	for i := range infos {
		infos[i].GPUID = base.GPUID
		if infos[i].Sid >= 0 && live[infos[i].TBuf.ID].exported {
			addr := device.Address{GPUID: base.GPUID, Handle: base.Handle + uintptr(infos[i].Offset)}
			if err := mgr.RegisterExport(ctx, infos[i].Sid, addr, infos[i].Bytes); err != nil {
				return nil, errors.Wrapf(err, "registering export sid=%d", infos[i].Sid)
			}
		}
	}
	return infos, nil
}

func planRemote(ctx context.Context, remote []*tensor.TensorBuf, live map[int]*liveness, transport device.IpcTransport, cfg Config) ([]BufInfo, error) {
	infos := make([]BufInfo, 0, len(remote))
	for _, b := range remote {
		l := live[b.ID]
		lookupCtx, cancel := context.WithTimeout(ctx, cfg.deadline())
		addr, err := transport.Lookup(lookupCtx, l.remoteRank, b.StreamID)
		cancel()
		if err != nil {
			return nil, errors.Wrapf(err, "resolving import rank=%d sid=%d", l.remoteRank, b.StreamID)
		}
		infos = append(infos, BufInfo{
			GPUID:  addr.GPUID,
			Bytes:  b.Bytes,
			TBuf:   b,
			Sid:    b.StreamID,
			Offset: int64(addr.Handle),
		})
	}
	return infos, nil
}
