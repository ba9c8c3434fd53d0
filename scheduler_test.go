package gpusched

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/gpusched/bufplan"
	"github.com/flowmesh/gpusched/catalog"
	"github.com/flowmesh/gpusched/device"
	"github.com/flowmesh/gpusched/internal/opcode"
	"github.com/flowmesh/gpusched/model"
	"github.com/flowmesh/gpusched/packer"
	"github.com/flowmesh/gpusched/shapes"
	"github.com/flowmesh/gpusched/tensor"
)

type fakeManager struct {
	free int64
	next uintptr
	regs map[int]device.Address
}

func newFakeManager(free int64) *fakeManager {
	return &fakeManager{free: free, regs: map[int]device.Address{}}
}

func (f *fakeManager) DeviceInfo(ctx context.Context) (device.Info, error) {
	return device.Info{SMCount: 8, WarpsPerSM: 4, BytesFree: f.free}, nil
}

func (f *fakeManager) AllocateArena(ctx context.Context, bytes int64) (device.Address, error) {
	if bytes > f.free {
		return device.Address{}, device.ErrOutOfDeviceMemory
	}
	f.free -= bytes
	addr := device.Address{GPUID: 0, Handle: f.next}
	f.next += uintptr(bytes)
	return addr, nil
}

func (f *fakeManager) RegisterExport(ctx context.Context, sid int, addr device.Address, bytes int64) error {
	if _, ok := f.regs[sid]; ok {
		return device.ErrExportConflict
	}
	f.regs[sid] = addr
	return nil
}

type fakeTransport struct {
	published map[int]device.Address
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{published: map[int]device.Address{}}
}

func (f *fakeTransport) Publish(ctx context.Context, sid int, handle device.Address) error {
	f.published[sid] = handle
	return nil
}

func (f *fakeTransport) Lookup(ctx context.Context, rank, sid int) (device.Address, error) {
	if addr, ok := f.published[sid]; ok {
		return addr, nil
	}
	return device.Address{}, device.ErrImportUnresolved
}

type fakeCatalog struct {
	sigs map[opcode.Opcode]catalog.Signature
}

func (f *fakeCatalog) Signature(op opcode.Opcode) (catalog.Signature, error) {
	sig, ok := f.sigs[op]
	if !ok {
		return catalog.Signature{}, assert.AnError
	}
	return sig, nil
}

func (f *fakeCatalog) Emit(hash string, ops []opcode.Opcode, layout map[string]any) (string, error) {
	return "// kernel " + hash, nil
}

func newTensorWith(t *testing.T, m *model.Model, dims []int64, bytes int64, exported bool, sid, importedRank int) int {
	id := m.NextTensorID()
	shape, err := shapes.New(dims...)
	require.NoError(t, err)
	buf := tensor.NewTensorBuf(bytes, id)
	buf.StreamID = sid
	tn, err := tensor.New(id, shape, tensor.FP32, buf, tensor.Config{
		ImportedRank: importedRank,
		Exported:     exported,
	})
	require.NoError(t, err)
	m.AddTensor(tn)
	return id
}

func newLocalTensor(t *testing.T, m *model.Model, dims []int64, bytes int64) int {
	return newTensorWith(t, m, dims, bytes, false, -1, -1)
}

// TestScheduleSingleTranspose: one transpose op on a single depth should
// produce one depth, one kernel source, and one Sched holding one
// sequence.
func TestScheduleSingleTranspose(t *testing.T) {
	m := model.New()
	x := newLocalTensor(t, m, []int64{3, 2048, 96, 128}, 3*2048*96*128*4)
	y := newLocalTensor(t, m, []int64{3, 96, 2048, 128}, 3*2048*96*128*4)
	_, err := m.AddOp(opcode.Transpose, []int{x}, []int{y}, map[string]any{"perm": []int{0, 2, 1, 3}})
	require.NoError(t, err)

	mgr := newFakeManager(1 << 30)
	transport := newFakeTransport()
	cat := &fakeCatalog{sigs: map[opcode.Opcode]catalog.Signature{
		opcode.Transpose: {Opcode: opcode.Transpose, DTypes: []tensor.DType{tensor.FP32}, MinWarps: 4},
	}}

	s := NewScheduler(mgr, transport, cat, Config{})
	plan, err := s.Schedule(m, 0, 0, 1)
	require.NoError(t, err)

	assert.EqualValues(t, 1, s.NumDepths())
	require.Len(t, plan.Launches, 1)
	require.Len(t, plan.Launches[0], 1)
	assert.Len(t, plan.Launches[0][0].Sequences, 1)
	require.Len(t, plan.KernelSources, 1)

	// The op's declared output shape must match applying its own perm to
	// the input's Tensor view, and transposing back by the inverse perm
	// must restore the input's shape exactly.
	xt, err := m.Tensor(x)
	require.NoError(t, err)
	yt, err := m.Tensor(y)
	require.NoError(t, err)
	perm := []int{0, 2, 1, 3}
	view, err := xt.Transpose(perm)
	require.NoError(t, err)
	assert.True(t, view.Shape.Equal(yt.Shape))

	restored, err := view.Transpose(tensor.InvertPerm(perm))
	require.NoError(t, err)
	assert.True(t, restored.Shape.Equal(xt.Shape))
}

// TestScheduleExportImportAcrossRanks: rank 0 exports a buffer under
// sid=7; rank 1's model imports that same sid from rank 0 and its
// Resolve must produce the address rank 0's plan registered.
func TestScheduleExportImportAcrossRanks(t *testing.T) {
	transport := newFakeTransport()
	cat := &fakeCatalog{sigs: map[opcode.Opcode]catalog.Signature{
		opcode.Relu: {Opcode: opcode.Relu, DTypes: []tensor.DType{tensor.FP32}, MinWarps: 2},
	}}

	mgr0 := newFakeManager(1 << 30)
	m0 := model.New()
	x0 := newLocalTensor(t, m0, []int64{4, 4}, 64)
	y0 := newTensorWith(t, m0, []int64{4, 4}, 64, true, 7, -1)
	_, err := m0.AddOp(opcode.Relu, []int{x0}, []int{y0}, nil)
	require.NoError(t, err)

	s0 := NewScheduler(mgr0, transport, cat, Config{})
	plan0, err := s0.Schedule(m0, 0, 0, 2)
	require.NoError(t, err)

	var exportedAddr device.Address
	for _, bi := range plan0.BufInfos {
		if bi.Sid == 7 {
			exportedAddr = device.Address{GPUID: bi.GPUID, Handle: uintptr(bi.Offset)}
		}
	}
	require.NoError(t, transport.Publish(context.Background(), 7, exportedAddr))

	mgr1 := newFakeManager(1 << 30)
	m1 := model.New()
	x1 := newLocalTensor(t, m1, []int64{4, 4}, 64)
	imp1 := newTensorWith(t, m1, []int64{4, 4}, 64, false, 7, 0)
	_, err = m1.AddOp(opcode.Relu, []int{x1}, []int{imp1}, nil)
	require.NoError(t, err)

	s1 := NewScheduler(mgr1, transport, cat, Config{})
	plan1, err := s1.Schedule(m1, 0, 1, 2)
	require.NoError(t, err)

	addr, err := plan1.Resolve(imp1)
	require.NoError(t, err)
	assert.Equal(t, exportedAddr, addr)
}

// TestScheduleCyclicGraphRejected mirrors opgraph's own cyclic-graph
// detection at the Schedule entry point, confirming it surfaces as a
// CyclicGraph SchedError.
func TestScheduleCyclicGraphRejected(t *testing.T) {
	// Transpose ops, not elementwise, so optimize_model's chain coalescing
	// never touches them and the cycle reaches Build intact.
	m := model.New()
	x := newLocalTensor(t, m, []int64{4, 4}, 64)
	y := newLocalTensor(t, m, []int64{4, 4}, 64)
	perm := map[string]any{"perm": []int{1, 0}}
	_, err := m.AddOp(opcode.Transpose, []int{x}, []int{y}, perm)
	require.NoError(t, err)
	_, err = m.AddOp(opcode.Transpose, []int{y}, []int{x}, perm)
	require.NoError(t, err)

	mgr := newFakeManager(1 << 30)
	transport := newFakeTransport()
	cat := &fakeCatalog{sigs: map[opcode.Opcode]catalog.Signature{
		opcode.Transpose: {Opcode: opcode.Transpose, DTypes: []tensor.DType{tensor.FP32}, MinWarps: 1},
	}}

	s := NewScheduler(mgr, transport, cat, Config{})
	_, err = s.Schedule(m, 0, 0, 1)
	require.Error(t, err)
	var sErr *SchedError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, CyclicGraph, sErr.Kind)
}

// TestScheduleArenaReuse: two equal-size local buffers with disjoint
// liveness get the same offset under ReuseDisjoint and distinct offsets
// under NoReuse.
func TestScheduleArenaReuse(t *testing.T) {
	// Transpose, not an elementwise opcode, so optimize_model's chain
	// coalescing never folds these two ops together and erases y from
	// the graph -- each op stays its own depth.
	perm := map[string]any{"perm": []int{1, 0}}
	build := func(arena bufplan.ArenaStrategy) *KernelPlan {
		m := model.New()
		x := newLocalTensor(t, m, []int64{4, 4}, 64) // depth 0-0
		y := newLocalTensor(t, m, []int64{4, 4}, 64)
		_, err := m.AddOp(opcode.Transpose, []int{x}, []int{y}, perm) // depth 0
		require.NoError(t, err)
		z := newLocalTensor(t, m, []int64{4, 4}, 64) // depth 1-1
		_, err = m.AddOp(opcode.Transpose, []int{y}, []int{z}, perm) // depth 1
		require.NoError(t, err)

		mgr := newFakeManager(1 << 30)
		transport := newFakeTransport()
		cat := &fakeCatalog{sigs: map[opcode.Opcode]catalog.Signature{
			opcode.Transpose: {Opcode: opcode.Transpose, DTypes: []tensor.DType{tensor.FP32}, MinWarps: 1},
		}}
		s := NewScheduler(mgr, transport, cat, Config{ArenaStrategy: arena})
		plan, err := s.Schedule(m, 0, 0, 1)
		require.NoError(t, err)
		return plan
	}

	offsetOf := func(plan *KernelPlan, tensorID int) int64 {
		for _, bi := range plan.BufInfos {
			if bi.TBuf.ID == tensorID {
				return bi.Offset
			}
		}
		t.Fatalf("tensor %d has no BufInfo", tensorID)
		return -1
	}

	reused := build(bufplan.ReuseDisjoint)
	noReuse := build(bufplan.NoReuse)

	// x (id 0, depth [0,0]) and z (id 2, depth [1,1]) don't overlap and
	// are the same size, so ReuseDisjoint should place z at x's offset.
	assert.Equal(t, offsetOf(reused, 0), offsetOf(reused, 2))
	assert.NotEqual(t, offsetOf(noReuse, 0), offsetOf(noReuse, 2))
}

// TestScheduleWarpOverflowSplitsEntries exercises the Default packer's
// first-fit-descending bin packing end to end: four 10-warp sequences
// with a 32-warp budget should split into {30 warps} and {10 warps}.
func TestScheduleWarpOverflowSplitsEntries(t *testing.T) {
	m := model.New()
	for i := 0; i < 4; i++ {
		x := newLocalTensor(t, m, []int64{4}, 16)
		y := newLocalTensor(t, m, []int64{4}, 16)
		_, err := m.AddOp(opcode.Exp, []int{x}, []int{y}, nil)
		require.NoError(t, err)
	}

	mgr := newFakeManager(1 << 30)
	transport := newFakeTransport()
	cat := &fakeCatalog{sigs: map[opcode.Opcode]catalog.Signature{
		opcode.Exp: {Opcode: opcode.Exp, DTypes: []tensor.DType{tensor.FP32}, MinWarps: 10},
	}}

	s := NewScheduler(mgr, transport, cat, Config{
		WPS:    10,
		Budget: packer.Budget{SMCount: 1, WarpsPerSM: 32},
	})
	plan, err := s.Schedule(m, 0, 0, 1)
	require.NoError(t, err)

	require.Len(t, plan.Launches, 1)
	entries := plan.Launches[0]
	require.Len(t, entries, 2)
	assert.Equal(t, 30, entries[0].Warps)
	assert.Equal(t, 10, entries[1].Warps)
}

// TestScheduleDeterministic: scheduling equivalent models twice with
// fresh fakes produces identical kernel source bytes and identical
// per-depth Sched warp totals.
func TestScheduleDeterministic(t *testing.T) {
	build := func() *KernelPlan {
		m := model.New()
		x := newLocalTensor(t, m, []int64{8, 8}, 256)
		y := newLocalTensor(t, m, []int64{8, 8}, 256)
		_, err := m.AddOp(opcode.Gelu, []int{x}, []int{y}, nil)
		require.NoError(t, err)

		mgr := newFakeManager(1 << 30)
		transport := newFakeTransport()
		cat := &fakeCatalog{sigs: map[opcode.Opcode]catalog.Signature{
			opcode.Gelu: {Opcode: opcode.Gelu, DTypes: []tensor.DType{tensor.FP32}, MinWarps: 2},
		}}
		s := NewScheduler(mgr, transport, cat, Config{})
		plan, err := s.Schedule(m, 0, 0, 1)
		require.NoError(t, err)
		return plan
	}

	a := build()
	b := build()
	assert.Equal(t, a.KernelSources, b.KernelSources)
	require.Len(t, a.Launches, len(b.Launches))
	for depth := range a.Launches {
		require.Len(t, a.Launches[depth], len(b.Launches[depth]))
		for i := range a.Launches[depth] {
			assert.Equal(t, a.Launches[depth][i].Warps, b.Launches[depth][i].Warps)
		}
	}
}

func TestScheduleRejectsSecondCall(t *testing.T) {
	m := model.New()
	x := newLocalTensor(t, m, []int64{4}, 16)
	y := newLocalTensor(t, m, []int64{4}, 16)
	_, err := m.AddOp(opcode.Relu, []int{x}, []int{y}, nil)
	require.NoError(t, err)

	mgr := newFakeManager(1 << 30)
	transport := newFakeTransport()
	cat := &fakeCatalog{sigs: map[opcode.Opcode]catalog.Signature{
		opcode.Relu: {Opcode: opcode.Relu, DTypes: []tensor.DType{tensor.FP32}, MinWarps: 1},
	}}

	s := NewScheduler(mgr, transport, cat, Config{})
	_, err = s.Schedule(m, 0, 0, 1)
	require.NoError(t, err)

	_, err = s.Schedule(m, 0, 0, 1)
	assert.Error(t, err)
}
