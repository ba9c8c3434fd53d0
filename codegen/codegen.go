// Package codegen implements C7: given the Sched entries packed per
// depth and the BufInfo list planned in C4, it emits one kernel source
// unit per unique sequence hash and one launch descriptor per Sched
// entry, resolving every tensor to a base pointer + byte offset. The
// writer shape -- an err-latching closure so every
// subsequent write after the first failure is a no-op -- is
// statement.go's Write(io.Writer) pattern, applied to kernel source text
// instead of StableHLO.
package codegen

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/flowmesh/gpusched/bufplan"
	"github.com/flowmesh/gpusched/catalog"
	"github.com/flowmesh/gpusched/internal/opcode"
	"github.com/flowmesh/gpusched/model"
	"github.com/flowmesh/gpusched/opseq"
	"github.com/flowmesh/gpusched/packer"
	"github.com/flowmesh/gpusched/tensor"
)

// ErrCodegenUnsupported wraps any failure from the KernelCatalog while
// emitting a sequence's source.
var ErrCodegenUnsupported = errors.New("CodegenUnsupported")

// PointerRef is a resolved tensor reference: a base device pointer
// (gpu_id + byte offset) that the generated source indexes into. Every
// PointerRef here must trace back to a BufInfo in the plan.
type PointerRef struct {
	TensorID int
	GPUID    int
	Offset   int64
}

// SeqLaunch is one sequence's launch record within a Sched entry.
type SeqLaunch struct {
	Hash    string
	Warps   int
	Inputs  []PointerRef
	Outputs []PointerRef
}

// LaunchDescriptor is the launch-time counterpart of one packer.Sched
// entry: every sequence that runs concurrently within it, pointer-resolved.
type LaunchDescriptor struct {
	Depth    int
	Launches []SeqLaunch
}

// Output is C7's full result: one kernel source per unique sequence hash
// (in ascending-hash order, for deterministic iteration) plus one launch
// descriptor per Sched entry in packing order.
type Output struct {
	KernelSources map[string]string
	KernelOrder   []string // ascending-hash order, since map iteration is not deterministic
	Launches      []LaunchDescriptor
}

// Emit builds the Output for every Sched entry across every depth, in
// depth order, using cat to render each unique sequence's kernel source
// and bufInfos (from C4) to resolve pointers.
func Emit(m *model.Model, scheds []packer.Sched, bufInfos []bufplan.BufInfo, cat catalog.KernelCatalog) (*Output, error) {
	bufByID := make(map[int]bufplan.BufInfo, len(bufInfos))
	for _, bi := range bufInfos {
		bufByID[bi.TBuf.ID] = bi
	}

	out := &Output{KernelSources: map[string]string{}}
	seen := map[string]bool{}

	for _, sched := range scheds {
		ld := LaunchDescriptor{Depth: sched.Depth}
		for _, seq := range sched.Sequences {
			if !seen[seq.Hash] {
				src, err := renderKernel(cat, seq)
				if err != nil {
					return nil, errors.Wrapf(ErrCodegenUnsupported, "sequence %s: %v", seq.Hash, err)
				}
				out.KernelSources[seq.Hash] = src
				seen[seq.Hash] = true
			}
			launch, err := resolveLaunch(m, seq, bufByID)
			if err != nil {
				return nil, err
			}
			ld.Launches = append(ld.Launches, launch)
		}
		out.Launches = append(out.Launches, ld)
	}

	out.KernelOrder = make([]string, 0, len(out.KernelSources))
	for h := range out.KernelSources {
		out.KernelOrder = append(out.KernelOrder, h)
	}
	sort.Strings(out.KernelOrder)
	return out, nil
}

func renderKernel(cat catalog.KernelCatalog, seq *opseq.SchedOpSeq) (string, error) {
	opcodes := make([]opcode.Opcode, 0, len(seq.Ops))
	for _, so := range seq.Ops {
		opcodes = append(opcodes, so.Op.Opcode)
	}
	layout := map[string]any{
		"warps":  seq.Warps,
		"shapes": shapeKeys(seq),
	}
	return cat.Emit(seq.Hash, opcodes, layout)
}

func shapeKeys(seq *opseq.SchedOpSeq) []string {
	keys := make([]string, len(seq.Ops))
	for i, so := range seq.Ops {
		keys[i] = so.ShapeKey
	}
	return keys
}

func resolveLaunch(m *model.Model, seq *opseq.SchedOpSeq, bufByID map[int]bufplan.BufInfo) (SeqLaunch, error) {
	launch := SeqLaunch{Hash: seq.Hash, Warps: seq.Warps}
	for _, so := range seq.Ops {
		for _, id := range so.Op.Inputs {
			ref, err := resolvePointer(m, id, bufByID)
			if err != nil {
				return SeqLaunch{}, err
			}
			launch.Inputs = append(launch.Inputs, ref)
		}
		for _, id := range so.Op.Outputs {
			ref, err := resolvePointer(m, id, bufByID)
			if err != nil {
				return SeqLaunch{}, err
			}
			launch.Outputs = append(launch.Outputs, ref)
		}
	}
	return launch, nil
}

// resolvePointer resolves tensorID to a base pointer: the
// address is BufInfo.Offset (the planned arena/remote offset) plus the
// tensor's own byte offset within its buffer at index zero.
func resolvePointer(m *model.Model, tensorID int, bufByID map[int]bufplan.BufInfo) (PointerRef, error) {
	t, err := m.Tensor(tensorID)
	if err != nil {
		return PointerRef{}, err
	}
	bi, ok := bufByID[t.Buf.ID]
	if !ok {
		return PointerRef{}, errors.Errorf("tensor %d: no BufInfo planned for buffer %d", tensorID, t.Buf.ID)
	}
	zeros := make([]int64, t.NDims())
	base, err := t.OffsetBytes(zeros...)
	if err != nil {
		return PointerRef{}, err
	}
	return PointerRef{TensorID: tensorID, GPUID: bi.GPUID, Offset: bi.Offset + base}, nil
}

// WriteKernelSource writes a deterministic header (sequence hash and
// dtype constant table; no warp count) followed by src, mirroring
// statement.go's err-latching Write(io.Writer) pattern.
func WriteKernelSource(w io.Writer, hash string, dtypeConstants []tensor.DType, src string) error {
	var werr error
	write := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(w, format, args...)
	}

	write("// sequence %s\n", hash)
	for _, dt := range dtypeConstants {
		write("// dtype %v zero = %s\n", dt, zeroLiteral(dt))
	}
	write("%s", src)
	return werr
}

// zeroLiteral renders dtype's zero value as a deterministic literal,
// using float16's bit encoding for FP16 so kernel source never depends on
// the host's native float16 support.
func zeroLiteral(dt tensor.DType) string {
	if dt == tensor.FP16 {
		return fmt.Sprintf("0x%04x", float16.Fromfloat32(0).Bits())
	}
	return "0"
}
