package main

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/flowmesh/gpusched/catalog"
	"github.com/flowmesh/gpusched/internal/opcode"
	"github.com/flowmesh/gpusched/tensor"
)

// demoCatalog is a stand-in kernel library: every opcode the scheduler
// core knows about gets one generic signature, wide enough in dtype and
// warp range to let any demo model through, and Emit just renders a
// readable stub body rather than real device code.
type demoCatalog struct{}

var demoDTypes = []tensor.DType{tensor.Byte, tensor.Int32, tensor.FP16, tensor.FP32}

func (demoCatalog) Signature(op opcode.Opcode) (catalog.Signature, error) {
	if op == opcode.Invalid {
		return catalog.Signature{}, errors.Errorf("opcode %s: no kernel implements it", op)
	}
	arity := 2
	if !op.IsElementwise() {
		arity = 1
	}
	return catalog.Signature{
		Opcode:      op,
		Arity:       arity,
		DTypes:      demoDTypes,
		MinWarps:    1,
		MaxWarps:    32,
		SMsRequired: 1,
	}, nil
}

func (demoCatalog) Emit(hash string, ops []opcode.Opcode, layout map[string]any) (string, error) {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.String()
	}
	return fmt.Sprintf("// kernel %s\n// ops: %v\n// layout: %v\nextern \"C\" __global__ void k_%s() {}\n",
		hash, names, layout, hash), nil
}
