package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/flowmesh/gpusched/internal/opcode"
	"github.com/flowmesh/gpusched/model"
	"github.com/flowmesh/gpusched/shapes"
	"github.com/flowmesh/gpusched/tensor"
)

// tensorSpec is one tensor declaration in a demo model file. Sid is only
// meaningful when Exported or Imported is set; ImportedRank is only
// meaningful when Imported is set.
type tensorSpec struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Shape        []int64 `json:"shape"`
	DType        string  `json:"dtype"`
	Exported     bool    `json:"exported"`
	Imported     bool    `json:"imported"`
	ImportedRank int     `json:"imported_rank"`
	Sid          int     `json:"sid"`
}

// opSpec is one op declaration in a demo model file.
type opSpec struct {
	Opcode  opcode.Opcode  `json:"opcode"`
	Inputs  []int          `json:"inputs"`
	Outputs []int          `json:"outputs"`
	Config  map[string]any `json:"config"`
}

// modelFile is the on-disk JSON shape gpuschedc reads: a flat list of
// tensors followed by the ops that declare them, in the order the caller
// wants them scheduled.
type modelFile struct {
	Tensors []tensorSpec `json:"tensors"`
	Ops     []opSpec     `json:"ops"`
}

var dtypeByName = map[string]tensor.DType{
	"byte":  tensor.Byte,
	"int32": tensor.Int32,
	"fp16":  tensor.FP16,
	"fp32":  tensor.FP32,
}

// loadModel reads a demo model description from path and constructs the
// Model it declares.
func loadModel(path string) (*model.Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var mf modelFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	m := model.New()
	for _, ts := range mf.Tensors {
		dt, ok := dtypeByName[ts.DType]
		if !ok {
			return nil, errors.Errorf("tensor %d: unknown dtype %q", ts.ID, ts.DType)
		}
		shape, err := shapes.New(ts.Shape...)
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %d", ts.ID)
		}
		bytesWidth, err := tensor.TypeBytes(dt)
		if err != nil {
			return nil, err
		}
		importedRank := -1
		sid := -1
		if ts.Imported {
			importedRank = ts.ImportedRank
			sid = ts.Sid
		} else if ts.Exported {
			sid = ts.Sid
		}
		buf := tensor.NewTensorBuf(shape.NElements()*int64(bytesWidth), ts.ID)
		buf.StreamID = sid
		tn, err := tensor.New(ts.ID, shape, dt, buf, tensor.Config{
			Name:         ts.Name,
			Exported:     ts.Exported,
			ImportedRank: importedRank,
		})
		if err != nil {
			return nil, err
		}
		m.AddTensor(tn)
	}

	for _, spec := range mf.Ops {
		if _, err := m.AddOp(spec.Opcode, spec.Inputs, spec.Outputs, normalizeConfig(spec.Config)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// normalizeConfig converts the []any perm field encoding/json produces
// for a JSON number array into the []int the optimizer and catalog
// expect.
func normalizeConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	if raw, ok := cfg["perm"]; ok {
		if items, ok := raw.([]any); ok {
			perm := make([]int, len(items))
			for i, v := range items {
				if f, ok := v.(float64); ok {
					perm[i] = int(f)
				}
			}
			cfg["perm"] = perm
		}
	}
	return cfg
}
