package tensor

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
)

// DType is restricted, for this runtime, to four element types: byte,
// int32, fp16, fp32. We reuse gopjrt's dtype enum rather than inventing
// our own, the way a StableHLO builder would reuse it for its own value
// types.
type DType = dtypes.DType

// The four supported element types and their byte widths.
var (
	Byte  = dtypes.Uint8
	Int32 = dtypes.Int32
	FP16  = dtypes.Float16
	FP32  = dtypes.Float32
)

var byteWidths = map[DType]int{
	Byte:  1,
	Int32: 4,
	FP16:  2,
	FP32:  4,
}

// TypeBytes returns the number of bytes occupied by a single element of
// the given dtype, or an error if it is not one of the four supported
// types.
func TypeBytes(t DType) (int, error) {
	w, ok := byteWidths[t]
	if !ok {
		return 0, fmt.Errorf("unsupported tensor dtype %v: must be one of byte, int32, fp16, fp32", t)
	}
	return w, nil
}

// IsSupportedDType reports whether t is one of the four types this
// runtime understands.
func IsSupportedDType(t DType) bool {
	_, ok := byteWidths[t]
	return ok
}
