// Package shapes implements the dimension/stride algebra shared by the
// tensor and planning layers: ordered integer vectors, element counts,
// and the padding arithmetic used to align physical layouts.
package shapes

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// MaxDims is the maximum number of axes a Dims vector may carry.
const MaxDims = 4

// Dims is an ordered integer vector of length 0-4. A zero-length Dims is
// the distinguished "no-dim" sentinel (see NoDim) used only to signal
// "not provided" at tensor construction; every Dims built by New has
// length 1-4 and all components strictly positive. A tensor's Offs is the
// exception: it defaults to all-zero components.
type Dims []int64

// NoDim is the sentinel empty Dims used only at construction time to mean
// "derive this from another field". It is never a valid shape/ldims/offs/pads
// on a constructed Tensor.
var NoDim = Dims(nil)

// New builds a Dims from the given components, validating: 1-4
// components, every component > 0.
func New(components ...int64) (Dims, error) {
	if len(components) == 0 || len(components) > MaxDims {
		return nil, errors.Wrapf(ErrShapeInvalid, "ndims %d out of range [1,%d]", len(components), MaxDims)
	}
	d := make(Dims, len(components))
	for i, c := range components {
		if c <= 0 {
			return nil, errors.Wrapf(ErrShapeInvalid, "component %d of dims %v must be > 0, got %d", i, components, c)
		}
		d[i] = c
	}
	return d, nil
}

// FromInts is a convenience constructor taking plain ints.
func FromInts(components ...int) (Dims, error) {
	c64 := make([]int64, len(components))
	for i, c := range components {
		c64[i] = int64(c)
	}
	return New(c64...)
}

// IsNoDim reports whether d is the construction-time sentinel.
func (d Dims) IsNoDim() bool {
	return len(d) == 0
}

// NDims returns the number of axes.
func (d Dims) NDims() int {
	return len(d)
}

// NElements returns the product of all components (the element count).
func (d Dims) NElements() int64 {
	if len(d) == 0 {
		return 0
	}
	n := int64(1)
	for _, c := range d {
		n *= c
	}
	return n
}

// Clone returns an independent copy of d.
func (d Dims) Clone() Dims {
	c := make(Dims, len(d))
	copy(c, d)
	return c
}

// Equal reports whether d and other have identical components.
func (d Dims) Equal(other Dims) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if d[i] != other[i] {
			return false
		}
	}
	return true
}

func (d Dims) String() string {
	parts := make([]string, len(d))
	for i, c := range d {
		parts[i] = fmt.Sprintf("%d", c)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Pad rounds x up to the next multiple of unit: ceil(x/unit)*unit.
// unit must be > 0.
func Pad(x, unit int64) int64 {
	if unit <= 1 {
		return x
	}
	return ((x + unit - 1) / unit) * unit
}

// LCM returns the least common multiple of a and b. Either may be zero,
// in which case it is treated as 1 (the identity pad unit).
func LCM(a, b int64) int64 {
	if a <= 0 {
		a = 1
	}
	if b <= 0 {
		b = 1
	}
	return a / gcd(a, b) * b
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
