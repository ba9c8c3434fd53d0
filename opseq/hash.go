package opseq

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// SequenceHash computes H(opcodes, canonical_shapes, dtypes, tile_params):
// sequences with equal hash share a generated kernel, so
// the encoding must be canonical regardless of map iteration order and
// must not depend on anything but the sequence's observable shape (no
// tensor/op ids).
func SequenceHash(s *SchedOpSeq) string {
	var b strings.Builder
	for _, so := range s.Ops {
		fmt.Fprintf(&b, "shape:%s;", so.ShapeKey)
		fmt.Fprintf(&b, "tile:%s;", canonicalConfig(so.Op.Config))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalConfig renders an op's Config map as a stable, sorted-key
// string so the hash never depends on Go's randomized map iteration.
func canonicalConfig(cfg map[string]any) string {
	if len(cfg) == 0 {
		return ""
	}
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v,", k, cfg[k])
	}
	return b.String()
}
