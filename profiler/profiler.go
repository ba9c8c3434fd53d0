// Package profiler implements C8: it times one-off micro-kernels for a
// sequence hash under each candidate warp count and caches the result,
// so the partitioned packer can weight hyperedges and pick per-sequence
// warp counts by measured cost rather than a static estimate. Concurrent
// fan-out across the warp-count grid uses errgroup, a bounded-fan-out
// idiom reached for whenever a handful of independent calls need to be
// joined at the end.
package profiler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pkg/errors"
)

// CandidateWarps is the fixed grid of warp counts the profiler measures
// per sequence hash.
var CandidateWarps = []int{1, 2, 4, 8, 16, 32}

// ErrProfilerTimeout is non-fatal: callers fall back to HeuristicCost.
var ErrProfilerTimeout = errors.New("ProfilerTimeout")

// HeuristicCost is the fallback cost model used whenever profiling is
// skipped or times out: a fixed placeholder, not a measured value.
func HeuristicCost(warps int) int64 {
	return int64(warps) * 1000
}

// Microbenchmark runs one candidate warp count's micro-kernel on the
// local device and returns its measured cycle count. Supplied by the
// caller, since actually launching a kernel is outside this module's
// scope; the profiler only owns the caching and fan-out around it.
type Microbenchmark func(ctx context.Context, hash string, warps int) (cycles int64, err error)

// Profiler caches (hash, warps) -> cycles. The cache is safe for
// concurrent use, but concurrent callers that miss on the same key each
// run the Microbenchmark; the last result stored wins.
type Profiler struct {
	bench   Microbenchmark
	timeout time.Duration

	mu    sync.Mutex
	cache map[key]int64
}

type key struct {
	hash  string
	warps int
}

// New creates a Profiler that runs bench with the given timeout, applied
// to each (hash, warps) measurement separately (default 5s if timeout <= 0).
func New(bench Microbenchmark, timeout time.Duration) *Profiler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Profiler{bench: bench, timeout: timeout, cache: map[key]int64{}}
}

// Cycles returns the cached measurement for (hash, warps), profiling it
// first if absent.
func (p *Profiler) Cycles(ctx context.Context, hash string, warps int) (int64, error) {
	p.mu.Lock()
	if c, ok := p.cache[key{hash, warps}]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	bctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	cycles, err := p.bench(bctx, hash, warps)
	if err != nil {
		return 0, errors.Wrapf(ErrProfilerTimeout, "hash=%s warps=%d: %v", hash, warps, err)
	}

	p.mu.Lock()
	p.cache[key{hash, warps}] = cycles
	p.mu.Unlock()
	return cycles, nil
}

// ProfileSequence measures every candidate warp count for hash
// concurrently, returning a map from warps to cycles. Entries whose
// micro-benchmark fails (including timing out) are simply omitted from
// the result rather than failing the whole call, since this is used only
// to weight choices, never to gate scheduling.
func (p *Profiler) ProfileSequence(ctx context.Context, hash string) map[int]int64 {
	results := make(map[int]int64, len(CandidateWarps))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, warps := range CandidateWarps {
		warps := warps
		g.Go(func() error {
			cycles, err := p.Cycles(gctx, hash, warps)
			if err != nil {
				return nil // timeout/failure for one candidate doesn't abort the others
			}
			mu.Lock()
			results[warps] = cycles
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// BestWarps returns the warp count with the lowest measured cycle count
// among profile, or fallback if profile is empty (e.g. every candidate
// timed out).
func BestWarps(profile map[int]int64, fallback int) int {
	best, bestCycles := fallback, int64(-1)
	for w, c := range profile {
		if bestCycles < 0 || c < bestCycles || (c == bestCycles && w < best) {
			best, bestCycles = w, c
		}
	}
	return best
}
