package profiler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCyclesCachesResult(t *testing.T) {
	calls := 0
	bench := func(ctx context.Context, hash string, warps int) (int64, error) {
		calls++
		return int64(warps) * 10, nil
	}
	p := New(bench, time.Second)

	c1, err := p.Cycles(context.Background(), "h1", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(40), c1)

	c2, err := p.Cycles(context.Background(), "h1", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(40), c2)
	assert.Equal(t, 1, calls)
}

func TestCyclesTimeoutIsNonFatal(t *testing.T) {
	bench := func(ctx context.Context, hash string, warps int) (int64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	p := New(bench, time.Millisecond)

	_, err := p.Cycles(context.Background(), "h1", 4)
	assert.ErrorIs(t, err, ErrProfilerTimeout)
}

func TestProfileSequenceCoversAllCandidates(t *testing.T) {
	bench := func(ctx context.Context, hash string, warps int) (int64, error) {
		return int64(warps), nil
	}
	p := New(bench, time.Second)
	profile := p.ProfileSequence(context.Background(), "h1")
	assert.Len(t, profile, len(CandidateWarps))
	assert.Equal(t, int64(1), profile[1])
	assert.Equal(t, int64(32), profile[32])
}

func TestBestWarpsPicksLowestCycles(t *testing.T) {
	profile := map[int]int64{1: 900, 2: 400, 4: 500}
	assert.Equal(t, 2, BestWarps(profile, 16))
}

func TestBestWarpsFallsBackWhenEmpty(t *testing.T) {
	assert.Equal(t, 16, BestWarps(map[int]int64{}, 16))
}

func TestHeuristicCost(t *testing.T) {
	assert.Equal(t, int64(16000), HeuristicCost(16))
}
