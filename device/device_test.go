package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeManager is a trivial in-memory Manager used to pin the interface
// contract down with a concrete implementation.
type fakeManager struct {
	free    int64
	next    uintptr
	exports map[int]Address
}

func newFakeManager(free int64) *fakeManager {
	return &fakeManager{free: free, exports: map[int]Address{}}
}

func (f *fakeManager) DeviceInfo(ctx context.Context) (Info, error) {
	return Info{SMCount: 8, WarpsPerSM: 32, BytesFree: f.free}, nil
}

func (f *fakeManager) AllocateArena(ctx context.Context, bytes int64) (Address, error) {
	if bytes > f.free {
		return Address{}, ErrOutOfDeviceMemory
	}
	f.free -= bytes
	addr := Address{GPUID: 0, Handle: f.next}
	f.next += uintptr(bytes)
	return addr, nil
}

func (f *fakeManager) RegisterExport(ctx context.Context, sid int, addr Address, bytes int64) error {
	if _, ok := f.exports[sid]; ok {
		return ErrExportConflict
	}
	f.exports[sid] = addr
	return nil
}

func TestManagerAllocateArenaExhaustion(t *testing.T) {
	m := newFakeManager(1024)
	ctx := context.Background()

	addr, err := m.AllocateArena(ctx, 512)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0), addr.Handle)

	_, err = m.AllocateArena(ctx, 1024)
	assert.ErrorIs(t, err, ErrOutOfDeviceMemory)
}

func TestManagerRegisterExportConflict(t *testing.T) {
	m := newFakeManager(1024)
	ctx := context.Background()

	addr, err := m.AllocateArena(ctx, 64)
	require.NoError(t, err)
	require.NoError(t, m.RegisterExport(ctx, 7, addr, 64))

	err = m.RegisterExport(ctx, 7, addr, 64)
	assert.ErrorIs(t, err, ErrExportConflict)
}
