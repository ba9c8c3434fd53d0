// Package device declares the scheduler's two external collaborators:
// the GPU driver/runtime binding (Manager) and the cross-rank transport
// (IpcTransport). Both are abstracted at their interface only; a real
// implementation lives outside this module. The interface shapes follow
// the context-scoped, typed-sentinel-error style of
// Leeaandrob-kv-cache-p2p's GPUConnector.
package device

import (
	"context"
	"errors"
)

// Sentinel errors any Manager/IpcTransport implementation should return
// (wrapped, via errors.Is-compatible wrapping) for these conditions.
var (
	// ErrOutOfDeviceMemory is returned by AllocateArena when the request
	// exceeds the device's free bytes.
	ErrOutOfDeviceMemory = errors.New("OutOfDeviceMemory")

	// ErrImportUnresolved is returned by IpcTransport.Lookup once its context
	// deadline elapses with no matching export published.
	ErrImportUnresolved = errors.New("ImportUnresolved")

	// ErrExportConflict is returned by RegisterExport when a sid is
	// already registered by a different local buffer.
	ErrExportConflict = errors.New("ExportConflict")
)

// Info describes a device's fixed resource budget.
type Info struct {
	SMCount    int
	WarpsPerSM int
	BytesFree  int64
}

// Address is an opaque device-resident location returned by AllocateArena
// and IpcTransport.Lookup; the scheduler only ever adds a byte offset to it, it
// never interprets its bits.
type Address struct {
	GPUID  int
	Handle uintptr
}

// Manager is the GPU driver/runtime binding the scheduler core treats as
// synchronous.
type Manager interface {
	// DeviceInfo reports the local device's resource budget.
	DeviceInfo(ctx context.Context) (Info, error)

	// AllocateArena reserves a single contiguous region of the given size
	// on the local device and returns its base address.
	AllocateArena(ctx context.Context, bytes int64) (Address, error)

	// RegisterExport publishes addr (bytes long) under sid so other ranks
	// can resolve it via IpcTransport.Lookup.
	RegisterExport(ctx context.Context, sid int, addr Address, bytes int64) error
}

// IpcTransport is the cross-rank transport (RDMA/shared-memory IPC) the
// scheduler core treats as synchronous with a configurable timeout.
type IpcTransport interface {
	// Publish makes handle available to other ranks under sid.
	Publish(ctx context.Context, sid int, handle Address) error

	// Lookup resolves the buffer a remote rank published under sid,
	// retrying internally until ctx is done. Returns ErrImportUnresolved
	// if ctx expires with nothing published.
	Lookup(ctx context.Context, rank, sid int) (Address, error)
}
