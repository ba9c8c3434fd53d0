package main

import (
	"context"
	"sync"

	"github.com/flowmesh/gpusched/device"
)

// localDevice is an in-process stand-in for a real GPU driver binding: a
// single flat byte arena with no actual memory behind it, just enough
// bookkeeping to drive Schedule end to end from the command line.
type localDevice struct {
	info device.Info

	mu   sync.Mutex
	used int64
	regs map[int]device.Address
}

func newLocalDevice(info device.Info) *localDevice {
	return &localDevice{info: info, regs: map[int]device.Address{}}
}

func (d *localDevice) DeviceInfo(ctx context.Context) (device.Info, error) {
	return d.info, nil
}

func (d *localDevice) AllocateArena(ctx context.Context, bytes int64) (device.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.used+bytes > d.info.BytesFree {
		return device.Address{}, device.ErrOutOfDeviceMemory
	}
	addr := device.Address{GPUID: 0, Handle: uintptr(d.used)}
	d.used += bytes
	return addr, nil
}

func (d *localDevice) RegisterExport(ctx context.Context, sid int, addr device.Address, bytes int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.regs[sid]; ok {
		return device.ErrExportConflict
	}
	d.regs[sid] = addr
	return nil
}

// localTransport resolves imports purely in-process: it only ever sees
// sids published by the same run, which is all a single-process demo
// needs.
type localTransport struct {
	mu        sync.Mutex
	published map[int]device.Address
}

func newLocalTransport() *localTransport {
	return &localTransport{published: map[int]device.Address{}}
}

func (t *localTransport) Publish(ctx context.Context, sid int, handle device.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published[sid] = handle
	return nil
}

func (t *localTransport) Lookup(ctx context.Context, rank, sid int) (device.Address, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	addr, ok := t.published[sid]
	if !ok {
		return device.Address{}, device.ErrImportUnresolved
	}
	return addr, nil
}
