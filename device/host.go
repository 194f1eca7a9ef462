package device

import (
	"fmt"
	"sync"
	"unsafe"
)

// HostAllocator hands out Go heap memory. Device-only buffers are host memory
// too, but Host() hides them so callers cannot depend on host access.
//
// An optional byte limit makes allocation fail with ErrOutOfMemory once the
// live total would exceed it.
type HostAllocator struct {
	mu          sync.Mutex
	limit       int64
	liveBytes   int64
	liveBuffers int
	allocs      uint64
	frees       uint64
}

// NewHostAllocator creates a host allocator. limit <= 0 means unlimited.
func NewHostAllocator(limit int64) *HostAllocator {
	return &HostAllocator{limit: limit}
}

// Alloc implements Allocator.
func (a *HostAllocator) Alloc(size int, mode Mode) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSize, size)
	}

	a.mu.Lock()
	if a.limit > 0 && a.liveBytes+int64(size) > a.limit {
		live := a.liveBytes
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: requested %d bytes, %d of %d in use",
			ErrOutOfMemory, size, live, a.limit)
	}
	a.liveBytes += int64(size)
	a.liveBuffers++
	a.allocs++
	a.mu.Unlock()

	return &hostBuffer{
		owner: a,
		mem:   make([]byte, size),
		mode:  mode,
	}, nil
}

// Live returns the number of outstanding buffers and bytes.
func (a *HostAllocator) Live() (buffers int, bytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveBuffers, a.liveBytes
}

// Counts returns the lifetime number of allocations and frees.
func (a *HostAllocator) Counts() (allocs, frees uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs, a.frees
}

func (a *HostAllocator) release(size int) {
	a.mu.Lock()
	a.liveBytes -= int64(size)
	a.liveBuffers--
	a.frees++
	a.mu.Unlock()
}

type hostBuffer struct {
	owner *HostAllocator
	mu    sync.Mutex
	mem   []byte
	mode  Mode
}

func (b *hostBuffer) Host() []byte {
	if b.mode != ModeMapped {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mem
}

func (b *hostBuffer) Device() Ptr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.mem) == 0 {
		return nil
	}
	return unsafe.Pointer(&b.mem[0])
}

func (b *hostBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mem)
}

func (b *hostBuffer) Mode() Mode { return b.mode }

// HostAddressable is true in both modes: device-only buffers are still Go
// memory, only their host view is withheld.
func (b *hostBuffer) HostAddressable() bool { return true }

func (b *hostBuffer) Free() error {
	b.mu.Lock()
	if b.mem == nil {
		b.mu.Unlock()
		return ErrFreed
	}
	size := len(b.mem)
	b.mem = nil
	b.mu.Unlock()

	b.owner.release(size)
	return nil
}
