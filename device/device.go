// Package device abstracts the memory that backs the capture and conversion
// ring buffers.
//
// A Buffer is always a single allocation. In ModeMapped the same allocation is
// addressable from the host (Host) and from the device (Device), which is what
// the zero-copy path relies on. In ModeDevice only the device pointer is valid
// and Host returns nil.
//
// Implementations:
//   - HostAllocator: plain Go memory, used for CPU-only deployments and tests
//   - device/cuda: CUDA runtime allocations (build tag "cuda")
package device

import (
	"errors"
	"unsafe"
)

// Ptr is an opaque device address. For host-emulated memory it points into
// the Go heap; for CUDA it is the value returned by the runtime.
type Ptr = unsafe.Pointer

// Mode selects how a buffer is allocated.
type Mode int

const (
	// ModeMapped allocates host memory mapped into the device address space
	// (zero-copy). Host and device pointers are identical.
	ModeMapped Mode = iota
	// ModeDevice allocates device-only memory.
	ModeDevice
)

// String returns a human-readable representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeMapped:
		return "mapped"
	case ModeDevice:
		return "device"
	default:
		return "unknown"
	}
}

var (
	// ErrOutOfMemory is returned when the allocator cannot satisfy a request.
	ErrOutOfMemory = errors.New("device: out of memory")

	// ErrNotUnified is returned when a mapped allocation yields different host
	// and device pointers (the GPU lacks unified virtual addressing).
	ErrNotUnified = errors.New("device: mapped memory has different host and device pointers")

	// ErrFreed is returned by Free when the buffer was already released.
	ErrFreed = errors.New("device: buffer already freed")

	// ErrInvalidSize is returned for non-positive allocation sizes.
	ErrInvalidSize = errors.New("device: invalid allocation size")
)

// Buffer is one allocation owned by a pool slot.
type Buffer interface {
	// Host returns the host view of the allocation, or nil for device-only
	// buffers and after Free.
	Host() []byte
	// Device returns the device address of the allocation.
	Device() Ptr
	// Size returns the allocation size in bytes.
	Size() int
	// Mode returns the mode the buffer was allocated in.
	Mode() Mode
	// Free releases the allocation. A second call returns ErrFreed.
	Free() error
}

// HostAddressable reports whether the host can read and write b through its
// device pointer. Buffers may say so with a HostAddressable() bool method;
// otherwise only mapped buffers qualify.
func HostAddressable(b Buffer) bool {
	if a, ok := b.(interface{ HostAddressable() bool }); ok {
		return a.HostAddressable()
	}
	return b.Mode() == ModeMapped
}

// Allocator creates buffers.
type Allocator interface {
	Alloc(size int, mode Mode) (Buffer, error)
}
