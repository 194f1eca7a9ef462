//go:build cuda && cgo

// Package cuda allocates ring-buffer memory through the CUDA runtime.
//
// Mapped buffers are pinned host allocations mapped into the device address
// space. The allocator requires unified virtual addressing: a mapped buffer
// whose device pointer differs from its host pointer is rejected with
// device.ErrNotUnified, so one allocation is always one pointer.
package cuda

/*
#cgo LDFLAGS: -lcudart
#include <cuda_runtime.h>
*/
import "C"

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
)

var initOnce sync.Once
var initErr error

// Allocator implements device.Allocator with cudaHostAlloc / cudaMalloc.
type Allocator struct{}

// NewAllocator enables host memory mapping on the current device.
func NewAllocator() (*Allocator, error) {
	initOnce.Do(func() {
		if rc := C.cudaSetDeviceFlags(C.cudaDeviceMapHost); rc != C.cudaSuccess && rc != C.cudaErrorSetOnActiveProcess {
			initErr = fmt.Errorf("cuda: cudaSetDeviceFlags: %s", errString(rc))
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return &Allocator{}, nil
}

// Alloc implements device.Allocator.
func (a *Allocator) Alloc(size int, mode device.Mode) (device.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d bytes", device.ErrInvalidSize, size)
	}

	switch mode {
	case device.ModeMapped:
		return allocMapped(size)
	case device.ModeDevice:
		var ptr unsafe.Pointer
		if rc := C.cudaMalloc(&ptr, C.size_t(size)); rc != C.cudaSuccess {
			return nil, fmt.Errorf("%w: cudaMalloc %d bytes: %s", device.ErrOutOfMemory, size, errString(rc))
		}
		return &buffer{ptr: ptr, size: size, mode: mode}, nil
	default:
		return nil, fmt.Errorf("cuda: unsupported mode %s", mode)
	}
}

func allocMapped(size int) (device.Buffer, error) {
	var host unsafe.Pointer
	if rc := C.cudaHostAlloc(&host, C.size_t(size), C.cudaHostAllocMapped); rc != C.cudaSuccess {
		return nil, fmt.Errorf("%w: cudaHostAlloc %d bytes: %s", device.ErrOutOfMemory, size, errString(rc))
	}

	var dev unsafe.Pointer
	if rc := C.cudaHostGetDevicePointer(&dev, host, 0); rc != C.cudaSuccess {
		C.cudaFreeHost(host)
		return nil, fmt.Errorf("cuda: cudaHostGetDevicePointer: %s", errString(rc))
	}

	if dev != host {
		C.cudaFreeHost(host)
		slog.Error("cuda: mapped allocation is not unified", "host", host, "device", dev)
		return nil, device.ErrNotUnified
	}

	return &buffer{ptr: host, size: size, mode: device.ModeMapped}, nil
}

type buffer struct {
	mu   sync.Mutex
	ptr  unsafe.Pointer
	size int
	mode device.Mode
}

func (b *buffer) Host() []byte {
	if b.mode != device.ModeMapped {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(b.ptr), b.size)
}

func (b *buffer) Device() device.Ptr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ptr
}

func (b *buffer) Size() int         { return b.size }
func (b *buffer) Mode() device.Mode { return b.mode }

func (b *buffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ptr == nil {
		return device.ErrFreed
	}

	var rc C.cudaError_t
	if b.mode == device.ModeMapped {
		rc = C.cudaFreeHost(b.ptr)
	} else {
		rc = C.cudaFree(b.ptr)
	}
	b.ptr = nil

	if rc != C.cudaSuccess {
		return fmt.Errorf("cuda: free: %s", errString(rc))
	}
	return nil
}

func errString(rc C.cudaError_t) string {
	return C.GoString(C.cudaGetErrorString(rc))
}
