//go:build cuda && cgo

package main

import (
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device/cuda"
)

// CUDA device-only slots are not reachable from the host.
const deviceSlotsHostAddressable = false

func newAllocator() (device.Allocator, error) {
	return cuda.NewAllocator()
}
