//go:build !(cuda && cgo)

package main

import "github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"

const deviceSlotsHostAddressable = true

// newAllocator falls back to host memory when built without the cuda tag.
func newAllocator() (device.Allocator, error) {
	return device.NewHostAllocator(0), nil
}
