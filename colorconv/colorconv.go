// Package colorconv defines the invocation contract of the color-space
// conversion kernels used by the pipeline.
//
// Kernels are treated as pure functions: they read a raw frame at src and
// write width*height RGBA pixels of four float32 channels each to dst. Channel
// values are in [0, 255]; alpha is always 255.
//
// Two raw layouts are supported and routed by bit depth:
//   - 12 bits per pixel: NV12 (full-resolution Y plane followed by an
//     interleaved half-resolution UV plane)
//   - anything else: packed 8-bit RGB
package colorconv

import (
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
)

// NV12BitsPerPixel is the depth that selects the semi-planar path.
const NV12BitsPerPixel = 12

// BytesPerRGBAPixel is the size of one converted pixel (4 x float32).
const BytesPerRGBAPixel = 16

// Path identifies which kernel handled a conversion.
type Path int

const (
	// PathNV12 is the semi-planar luma/chroma kernel.
	PathNV12 Path = iota
	// PathRGB8 is the packed RGB kernel.
	PathRGB8
)

// String returns a human-readable representation of the path
func (p Path) String() string {
	switch p {
	case PathNV12:
		return "nv12"
	case PathRGB8:
		return "rgb8"
	default:
		return "unknown"
	}
}

// HostMemory is implemented by kernels that read src and write dst from the
// host. They can only run against host-addressable buffers.
type HostMemory interface {
	HostMemoryOnly() bool
}

// NeedsHostMemory reports whether k dereferences its pointers on the host.
func NeedsHostMemory(k Kernels) bool {
	h, ok := k.(HostMemory)
	return ok && h.HostMemoryOnly()
}

// ErrInvalidArgument is returned when a kernel is invoked with nil pointers
// or non-positive dimensions.
var ErrInvalidArgument = errors.New("colorconv: invalid argument")

// Kernels is the external conversion contract.
type Kernels interface {
	NV12ToRGBA32(src, dst device.Ptr, width, height int) error
	RGB8ToRGBA32(src, dst device.Ptr, width, height int) error
}

// PathFor returns the kernel path for a raw bit depth.
func PathFor(bitsPerPixel uint32) Path {
	if bitsPerPixel == NV12BitsPerPixel {
		return PathNV12
	}
	return PathRGB8
}

// Dispatch invokes the kernel matching bitsPerPixel and reports the path used.
func Dispatch(k Kernels, src, dst device.Ptr, width, height int, bitsPerPixel uint32) (Path, error) {
	if k == nil {
		return PathRGB8, fmt.Errorf("colorconv: no kernels: %w", ErrInvalidArgument)
	}

	path := PathFor(bitsPerPixel)

	var err error
	switch path {
	case PathNV12:
		err = k.NV12ToRGBA32(src, dst, width, height)
	default:
		err = k.RGB8ToRGBA32(src, dst, width, height)
	}
	if err != nil {
		return path, fmt.Errorf("colorconv: %s kernel: %w", path, err)
	}
	return path, nil
}

// NV12Size returns the byte size of an NV12 frame of the given dimensions.
// Odd dimensions round the chroma plane up.
func NV12Size(width, height int) int {
	return width*height + uvStride(width)*((height+1)/2)
}

// RGB8Size returns the byte size of a packed RGB frame.
func RGB8Size(width, height int) int {
	return width * height * 3
}

// RGBASize returns the byte size of a converted frame.
func RGBASize(width, height int) int {
	return width * height * BytesPerRGBAPixel
}

func uvStride(width int) int {
	return (width + 1) &^ 1
}
