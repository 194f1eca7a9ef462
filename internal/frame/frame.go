// Package frame holds the value types shared by the capture and convert stages.
package frame

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
)

// Format describes a raw frame as negotiated with the decode engine.
type Format struct {
	Width        uint32
	Height       uint32
	BitsPerPixel uint32
	ByteSize     uint32
}

// FromHints builds a format from construction hints.
// ByteSize = width*height*bitsPerPixel/8.
func FromHints(width, height, bitsPerPixel uint32) Format {
	return Format{
		Width:        width,
		Height:       height,
		BitsPerPixel: bitsPerPixel,
		ByteSize:     width * height * bitsPerPixel / 8,
	}
}

// Negotiate derives a format from a buffer's dimensions and byte size.
// BitsPerPixel = size*8/(width*height).
func Negotiate(width, height, size int) Format {
	var bpp uint32
	if width > 0 && height > 0 {
		bpp = uint32(size * 8 / (width * height))
	}
	return Format{
		Width:        uint32(width),
		Height:       uint32(height),
		BitsPerPixel: bpp,
		ByteSize:     uint32(size),
	}
}

// Valid reports whether the format has usable dimensions.
func (f Format) Valid() bool {
	return f.Width > 0 && f.Height > 0
}

// Meta is per-frame bookkeeping assigned at ingest.
type Meta struct {
	Seq       uint64
	Timestamp time.Time
	TraceID   string
}

// Raw is a captured frame living in a raw pool slot.
//
// Host and Device reference the same mapped allocation. Both stay valid until
// the slot is overwritten, which happens after the pool wraps.
type Raw struct {
	Index  int
	Host   []byte
	Device device.Ptr
	Format Format
	Meta
}

// RGBA is a converted frame living in a converted pool slot.
type RGBA struct {
	Index  int
	Device device.Ptr
	// Pixels is the host view (width*height*4 float32) for zero-copy frames,
	// nil for device-only frames.
	Pixels   []float32
	Width    uint32
	Height   uint32
	ZeroCopy bool
	Meta
}
