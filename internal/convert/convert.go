// Package convert turns raw frames into RGBA float frames in the converted
// ring.
package convert

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"go.uber.org/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/colorconv"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/pool"
)

// ErrConversion is returned when a frame cannot be converted. The converted
// pool is left as it was.
var ErrConversion = errors.New("gstpipeline: conversion failed")

// Stats is a snapshot of convert counters.
type Stats struct {
	Converted uint64
	Failed    uint64
	NV12      uint64
	RGB8      uint64
	Pool      pool.Stats
}

// Stage owns the converted pool. It is not safe for concurrent use; the
// pipeline serializes calls.
type Stage struct {
	pool    *pool.Pool
	kernels colorconv.Kernels
	index   int

	converted atomic.Uint64
	failed    atomic.Uint64
	nv12      atomic.Uint64
	rgb8      atomic.Uint64
}

// New creates a convert stage with a converted pool of slots buffers.
func New(alloc device.Allocator, slots int, kernels colorconv.Kernels) *Stage {
	return &Stage{
		pool:    pool.New(alloc, slots, "rgba"),
		kernels: kernels,
	}
}

// Convert converts the raw frame at src into the next converted slot.
//
// zeroCopy selects mapped slots (host-readable Pixels) over device-only
// slots. Switching it reallocates the whole pool once. A kernel failure
// returns ErrConversion without advancing the slot index.
func (s *Stage) Convert(src device.Ptr, format frame.Format, zeroCopy bool, meta frame.Meta) (frame.RGBA, error) {
	if src == nil {
		s.failed.Inc()
		return frame.RGBA{}, fmt.Errorf("%w: no source buffer", ErrConversion)
	}
	if !format.Valid() {
		s.failed.Inc()
		return frame.RGBA{}, fmt.Errorf("%w: format %dx%d not negotiated", ErrConversion, format.Width, format.Height)
	}

	if need := sourceSize(format); int(format.ByteSize) < need {
		s.failed.Inc()
		return frame.RGBA{}, fmt.Errorf("%w: %d byte frame too small for %s %dx%d (need %d)",
			ErrConversion, format.ByteSize, colorconv.PathFor(format.BitsPerPixel), format.Width, format.Height, need)
	}

	mode := device.ModeDevice
	if zeroCopy {
		mode = device.ModeMapped
	}

	if s.pool.Allocated() && s.pool.Mode() != mode {
		if err := s.pool.Reconfigure(mode); err != nil {
			s.failed.Inc()
			return frame.RGBA{}, err
		}
	}

	width, height := int(format.Width), int(format.Height)
	if err := s.pool.EnsureAllocated(colorconv.RGBASize(width, height), mode); err != nil {
		s.failed.Inc()
		return frame.RGBA{}, err
	}

	slot := s.pool.Slot(s.index)
	if slot == nil {
		s.failed.Inc()
		return frame.RGBA{}, fmt.Errorf("%w: converted pool released", ErrConversion)
	}

	if colorconv.NeedsHostMemory(s.kernels) && !device.HostAddressable(slot) {
		s.failed.Inc()
		return frame.RGBA{}, fmt.Errorf("%w: %w: host kernels cannot write a %s slot",
			ErrConversion, colorconv.ErrInvalidArgument, mode)
	}

	path, err := colorconv.Dispatch(s.kernels, src, slot.Device(), width, height, format.BitsPerPixel)
	if err != nil {
		s.failed.Inc()
		slog.Warn("convert: kernel failed",
			"path", path,
			"width", width,
			"height", height,
			"bits_per_pixel", format.BitsPerPixel,
			"error", err,
		)
		return frame.RGBA{}, fmt.Errorf("%w: %w", ErrConversion, err)
	}

	switch path {
	case colorconv.PathNV12:
		s.nv12.Inc()
	default:
		s.rgb8.Inc()
	}

	out := frame.RGBA{
		Index:    s.index,
		Device:   slot.Device(),
		Width:    format.Width,
		Height:   format.Height,
		ZeroCopy: zeroCopy,
		Meta:     meta,
	}
	if host := slot.Host(); host != nil {
		out.Pixels = unsafe.Slice((*float32)(unsafe.Pointer(&host[0])), width*height*4)
	}

	s.index = s.pool.Next(s.index)
	s.converted.Inc()

	return out, nil
}

func sourceSize(format frame.Format) int {
	width, height := int(format.Width), int(format.Height)
	if colorconv.PathFor(format.BitsPerPixel) == colorconv.PathNV12 {
		return colorconv.NV12Size(width, height)
	}
	return colorconv.RGB8Size(width, height)
}

// Stats returns a snapshot of convert counters.
func (s *Stage) Stats() Stats {
	return Stats{
		Converted: s.converted.Load(),
		Failed:    s.failed.Load(),
		NV12:      s.nv12.Load(),
		RGB8:      s.rgb8.Load(),
		Pool:      s.pool.Stats(),
	}
}

// Release frees the converted pool.
func (s *Stage) Release() {
	s.pool.Release()
}
