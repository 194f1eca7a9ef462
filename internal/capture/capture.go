// Package capture receives raw buffers from the decode engine, copies them
// into the raw ring and publishes the newest slot to the consumer.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/handoff"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/pool"
)

var (
	// ErrMalformedBuffer is returned by Ingest for buffers without usable
	// dimensions or data. The buffer is dropped.
	ErrMalformedBuffer = errors.New("gstpipeline: malformed buffer")

	// ErrNoFrame is returned by Take when no new frame arrived in time or the
	// latest one was already retrieved.
	ErrNoFrame = errors.New("gstpipeline: no new frame")
)

// Stats is a snapshot of capture counters.
type Stats struct {
	Ingested         uint64 // buffers copied and published
	Malformed        uint64 // buffers dropped for missing dimensions or data
	AllocationFailed uint64 // buffers dropped because the raw pool could not be allocated
	SizeMismatches   uint64 // buffers whose size differed from the negotiated slot size
	Handoff          handoff.Stats
	Pool             pool.Stats
	LastFrameAt      time.Time
	NegotiatedFormat frame.Format
	FormatNegotiated bool
}

// Stage owns the raw pool and the handoff.
//
// Ingest is the producer side and must not be called concurrently with
// itself (the engine guarantees non-overlapping sample callbacks). Take is
// the consumer side.
type Stage struct {
	pool    *pool.Pool
	handoff *handoff.Handoff

	// latest is the last slot written. Producer-only.
	latest int

	mu         sync.Mutex
	format     frame.Format
	negotiated bool
	meta       []frame.Meta
	lastFrame  time.Time

	seq              atomic.Uint64
	ingested         atomic.Uint64
	malformed        atomic.Uint64
	allocFailed      atomic.Uint64
	sizeMismatches   atomic.Uint64
	mismatchReported atomic.Bool
}

// New creates a capture stage with a raw pool of slots buffers.
// hint is reported by Format until the first buffer is negotiated.
func New(alloc device.Allocator, slots int, hint frame.Format) *Stage {
	p := pool.New(alloc, slots, "raw")
	return &Stage{
		pool:    p,
		handoff: handoff.New(),
		format:  hint,
		meta:    make([]frame.Meta, p.Len()),
	}
}

// Ingest copies one engine-owned buffer into the next raw slot and publishes
// it. data is not retained after Ingest returns.
//
// Steps:
//  1. Validate dimensions and data (drop as ErrMalformedBuffer)
//  2. Negotiate the format on the first buffer and size the pool from it
//  3. Copy into slot (latest+1) mod slots
//  4. Record seq, timestamp and trace id for the slot
//  5. Publish the slot
//
// The pool is sized once from the first negotiated buffer. A later buffer of
// a different size is copied truncated to the slot size (or short) and
// counted as a size mismatch; the slot keeps the negotiated format so the
// converter never reads past the allocation.
func (s *Stage) Ingest(data []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		s.malformed.Inc()
		slog.Debug("capture: dropping buffer without dimensions",
			"width", width,
			"height", height,
			"size", len(data),
		)
		return fmt.Errorf("%w: %dx%d", ErrMalformedBuffer, width, height)
	}
	if len(data) == 0 {
		s.malformed.Inc()
		slog.Debug("capture: dropping empty buffer", "width", width, "height", height)
		return fmt.Errorf("%w: empty buffer", ErrMalformedBuffer)
	}

	s.mu.Lock()
	negotiated := s.negotiated
	format := s.format
	s.mu.Unlock()

	if !negotiated {
		format = frame.Negotiate(width, height, len(data))
	}

	// Allocation happens outside s.mu; it is a no-op once allocated.
	if err := s.pool.EnsureAllocated(int(format.ByteSize), device.ModeMapped); err != nil {
		s.allocFailed.Inc()
		slog.Error("capture: dropping buffer, raw pool unavailable", "error", err)
		return err
	}

	if !negotiated {
		s.mu.Lock()
		s.format = format
		s.negotiated = true
		s.mu.Unlock()

		slog.Info("capture: format negotiated",
			"width", format.Width,
			"height", format.Height,
			"bits_per_pixel", format.BitsPerPixel,
			"byte_size", format.ByteSize,
		)
	}

	if uint32(len(data)) != format.ByteSize {
		s.sizeMismatches.Inc()
		if s.mismatchReported.CompareAndSwap(false, true) {
			slog.Warn("capture: buffer size differs from negotiated format, copying truncated",
				"negotiated_width", format.Width,
				"negotiated_height", format.Height,
				"negotiated_size", format.ByteSize,
				"width", width,
				"height", height,
				"size", len(data),
			)
		}
	}

	next := s.pool.Next(s.latest)
	slot := s.pool.Slot(next)
	if slot == nil {
		// Pool released concurrently (pipeline shutting down).
		s.allocFailed.Inc()
		return fmt.Errorf("%w: raw pool released", pool.ErrAllocation)
	}
	copy(slot.Host(), data)

	now := time.Now()
	seq := s.seq.Inc()

	s.mu.Lock()
	s.meta[next] = frame.Meta{
		Seq:       seq,
		Timestamp: now,
		TraceID:   uuid.NewString(),
	}
	s.lastFrame = now
	s.mu.Unlock()

	s.latest = next
	s.handoff.Publish(next)
	s.ingested.Inc()

	return nil
}

// Take returns the newest unretrieved frame, waiting up to timeout
// (0: non-blocking, negative: unbounded).
func (s *Stage) Take(timeout time.Duration) (frame.Raw, error) {
	index, ok := s.handoff.Take(timeout)
	if !ok {
		return frame.Raw{}, ErrNoFrame
	}

	slot := s.pool.Slot(index)
	if slot == nil {
		return frame.Raw{}, fmt.Errorf("%w: raw pool released", ErrNoFrame)
	}

	s.mu.Lock()
	raw := frame.Raw{
		Index:  index,
		Host:   slot.Host(),
		Device: slot.Device(),
		Format: s.format,
		Meta:   s.meta[index],
	}
	s.mu.Unlock()

	return raw, nil
}

// Format returns the negotiated format, or the construction hint before the
// first buffer.
func (s *Stage) Format() frame.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Negotiated reports whether a buffer has been ingested.
func (s *Stage) Negotiated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiated
}

// Stats returns a snapshot of capture counters.
func (s *Stage) Stats() Stats {
	s.mu.Lock()
	last := s.lastFrame
	format := s.format
	negotiated := s.negotiated
	s.mu.Unlock()

	return Stats{
		Ingested:         s.ingested.Load(),
		Malformed:        s.malformed.Load(),
		AllocationFailed: s.allocFailed.Load(),
		SizeMismatches:   s.sizeMismatches.Load(),
		Handoff:          s.handoff.Stats(),
		Pool:             s.pool.Stats(),
		LastFrameAt:      last,
		NegotiatedFormat: format,
		FormatNegotiated: negotiated,
	}
}

// Release frees the raw pool.
func (s *Stage) Release() {
	s.pool.Release()
}
