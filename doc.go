// Package gstpipeline captures frames from a GStreamer appsink into a ring of
// device-addressable buffers and converts them to RGBA float on demand.
//
// This module is part of Orion 2.0 and complements stream-capture for edge
// devices with a GPU: frames land in mapped (zero-copy) memory the inference
// side can read without an extra copy, and color conversion runs against that
// memory directly.
//
// # Quick Start
//
//	p, err := gstpipeline.Create(
//	    "v4l2src ! videoconvert ! video/x-raw,format=NV12 ! appsink name=mysink",
//	    gstpipeline.WithSize(1280, 720),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Release()
//
//	if err := p.Open(); err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    frame, err := p.CaptureRGBA(time.Second, true)
//	    if errors.Is(err, gstpipeline.ErrNoFrame) {
//	        continue
//	    }
//	    if err != nil {
//	        log.Printf("capture: %v", err)
//	        continue
//	    }
//	    // frame.Pixels is width*height*4 float32 in [0,255]
//	    infer(frame)
//	}
//
// # Data Flow
//
//	GStreamer streaming thread            consumer goroutine
//	──────────────────────────            ──────────────────
//	appsink new-sample
//	  → copy into raw slot (latest+1)
//	  → publish slot ─────── handoff ───→ Capture(timeout)
//	                                        → ConvertRGBA
//	                                          → rgba slot (round-robin)
//
// The handoff holds a single slot index. Publishing overwrites it whether or
// not the consumer has taken the previous one, so the consumer always gets
// the freshest frame and never the same frame twice. Frames the consumer was
// too slow for are dropped and counted (Stats.FramesDropped).
//
// # Buffer Pools
//
// Two pools of 16 slots each (WithSlots to change):
//
//   - raw: sized from the first negotiated buffer, always mapped memory
//   - rgba: width*height*16 bytes per slot, mapped when zeroCopy is true,
//     device-only otherwise; toggling zeroCopy reallocates the pool once
//
// Pools are allocated lazily and released exactly once by Release.
//
// # Pixel Formats
//
// The raw format is negotiated from the first buffer, with the bit depth
// derived as size*8/(width*height). Later buffers of a different size are
// copied truncated into the negotiated slot and counted as size mismatches:
//
//   - 12 bpp: NV12, converted by the semi-planar kernel
//   - anything else: packed RGB, converted by the RGB kernel
//
// Kernels are pluggable (WithKernels). The default is colorconv.CPU, which
// works on any host-addressable memory. With CUDA device-only slots it fails
// with ErrConversion; use zero-copy or GPU kernels there.
//
// # Lifecycle
//
//	Closed ──Open──→ Opening ──→ Streaming ──Close──→ Closed
//
// Open requests PLAYING, drains the bus, waits a short settle delay and drains
// again; an asynchronous transition still counts as open. Capture and
// CaptureRGBA open implicitly. Close requests NULL and waits a settle delay.
//
// # Errors
//
// All failures are sentinel errors usable with errors.Is: ErrInitialization,
// ErrStateTransition, ErrMalformedBuffer, ErrAllocation, ErrNoFrame,
// ErrConversion and ErrReleased. ErrNoFrame is the normal result of a timeout
// and is not logged.
//
// # Thread Safety
//
// Open, Close, Capture, CaptureRGBA, Stats and the accessors are safe for
// concurrent use. Conversions are serialized internally. A single consumer is
// assumed: the pool depth is a cushion, not a guarantee, against the producer
// wrapping onto a slot a second consumer is still reading.
package gstpipeline
