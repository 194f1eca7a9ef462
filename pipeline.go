package gstpipeline

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/colorconv"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine/gstengine"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/buserr"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/capture"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/convert"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/frame"
)

// maxDrainPerCall bounds one bus drain so a flooding element cannot pin the
// caller.
const maxDrainPerCall = 256

// Pipeline drives a decode engine and owns the raw and rgba pools.
type Pipeline struct {
	description string
	opts        options

	eng     engine.Engine
	capture *capture.Stage
	convert *convert.Stage

	state     atomic.Int32
	lifecycle sync.Mutex // serializes Open/Close/Release
	convertMu sync.Mutex // serializes ConvertRGBA
	released  atomic.Bool

	busErrors        [buserr.NumCategories]atomic.Uint64
	busWarnings      atomic.Uint64
	eosCount         atomic.Uint64
	transitionFailed atomic.Uint64
	opens            atomic.Uint64
	lastBusError     atomic.String
	createdAt        time.Time
	streamingSince   atomic.Time
}

// Create builds a pipeline for description.
//
// Without WithEngine the description is parsed by GStreamer and must contain
// an appsink named "mysink" (WithSinkName to change). Width, height and depth
// default to 1280x720x12 and are only hints: the real format is negotiated
// from the first buffer.
//
// Returns ErrInitialization if the engine cannot be created.
func Create(description string, opts ...Option) (*Pipeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.allocator == nil {
		o.allocator = device.NewHostAllocator(0)
	}
	if o.kernels == nil {
		o.kernels = colorconv.CPU{}
	}

	eng := o.engine
	if eng == nil {
		if description == "" {
			return nil, fmt.Errorf("%w: empty pipeline description", ErrInitialization)
		}
		g, err := gstengine.New(description, o.sinkName)
		if err != nil {
			logger().Error("gstpipeline: failed to create engine",
				"description", description,
				"error", err,
			)
			return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
		}
		eng = g
	}

	hint := frame.FromHints(o.width, o.height, o.depth)
	p := &Pipeline{
		description: description,
		opts:        o,
		eng:         eng,
		capture:     capture.New(o.allocator, o.slots, hint),
		convert:     convert.New(o.allocator, o.slots, o.kernels),
		createdAt:   time.Now(),
	}
	p.state.Store(int32(StateClosed))

	err := eng.SetCallbacks(engine.Callbacks{
		OnEOS:     p.onEOS,
		OnPreroll: p.onPreroll,
		OnSample:  p.onSample,
	})
	if err != nil {
		if cerr := eng.Close(); cerr != nil {
			logger().Warn("gstpipeline: engine close after failed setup", "error", cerr)
		}
		return nil, fmt.Errorf("%w: register sink callbacks: %w", ErrInitialization, err)
	}

	logger().Info("gstpipeline: created",
		"description", description,
		"width_hint", o.width,
		"height_hint", o.height,
		"depth_hint", o.depth,
		"slots", o.slots,
	)
	return p, nil
}

// NewFromConfig is Create driven by a Config. Extra options (engine,
// allocator, kernels) are applied after the config.
func NewFromConfig(cfg Config, opts ...Option) (*Pipeline, error) {
	return Create(cfg.Description, append(cfg.Options(), opts...)...)
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		logger().Debug("gstpipeline: state changed", "from", old, "to", s)
	}
}

// Open requests the engine to play. It is a no-op when already streaming.
//
// The transition may complete asynchronously: the bus is drained, the
// pipeline waits the open settle delay (100ms by default) and drains again
// to surface early errors, then reports streaming either way.
//
// Returns ErrStateTransition if the engine rejects the request; the state
// returns to closed.
func (p *Pipeline) Open() error {
	if p.released.Load() {
		return ErrReleased
	}

	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	// Release may have run while we waited for the lock.
	if p.released.Load() {
		return ErrReleased
	}
	if p.State() == StateStreaming {
		return nil
	}

	p.setState(StateOpening)

	change, err := p.eng.RequestPlaying()
	if err != nil {
		p.transitionFailed.Inc()
		p.setState(StateClosed)
		p.drainBus()
		logger().Error("gstpipeline: failed to set pipeline to playing",
			"description", p.description,
			"error", err,
		)
		return fmt.Errorf("%w: playing: %w", ErrStateTransition, err)
	}

	p.drainBus()
	if p.opts.openSettle > 0 {
		time.Sleep(p.opts.openSettle)
	}
	p.drainBus()

	p.opens.Inc()
	p.streamingSince.Store(time.Now())
	p.setState(StateStreaming)

	logger().Info("gstpipeline: pipeline opened", "state_change", change)
	return nil
}

// Close requests the engine to stop and waits the close settle delay (250ms
// by default). Engine errors are logged, never returned. No-op when closed.
func (p *Pipeline) Close() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.closeLocked()
}

func (p *Pipeline) closeLocked() {
	if p.State() == StateClosed {
		return
	}

	if _, err := p.eng.RequestStopped(); err != nil {
		p.transitionFailed.Inc()
		logger().Error("gstpipeline: failed to stop pipeline", "error", err)
	}
	if p.opts.closeSettle > 0 {
		time.Sleep(p.opts.closeSettle)
	}
	p.drainBus()

	p.setState(StateClosed)
	logger().Info("gstpipeline: pipeline closed")
}

// Capture returns the newest unretrieved raw frame, opening the pipeline if
// needed.
//
// timeout: 0 polls, Forever (negative) waits without deadline.
// Returns ErrNoFrame on timeout or when the latest frame was already
// captured. Failures leave the state unchanged.
func (p *Pipeline) Capture(timeout time.Duration) (RawFrame, error) {
	if p.released.Load() {
		return RawFrame{}, ErrReleased
	}
	if p.State() != StateStreaming {
		if err := p.Open(); err != nil {
			return RawFrame{}, err
		}
	}
	return p.capture.Take(timeout)
}

// CaptureRGBA captures the newest raw frame and converts it to RGBA float.
//
// zeroCopy selects mapped output slots (RGBAFrame.Pixels readable from Go);
// false selects device-only slots. Switching reallocates the rgba pool.
func (p *Pipeline) CaptureRGBA(timeout time.Duration, zeroCopy bool) (RGBAFrame, error) {
	raw, err := p.Capture(timeout)
	if err != nil {
		return RGBAFrame{}, err
	}
	return p.ConvertRGBA(raw, zeroCopy)
}

// ConvertRGBA converts a frame returned by Capture into the next rgba slot.
func (p *Pipeline) ConvertRGBA(raw RawFrame, zeroCopy bool) (RGBAFrame, error) {
	if p.released.Load() {
		return RGBAFrame{}, ErrReleased
	}

	p.convertMu.Lock()
	defer p.convertMu.Unlock()

	out, err := p.convert.Convert(raw.Device, raw.Format, zeroCopy, raw.Meta)
	if err != nil {
		logger().Debug("gstpipeline: conversion failed",
			"seq", raw.Seq,
			"trace_id", raw.TraceID,
			"error", err,
		)
		return RGBAFrame{}, err
	}
	return out, nil
}

// Format returns the negotiated format, or the construction hints before the
// first buffer.
func (p *Pipeline) Format() FrameFormat { return p.capture.Format() }

// Width returns the frame width.
func (p *Pipeline) Width() uint32 { return p.Format().Width }

// Height returns the frame height.
func (p *Pipeline) Height() uint32 { return p.Format().Height }

// PixelDepth returns the raw bits per pixel.
func (p *Pipeline) PixelDepth() uint32 { return p.Format().BitsPerPixel }

// Size returns the raw frame size in bytes.
func (p *Pipeline) Size() uint32 { return p.Format().ByteSize }

// Description returns the engine description the pipeline was created with.
func (p *Pipeline) Description() string { return p.description }

// Release closes the pipeline, frees the rgba then raw pools and closes the
// engine. Safe to call more than once; later calls are no-ops.
func (p *Pipeline) Release() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}

	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.closeLocked()

	p.convertMu.Lock()
	p.convert.Release()
	p.convertMu.Unlock()

	p.capture.Release()

	if err := p.eng.Close(); err != nil {
		logger().Warn("gstpipeline: engine close failed", "error", err)
	}
	logger().Info("gstpipeline: released", "uptime", time.Since(p.createdAt))
}

func (p *Pipeline) onSample(s engine.Sample) {
	if p.released.Load() {
		return
	}
	// Ingest logs and counts its own drops; the engine thread never sees
	// an error.
	_ = p.capture.Ingest(s.Data, s.Width, s.Height)
	p.drainBus()
}

func (p *Pipeline) onEOS() {
	p.eosCount.Inc()
	logger().Info("gstpipeline: end of stream", "description", p.description)
}

func (p *Pipeline) onPreroll() {
	logger().Debug("gstpipeline: preroll")
}
