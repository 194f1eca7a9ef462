package gstpipeline

import (
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/colorconv"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/frame"
)

// Construction defaults.
const (
	DefaultWidth       = 1280
	DefaultHeight      = 720
	DefaultDepth       = 12
	DefaultSlots       = 16
	DefaultSinkName    = "mysink"
	DefaultOpenSettle  = 100 * time.Millisecond
	DefaultCloseSettle = 250 * time.Millisecond
)

// Forever makes Capture wait without a deadline.
const Forever time.Duration = -1

// FrameFormat describes the raw stream (negotiated from the first buffer).
type FrameFormat = frame.Format

// FrameMeta is per-frame bookkeeping assigned at ingest.
type FrameMeta = frame.Meta

// RawFrame is a captured frame: host and device views of the same mapped
// raw slot. Valid until the raw pool wraps back onto the slot.
type RawFrame = frame.Raw

// RGBAFrame is a converted frame in the rgba pool. Pixels is set only for
// zero-copy frames.
type RGBAFrame = frame.RGBA

// State is the pipeline lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateStreaming
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config is the declarative form of Create's arguments. Zero fields take the
// defaults.
type Config struct {
	Description string
	Width       uint32
	Height      uint32
	Depth       uint32
	Slots       int
	SinkName    string
	OpenSettle  time.Duration
	CloseSettle time.Duration
}

// Options returns cfg as Create options.
func (cfg Config) Options() []Option {
	opts := []Option{
		WithSize(cfg.Width, cfg.Height),
		WithDepth(cfg.Depth),
		WithSlots(cfg.Slots),
		WithSinkName(cfg.SinkName),
	}
	if cfg.OpenSettle > 0 || cfg.CloseSettle > 0 {
		opts = append(opts, WithSettleDelays(keepIfZero(cfg.OpenSettle), keepIfZero(cfg.CloseSettle)))
	}
	return opts
}

func keepIfZero(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

type options struct {
	width       uint32
	height      uint32
	depth       uint32
	slots       int
	sinkName    string
	openSettle  time.Duration
	closeSettle time.Duration
	engine      engine.Engine
	allocator   device.Allocator
	kernels     colorconv.Kernels
}

func defaultOptions() options {
	return options{
		width:       DefaultWidth,
		height:      DefaultHeight,
		depth:       DefaultDepth,
		slots:       DefaultSlots,
		sinkName:    DefaultSinkName,
		openSettle:  DefaultOpenSettle,
		closeSettle: DefaultCloseSettle,
	}
}

// Option configures Create.
type Option func(*options)

// WithSize sets the width/height hints. Zero values keep the defaults.
func WithSize(width, height uint32) Option {
	return func(o *options) {
		if width > 0 {
			o.width = width
		}
		if height > 0 {
			o.height = height
		}
	}
}

// WithDepth sets the bits-per-pixel hint. Zero keeps the default.
func WithDepth(bitsPerPixel uint32) Option {
	return func(o *options) {
		if bitsPerPixel > 0 {
			o.depth = bitsPerPixel
		}
	}
}

// WithSlots sets the depth of both pools. Non-positive keeps the default.
func WithSlots(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.slots = n
		}
	}
}

// WithSinkName sets the appsink name looked up in the description.
func WithSinkName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.sinkName = name
		}
	}
}

// WithSettleDelays overrides the waits after requesting PLAYING and NULL.
// Negative values keep the defaults; zero disables the wait.
func WithSettleDelays(openDelay, closeDelay time.Duration) Option {
	return func(o *options) {
		if openDelay >= 0 {
			o.openSettle = openDelay
		}
		if closeDelay >= 0 {
			o.closeSettle = closeDelay
		}
	}
}

// WithEngine uses e instead of building a GStreamer engine from the
// description. The pipeline takes ownership and closes e on Release.
func WithEngine(e engine.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithAllocator sets the buffer allocator for both pools.
func WithAllocator(a device.Allocator) Option {
	return func(o *options) { o.allocator = a }
}

// WithKernels sets the conversion kernels.
func WithKernels(k colorconv.Kernels) Option {
	return func(o *options) { o.kernels = k }
}
