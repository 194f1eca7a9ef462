//go:build cgo

// Package gstengine implements engine.Engine on top of GStreamer via go-gst.
//
// The graph is built from an opaque gst-launch style description that must
// end in an appsink with a known name, for example:
//
//	v4l2src ! videoconvert ! video/x-raw,format=NV12 ! appsink name=mysink
package gstengine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine"
)

// DefaultSinkName is the appsink name looked up in the description.
const DefaultSinkName = "mysink"

// Engine drives a parsed GStreamer pipeline.
type Engine struct {
	description string
	pipeline    *gst.Pipeline
	sink        *app.Sink
	bus         *gst.Bus

	mu     sync.Mutex
	closed bool
}

var _ engine.Engine = (*Engine)(nil)

// New parses description and locates the appsink named sinkName.
func New(description, sinkName string) (*Engine, error) {
	if sinkName == "" {
		sinkName = DefaultSinkName
	}

	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(description)
	if err != nil {
		return nil, fmt.Errorf("gstengine: parse pipeline %q: %w", description, err)
	}

	elem, err := pipeline.GetElementByName(sinkName)
	if err != nil || elem == nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: %q in %q", engine.ErrNoSink, sinkName, description)
	}

	sink := app.SinkFromElement(elem)
	if sink == nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: element %q is not an appsink", engine.ErrNoSink, sinkName)
	}

	slog.Debug("gstengine: pipeline created", "description", description, "sink", sinkName)

	return &Engine{
		description: description,
		pipeline:    pipeline,
		sink:        sink,
		bus:         pipeline.GetPipelineBus(),
	}, nil
}

// SetCallbacks binds the sink callbacks.
func (e *Engine) SetCallbacks(cb engine.Callbacks) error {
	e.sink.SetCallbacks(&app.SinkCallbacks{
		EOSFunc: func(_ *app.Sink) {
			if cb.OnEOS != nil {
				cb.OnEOS()
			}
		},
		NewPrerollFunc: func(_ *app.Sink) gst.FlowReturn {
			if cb.OnPreroll != nil {
				cb.OnPreroll()
			}
			return gst.FlowOK
		},
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			onNewSample(sink, cb.OnSample)
			return gst.FlowOK
		},
	})
	return nil
}

// onNewSample pulls the sample, maps its buffer and hands the mapped bytes
// to fn. The mapping is released when fn returns; fn must copy.
//
// Failures never propagate to GStreamer: a bad sample is skipped and the
// stream continues.
func onNewSample(sink *app.Sink, fn func(engine.Sample)) {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstengine: failed to pull sample from appsink, skipping frame")
		return
	}

	width, height, format := capsInfo(sample.GetCaps())

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstengine: failed to get buffer from sample, skipping frame")
		return
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	if fn == nil {
		return
	}

	fn(engine.Sample{
		Data:   mapInfo.Bytes(),
		Width:  width,
		Height: height,
		Format: format,
	})
}

// capsInfo reads width, height and format from the first caps structure.
// Missing fields are reported as zero values.
func capsInfo(caps *gst.Caps) (width, height int, format string) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, ""
	}

	structure := caps.GetStructureAt(0)
	if structure == nil {
		return 0, 0, ""
	}

	if val, err := structure.GetValue("width"); err == nil {
		if w, ok := val.(int); ok {
			width = w
		}
	}
	if val, err := structure.GetValue("height"); err == nil {
		if h, ok := val.(int); ok {
			height = h
		}
	}
	if val, err := structure.GetValue("format"); err == nil {
		if f, ok := val.(string); ok {
			format = f
		}
	}
	return width, height, format
}

// RequestPlaying sets the pipeline to PLAYING. go-gst reports only failure,
// so a nil error is reported as an asynchronous transition.
func (e *Engine) RequestPlaying() (engine.StateChange, error) {
	if err := e.pipeline.SetState(gst.StatePlaying); err != nil {
		return engine.StateChangeAsync, fmt.Errorf("gstengine: set PLAYING: %w", err)
	}
	return engine.StateChangeAsync, nil
}

// RequestStopped sets the pipeline to NULL.
func (e *Engine) RequestStopped() (engine.StateChange, error) {
	if err := e.pipeline.SetState(gst.StateNull); err != nil {
		return engine.StateChangeSuccess, fmt.Errorf("gstengine: set NULL: %w", err)
	}
	return engine.StateChangeSuccess, nil
}

// PopMessage pops one pending bus message without waiting.
func (e *Engine) PopMessage() (engine.Message, bool) {
	msg := e.bus.TimedPop(0)
	if msg == nil {
		return engine.Message{}, false
	}

	out := engine.Message{Source: msg.Source()}

	switch msg.Type() {
	case gst.MessageError:
		out.Kind = engine.MessageError
		if gerr := msg.ParseError(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageWarning:
		out.Kind = engine.MessageWarning
		if gerr := msg.ParseWarning(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageInfo:
		out.Kind = engine.MessageInfo
		if gerr := msg.ParseInfo(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageEOS:
		out.Kind = engine.MessageEOS
	case gst.MessageStateChanged:
		out.Kind = engine.MessageStateChanged
		old, new := msg.ParseStateChanged()
		out.Text = fmt.Sprintf("%s -> %s", old, new)
	default:
		out.Kind = engine.MessageOther
		out.Text = msg.Type().String()
	}

	return out, true
}

// Close sets the pipeline to NULL and drops references. Safe to call more
// than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstengine: close: %w", err)
	}
	slog.Debug("gstengine: pipeline closed", "description", e.description)
	return nil
}
