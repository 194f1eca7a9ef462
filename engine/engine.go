// Package engine defines the decode engine the pipeline drives.
//
// An Engine wraps a media graph that ends in an application sink. The
// pipeline registers typed callbacks for samples, preroll and end-of-stream,
// asks the engine to start or stop, and drains its diagnostic bus without
// blocking.
//
// Implementations:
//   - engine/gstengine: GStreamer through go-gst (requires cgo)
//   - engine/synthetic: generated test patterns, no external dependencies
package engine

import "errors"

// ErrNoSink is returned when the described graph has no application sink
// with the expected name.
var ErrNoSink = errors.New("engine: application sink not found")

// Sample is one decoded buffer handed to OnSample.
//
// Data is owned by the engine and valid only for the duration of the
// callback.
type Sample struct {
	Data   []byte
	Width  int
	Height int
	// Format is the caps format string when known ("NV12", "RGB").
	Format string
}

// Callbacks are invoked from the engine's streaming thread. The engine never
// overlaps two invocations of OnSample.
type Callbacks struct {
	OnEOS     func()
	OnPreroll func()
	OnSample  func(Sample)
}

// StateChange is the result of a state transition request.
type StateChange int

const (
	// StateChangeSuccess means the transition completed synchronously.
	StateChangeSuccess StateChange = iota
	// StateChangeAsync means the transition continues in the background.
	StateChangeAsync
	// StateChangeNoPreroll means a live source changed state without prerolling.
	StateChangeNoPreroll
)

// String returns a human-readable representation of the state change
func (s StateChange) String() string {
	switch s {
	case StateChangeSuccess:
		return "success"
	case StateChangeAsync:
		return "async"
	case StateChangeNoPreroll:
		return "no-preroll"
	default:
		return "unknown"
	}
}

// MessageKind classifies bus messages.
type MessageKind int

const (
	MessageOther MessageKind = iota
	MessageError
	MessageWarning
	MessageInfo
	MessageEOS
	MessageStateChanged
)

// String returns a human-readable representation of the message kind
func (k MessageKind) String() string {
	switch k {
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageInfo:
		return "info"
	case MessageEOS:
		return "eos"
	case MessageStateChanged:
		return "state-changed"
	default:
		return "other"
	}
}

// Message is one diagnostic bus entry.
type Message struct {
	Kind   MessageKind
	Source string
	Text   string
	Debug  string
}

// Engine is the decode engine contract.
type Engine interface {
	// SetCallbacks registers the sink callbacks. Must be called before
	// RequestPlaying.
	SetCallbacks(Callbacks) error
	// RequestPlaying asks the graph to start producing samples.
	RequestPlaying() (StateChange, error)
	// RequestStopped asks the graph to stop and release its resources.
	RequestStopped() (StateChange, error)
	// PopMessage returns the next pending bus message without blocking.
	PopMessage() (Message, bool)
	// Close releases the engine. The engine is unusable afterwards.
	Close() error
}
