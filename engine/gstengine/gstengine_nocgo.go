//go:build !cgo

package gstengine

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine"
)

// DefaultSinkName is the appsink name looked up in the description.
const DefaultSinkName = "mysink"

// ErrCGORequired is returned when the binary was built without cgo.
var ErrCGORequired = errors.New("gstengine: GStreamer requires cgo (build with CGO_ENABLED=1)")

// Engine is unavailable without cgo.
type Engine struct{}

var _ engine.Engine = (*Engine)(nil)

// New always fails without cgo.
func New(description, sinkName string) (*Engine, error) {
	return nil, ErrCGORequired
}

func (e *Engine) SetCallbacks(engine.Callbacks) error          { return ErrCGORequired }
func (e *Engine) RequestPlaying() (engine.StateChange, error) { return engine.StateChangeSuccess, ErrCGORequired }
func (e *Engine) RequestStopped() (engine.StateChange, error) { return engine.StateChangeSuccess, ErrCGORequired }
func (e *Engine) PopMessage() (engine.Message, bool)          { return engine.Message{}, false }
func (e *Engine) Close() error                                { return nil }
