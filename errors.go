package gstpipeline

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/capture"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/convert"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/pool"
)

var (
	// ErrInitialization is returned by Create when the engine cannot be built
	// (unparsable description, missing appsink, no cgo).
	ErrInitialization = errors.New("gstpipeline: initialization failed")

	// ErrStateTransition is returned by Open when the engine refuses to play.
	ErrStateTransition = errors.New("gstpipeline: state transition failed")

	// ErrMalformedBuffer marks buffers dropped for missing dimensions. It only
	// surfaces through logs and Stats; the sample callback never returns it.
	ErrMalformedBuffer = capture.ErrMalformedBuffer

	// ErrAllocation is returned when a buffer pool cannot be (re)allocated.
	ErrAllocation = pool.ErrAllocation

	// ErrNoFrame is returned when no new frame arrived within the timeout or
	// the latest frame was already retrieved.
	ErrNoFrame = capture.ErrNoFrame

	// ErrConversion is returned when the color conversion fails.
	ErrConversion = convert.ErrConversion

	// ErrReleased is returned by every operation after Release.
	ErrReleased = errors.New("gstpipeline: pipeline released")
)
