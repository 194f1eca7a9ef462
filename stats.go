package gstpipeline

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/buserr"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/pool"
)

// PoolStats counts (re)allocations of one buffer pool.
type PoolStats = pool.Stats

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	// State is the lifecycle state at snapshot time
	State State `json:"state"`
	// Format is the negotiated format (hints before the first buffer)
	Format FrameFormat `json:"format"`
	// FormatNegotiated is true once a buffer was ingested
	FormatNegotiated bool `json:"format_negotiated"`

	// FramesIngested counts buffers copied into the raw pool and published
	FramesIngested uint64 `json:"frames_ingested"`
	// FramesMalformed counts buffers dropped for missing dimensions or data
	FramesMalformed uint64 `json:"frames_malformed"`
	// FramesDropped counts published frames overwritten before Capture took them
	FramesDropped uint64 `json:"frames_dropped"`
	// FramesDelivered counts frames returned by Capture
	FramesDelivered uint64 `json:"frames_delivered"`
	// SizeMismatches counts buffers whose size differed from the negotiated one
	SizeMismatches uint64 `json:"size_mismatches"`
	// AllocationFailures counts buffers dropped because the raw pool was unavailable
	AllocationFailures uint64 `json:"allocation_failures"`
	// CaptureTimeouts counts Capture calls that expired without a frame
	CaptureTimeouts uint64 `json:"capture_timeouts"`
	// CaptureDuplicates counts Capture wakes that found the frame already taken
	CaptureDuplicates uint64 `json:"capture_duplicates"`

	Conversions        uint64 `json:"conversions"`
	ConversionFailures uint64 `json:"conversion_failures"`
	NV12Conversions    uint64 `json:"nv12_conversions"`
	RGB8Conversions    uint64 `json:"rgb8_conversions"`

	RawPool  PoolStats `json:"raw_pool"`
	RGBAPool PoolStats `json:"rgba_pool"`

	// BusErrors counts bus errors by category (network, codec, auth, resource, unknown)
	BusErrors    map[string]uint64 `json:"bus_errors"`
	BusWarnings  uint64            `json:"bus_warnings"`
	LastBusError string            `json:"last_bus_error,omitempty"`
	EOS          uint64            `json:"eos"`

	// Opens counts successful Open transitions
	Opens uint64 `json:"opens"`
	// TransitionFailures counts engine state requests that failed
	TransitionFailures uint64 `json:"transition_failures"`

	// LastFrameAt is the ingest time of the newest frame
	LastFrameAt time.Time `json:"last_frame_at"`
	// LatencyMS is the time since the last ingested frame in milliseconds
	LatencyMS int64 `json:"latency_ms"`
	// Uptime is the time since Create
	Uptime time.Duration `json:"uptime"`
	// StreamingFor is the time since the last Open, zero when not streaming
	StreamingFor time.Duration `json:"streaming_for"`
}

// Stats returns a snapshot of the pipeline counters. Safe to call at any
// time, including after Release.
func (p *Pipeline) Stats() Stats {
	cs := p.capture.Stats()
	vs := p.convert.Stats()
	now := time.Now()

	busErrors := make(map[string]uint64, buserr.NumCategories)
	for _, c := range buserr.Categories {
		busErrors[c.String()] = p.busErrors[c].Load()
	}

	stats := Stats{
		State:            p.State(),
		Format:           cs.NegotiatedFormat,
		FormatNegotiated: cs.FormatNegotiated,

		FramesIngested:     cs.Ingested,
		FramesMalformed:    cs.Malformed,
		FramesDropped:      cs.Handoff.Dropped,
		FramesDelivered:    cs.Handoff.Delivered,
		SizeMismatches:     cs.SizeMismatches,
		AllocationFailures: cs.AllocationFailed,
		CaptureTimeouts:    cs.Handoff.Timeouts,
		CaptureDuplicates:  cs.Handoff.Duplicates,

		Conversions:        vs.Converted,
		ConversionFailures: vs.Failed,
		NV12Conversions:    vs.NV12,
		RGB8Conversions:    vs.RGB8,

		RawPool:  cs.Pool,
		RGBAPool: vs.Pool,

		BusErrors:    busErrors,
		BusWarnings:  p.busWarnings.Load(),
		LastBusError: p.lastBusError.Load(),
		EOS:          p.eosCount.Load(),

		Opens:              p.opens.Load(),
		TransitionFailures: p.transitionFailed.Load(),

		LastFrameAt: cs.LastFrameAt,
		Uptime:      now.Sub(p.createdAt),
	}

	if !cs.LastFrameAt.IsZero() {
		stats.LatencyMS = now.Sub(cs.LastFrameAt).Milliseconds()
	}
	if stats.State == StateStreaming {
		stats.StreamingFor = now.Sub(p.streamingSince.Load())
	}

	return stats
}
