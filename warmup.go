package gstpipeline

import (
	"context"
	"errors"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/warmup"
)

// WarmupStats summarizes the frame rate observed during Warmup.
type WarmupStats = warmup.Stats

// CalculateFPSStats computes rate and jitter statistics from frame
// timestamps. Exposed for callers that collect their own timestamps.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *WarmupStats {
	return warmup.CalculateFPSStats(frameTimes, totalDuration)
}

// Warmup opens the pipeline and captures frames for duration, measuring the
// rate at which the consumer actually receives them.
//
// Frames captured during warm-up are discarded. Returns an error if the
// pipeline cannot be opened, ctx ends or fewer than 2 frames arrive.
// An unstable rate is reported through WarmupStats.IsStable, not as an error.
func (p *Pipeline) Warmup(ctx context.Context, duration time.Duration) (*WarmupStats, error) {
	if err := p.Open(); err != nil {
		return nil, err
	}

	return warmup.Run(ctx, func(timeout time.Duration) (time.Time, bool) {
		raw, err := p.Capture(timeout)
		if err != nil {
			if !errors.Is(err, ErrNoFrame) {
				// Open or release failures return immediately; keep the
				// poll cadence instead of spinning.
				time.Sleep(timeout)
			}
			return time.Time{}, false
		}
		return raw.Timestamp, true
	}, duration)
}
