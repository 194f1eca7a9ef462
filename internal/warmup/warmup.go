// Package warmup measures the delivered frame rate of a freshly opened
// pipeline before it is used for real work.
package warmup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// pollInterval bounds each capture attempt so ctx cancellation and the
// warm-up deadline are observed promptly.
const pollInterval = 100 * time.Millisecond

// CaptureFunc pulls the next frame and returns its ingest timestamp.
// ok is false when no new frame arrived within timeout.
type CaptureFunc func(timeout time.Duration) (ts time.Time, ok bool)

// Run pulls frames for duration and computes rate statistics.
//
// This function:
//  1. Polls capture with a short timeout until duration elapses or ctx ends
//  2. Records the ingest timestamp of every delivered frame
//  3. Computes FPS and jitter statistics over the timestamps
//
// Frames overwritten in the handoff before Run pulls them are not seen, so
// the result is the rate the consumer actually observes.
//
// Returns an error if fewer than 2 frames arrive or ctx is cancelled. An
// unstable stream is logged but not treated as an error; callers decide via
// Stats.IsStable.
func Run(ctx context.Context, capture CaptureFunc, duration time.Duration) (*Stats, error) {
	slog.Info("warmup: starting", "duration", duration)

	start := time.Now()
	deadline := start.Add(duration)
	times := make([]time.Time, 0, 128)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("warmup: cancelled after %d frames: %w", len(times), err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}

		ts, ok := capture(remaining)
		if !ok {
			continue
		}
		times = append(times, ts)
		slog.Debug("warmup: frame received", "frames_collected", len(times))
	}

	if len(times) < 2 {
		return nil, fmt.Errorf("warmup: not enough frames received (got %d, need at least 2)", len(times))
	}

	stats := CalculateFPSStats(times, time.Since(start))

	slog.Info("warmup: complete",
		"frames", stats.FramesReceived,
		"duration", stats.Duration,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean", fmt.Sprintf("%.3fs", stats.JitterMean),
		"stable", stats.IsStable,
	)
	if !stats.IsStable {
		slog.Warn("warmup: delivered frame rate unstable",
			"fps_mean", stats.FPSMean,
			"fps_stddev", stats.FPSStdDev,
			"jitter_mean", stats.JitterMean,
		)
	}

	return stats, nil
}
