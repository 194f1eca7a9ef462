package warmup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evenlySpaced(n int, interval time.Duration) []time.Time {
	base := time.Unix(1_700_000_000, 0)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * interval)
	}
	return out
}

func TestCalculateFPSStats(t *testing.T) {
	t.Run("steady 10fps is stable", func(t *testing.T) {
		times := evenlySpaced(31, 100*time.Millisecond)
		stats := CalculateFPSStats(times, 3100*time.Millisecond)

		assert.Equal(t, 31, stats.FramesReceived)
		assert.InDelta(t, 10.0, stats.FPSMean, 0.01)
		assert.InDelta(t, 10.0, stats.FPSMin, 0.01)
		assert.InDelta(t, 10.0, stats.FPSMax, 0.01)
		assert.True(t, stats.IsStable)
		t.Logf("fps=%.2f stddev=%.3f jitter=%.4fs", stats.FPSMean, stats.FPSStdDev, stats.JitterMean)
	})

	t.Run("bursty stream is unstable", func(t *testing.T) {
		base := time.Unix(1_700_000_000, 0)
		var times []time.Time
		at := base
		for i := 0; i < 20; i++ {
			if i%2 == 0 {
				at = at.Add(10 * time.Millisecond)
			} else {
				at = at.Add(300 * time.Millisecond)
			}
			times = append(times, at)
		}
		stats := CalculateFPSStats(times, at.Sub(base))
		assert.False(t, stats.IsStable)
		assert.Greater(t, stats.JitterMax, 0.1)
	})

	t.Run("no frames", func(t *testing.T) {
		stats := CalculateFPSStats(nil, time.Second)
		assert.Zero(t, stats.FramesReceived)
		assert.False(t, stats.IsStable)
	})

	t.Run("identical timestamps", func(t *testing.T) {
		ts := time.Now()
		stats := CalculateFPSStats([]time.Time{ts, ts, ts}, time.Second)
		assert.InDelta(t, 3.0, stats.FPSMean, 0.001)
		assert.Zero(t, stats.FPSMax)
		assert.False(t, stats.IsStable)
	})
}

func TestRun_CollectsDeliveredFrames(t *testing.T) {
	capture := func(timeout time.Duration) (time.Time, bool) {
		wait := 10 * time.Millisecond
		if timeout < wait {
			time.Sleep(timeout)
			return time.Time{}, false
		}
		time.Sleep(wait)
		return time.Now(), true
	}

	stats, err := Run(context.Background(), capture, 200*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.FramesReceived, 5)
	t.Logf("frames=%d fps=%.1f", stats.FramesReceived, stats.FPSMean)
}

func TestRun_NotEnoughFrames(t *testing.T) {
	capture := func(timeout time.Duration) (time.Time, bool) {
		time.Sleep(timeout)
		return time.Time{}, false
	}

	_, err := Run(context.Background(), capture, 50*time.Millisecond)
	assert.ErrorContains(t, err, "not enough frames")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, func(time.Duration) (time.Time, bool) { return time.Now(), true }, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
