package handoff

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTake_AtMostOnePending(t *testing.T) {
	h := New()

	for i := 1; i <= 10; i++ {
		h.Publish(i)
	}

	idx, ok := h.Take(time.Second)
	require.True(t, ok)
	assert.Equal(t, 10, idx, "only the last publish is observable")

	_, ok = h.Take(0)
	assert.False(t, ok, "frames 1..9 must never be delivered")

	stats := h.Stats()
	assert.EqualValues(t, 10, stats.Published)
	assert.EqualValues(t, 1, stats.Delivered)
	assert.EqualValues(t, 9, stats.Dropped)
}

func TestTake_NoDoubleDelivery(t *testing.T) {
	h := New()
	h.Publish(3)

	_, ok := h.Take(100 * time.Millisecond)
	require.True(t, ok)

	_, ok = h.Take(20 * time.Millisecond)
	assert.False(t, ok)
}

func TestTake_ZeroTimeoutDoesNotBlock(t *testing.T) {
	h := New()

	start := time.Now()
	_, ok := h.Take(0)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 50*time.Millisecond)
	assert.EqualValues(t, 1, h.Stats().Timeouts)
}

func TestTake_ZeroTimeoutSeesPendingPublish(t *testing.T) {
	h := New()
	h.Publish(7)

	idx, ok := h.Take(0)
	require.True(t, ok)
	assert.Equal(t, 7, idx)
}

func TestTake_WakesEarlyOnPublish(t *testing.T) {
	h := New()

	go func() {
		time.Sleep(30 * time.Millisecond)
		h.Publish(5)
	}()

	start := time.Now()
	idx, ok := h.Take(2 * time.Second)
	elapsed := time.Since(start)

	require.True(t, ok)
	assert.Equal(t, 5, idx)
	assert.Less(t, elapsed, time.Second, "take must return at publish time, not at timeout")
	t.Logf("woke after %v", elapsed)
}

func TestTake_TimeoutExpires(t *testing.T) {
	h := New()

	start := time.Now()
	_, ok := h.Take(40 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestTake_Unbounded(t *testing.T) {
	h := New()

	done := make(chan int)
	go func() {
		idx, _ := h.Take(-1)
		done <- idx
	}()

	time.Sleep(10 * time.Millisecond)
	h.Publish(2)

	select {
	case idx := <-done:
		assert.Equal(t, 2, idx)
	case <-time.After(time.Second):
		t.Fatal("unbounded take did not wake")
	}
}

func TestTake_RoundRobinWraparound(t *testing.T) {
	const slots = 16
	h := New()

	idx := 0
	for i := 0; i < slots+1; i++ {
		idx = (idx + 1) % slots
		h.Publish(idx)
	}

	got, ok := h.Take(0)
	require.True(t, ok)
	assert.Equal(t, idx, got)
	assert.Equal(t, 1, got)
}

func TestHandoff_ConcurrentProducerConsumer(t *testing.T) {
	h := New()
	const n = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			h.Publish(i)
		}
	}()

	seen := make(map[int]bool)
	last := 0
	deadline := time.Now().Add(5 * time.Second)
	for last != n && time.Now().Before(deadline) {
		idx, ok := h.Take(10 * time.Millisecond)
		if !ok {
			continue
		}
		require.False(t, seen[idx], "index %d delivered twice", idx)
		require.Greater(t, idx, last, "delivery must be monotonic")
		seen[idx] = true
		last = idx
	}
	wg.Wait()

	stats := h.Stats()
	assert.Equal(t, n, last)
	assert.EqualValues(t, n, stats.Published)
	assert.EqualValues(t, n, stats.Delivered+stats.Dropped)
	t.Logf("delivered=%d dropped=%d duplicates=%d", stats.Delivered, stats.Dropped, stats.Duplicates)
}
