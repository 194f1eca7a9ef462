// Package handoff implements the single-slot, overwrite-on-publish mailbox
// between the engine's sample callback and the capture consumer.
package handoff

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Stats is a snapshot of handoff counters.
type Stats struct {
	Published  uint64 // Publish calls
	Delivered  uint64 // Take calls that returned an index
	Dropped    uint64 // publishes that overwrote an unretrieved index
	Duplicates uint64 // wakes that found the latest index already retrieved
	Timeouts   uint64 // Take calls that expired without a wake
}

// Handoff holds at most one pending slot index.
//
// Publish overwrites the pending index whether or not it was retrieved, so the
// consumer always sees the freshest frame and older ones are dropped. The
// mutex covers only the index and flag; callers copy into and convert out of
// their slots without holding it.
//
// The wake signal is an auto-reset event: a channel with capacity 1, so any
// number of publishes before a Take leave exactly one pending wake.
type Handoff struct {
	mu        sync.Mutex
	latest    int
	retrieved bool

	signal chan struct{}

	published  atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	duplicates atomic.Uint64
	timeouts   atomic.Uint64
}

// New creates an empty handoff.
func New() *Handoff {
	return &Handoff{
		retrieved: true,
		signal:    make(chan struct{}, 1),
	}
}

// Publish makes index the latest frame and wakes a waiting Take.
//
// Must be called only after the slot at index is fully written.
func (h *Handoff) Publish(index int) {
	h.mu.Lock()
	if !h.retrieved {
		h.dropped.Inc()
	}
	h.latest = index
	h.retrieved = false
	h.mu.Unlock()

	h.published.Inc()

	select {
	case h.signal <- struct{}{}:
	default:
		// wake already pending
	}
}

// Take waits for a publish and returns the latest unretrieved index.
//
// Timeout semantics:
//   - timeout == 0: do not block, consume a pending wake if any
//   - timeout < 0: block until a publish
//   - timeout > 0: block at most timeout
//
// Returns false when the wait expired or when the latest index was already
// delivered. An index is never delivered twice.
func (h *Handoff) Take(timeout time.Duration) (int, bool) {
	if !h.wait(timeout) {
		h.timeouts.Inc()
		return 0, false
	}

	h.mu.Lock()
	if h.retrieved {
		h.mu.Unlock()
		h.duplicates.Inc()
		return 0, false
	}
	h.retrieved = true
	index := h.latest
	h.mu.Unlock()

	h.delivered.Inc()
	return index, true
}

func (h *Handoff) wait(timeout time.Duration) bool {
	switch {
	case timeout == 0:
		select {
		case <-h.signal:
			return true
		default:
			return false
		}
	case timeout < 0:
		<-h.signal
		return true
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-h.signal:
			return true
		case <-timer.C:
			return false
		}
	}
}

// Stats returns a snapshot of the counters.
func (h *Handoff) Stats() Stats {
	return Stats{
		Published:  h.published.Load(),
		Delivered:  h.delivered.Load(),
		Dropped:    h.dropped.Load(),
		Duplicates: h.duplicates.Load(),
		Timeouts:   h.timeouts.Load(),
	}
}
