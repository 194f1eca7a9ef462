// Package pool implements the fixed-capacity ring of device buffers used by
// the capture and convert stages.
package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
)

// ErrAllocation is returned when (re)allocating the pool fails. The pool is
// left unallocated.
var ErrAllocation = errors.New("gstpipeline: buffer allocation failed")

// Stats counts pool-level (re)allocation events.
type Stats struct {
	Allocations  uint64 // EnsureAllocated/Reconfigure calls that allocated slots
	Frees        uint64 // times the whole pool was freed
	Reconfigures uint64 // mode switches that reallocated
	SlotsLive    int
	BytesLive    uint64
}

// Pool owns a fixed number of equally sized buffers sharing one allocation
// mode.
//
// Slot contents are not guarded by the pool mutex: callers write and read
// slots outside of it and rely on round-robin assignment to keep the
// producer and consumer on different slots.
type Pool struct {
	label string
	alloc device.Allocator
	slots int

	mu       sync.Mutex
	buffers  []device.Buffer
	size     int
	mode     device.Mode
	released bool

	allocations  atomic.Uint64
	frees        atomic.Uint64
	reconfigures atomic.Uint64
}

// New creates an unallocated pool of n slots. label identifies the pool in
// logs ("raw", "rgba").
func New(alloc device.Allocator, n int, label string) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{
		label: label,
		alloc: alloc,
		slots: n,
		mode:  device.ModeMapped,
	}
}

// EnsureAllocated allocates every slot with size bytes in mode unless the
// pool is already allocated with exactly that size and mode. A pool allocated
// with a different size or mode is freed first.
func (p *Pool) EnsureAllocated(size int, mode device.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return fmt.Errorf("%w: %s pool released", ErrAllocation, p.label)
	}
	if p.buffers != nil && p.size == size && p.mode == mode {
		return nil
	}

	if p.buffers != nil {
		slog.Info("pool: reallocating",
			"pool", p.label,
			"old_size", humanize.Bytes(uint64(p.size)),
			"new_size", humanize.Bytes(uint64(size)),
			"old_mode", p.mode,
			"new_mode", mode,
		)
		p.freeLocked()
	}

	return p.allocLocked(size, mode)
}

// Reconfigure switches the pool to mode. An allocated pool is freed and
// reallocated at its current size; an unallocated pool only records the mode
// for the next EnsureAllocated. Same-mode calls are no-ops.
func (p *Pool) Reconfigure(mode device.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return fmt.Errorf("%w: %s pool released", ErrAllocation, p.label)
	}
	if p.mode == mode {
		return nil
	}

	if p.buffers == nil {
		p.mode = mode
		return nil
	}

	slog.Info("pool: switching allocation mode",
		"pool", p.label,
		"from", p.mode,
		"to", mode,
	)

	size := p.size
	p.freeLocked()
	p.reconfigures.Inc()
	return p.allocLocked(size, mode)
}

// allocLocked allocates all slots or none.
func (p *Pool) allocLocked(size int, mode device.Mode) error {
	buffers := make([]device.Buffer, 0, p.slots)
	for i := 0; i < p.slots; i++ {
		buf, err := p.alloc.Alloc(size, mode)
		if err != nil {
			for _, b := range buffers {
				if ferr := b.Free(); ferr != nil {
					slog.Warn("pool: free after failed allocation", "pool", p.label, "error", ferr)
				}
			}
			p.size = 0
			p.mode = mode
			slog.Error("pool: allocation failed",
				"pool", p.label,
				"slot", i,
				"slots", p.slots,
				"size", humanize.Bytes(uint64(size)),
				"mode", mode,
				"error", err,
			)
			return fmt.Errorf("%w: %s pool slot %d/%d (%s, %s): %v",
				ErrAllocation, p.label, i, p.slots, humanize.Bytes(uint64(size)), mode, err)
		}
		buffers = append(buffers, buf)
	}

	p.buffers = buffers
	p.size = size
	p.mode = mode
	p.allocations.Inc()

	slog.Info("pool: allocated",
		"pool", p.label,
		"slots", p.slots,
		"slot_size", humanize.Bytes(uint64(size)),
		"total", humanize.Bytes(uint64(size)*uint64(p.slots)),
		"mode", mode,
	)
	return nil
}

func (p *Pool) freeLocked() {
	for i, b := range p.buffers {
		if err := b.Free(); err != nil {
			slog.Warn("pool: free failed", "pool", p.label, "slot", i, "error", err)
		}
	}
	p.buffers = nil
	p.size = 0
	p.frees.Inc()
}

// Slot returns the buffer at index i, or nil when unallocated.
func (p *Pool) Slot(i int) device.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buffers == nil || i < 0 || i >= len(p.buffers) {
		return nil
	}
	return p.buffers[i]
}

// Next returns the slot after i, wrapping around.
func (p *Pool) Next(i int) int {
	return (i + 1) % p.slots
}

// Len returns the slot count.
func (p *Pool) Len() int { return p.slots }

// Size returns the per-slot size in bytes, 0 when unallocated.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Mode returns the pool's current (or pending) allocation mode.
func (p *Pool) Mode() device.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Allocated reports whether slots are currently allocated.
func (p *Pool) Allocated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers != nil
}

// Release frees every slot and refuses later allocations. Safe to call more
// than once.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.released = true
	if p.buffers == nil {
		return
	}
	slog.Debug("pool: releasing", "pool", p.label, "slots", len(p.buffers))
	p.freeLocked()
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	live := len(p.buffers)
	bytes := uint64(p.size) * uint64(live)
	p.mu.Unlock()

	return Stats{
		Allocations:  p.allocations.Load(),
		Frees:        p.frees.Load(),
		Reconfigures: p.reconfigures.Load(),
		SlotsLive:    live,
		BytesLive:    bytes,
	}
}
