package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rustyonions/kernel/pkg/kerrors"
)

// MetricsSink is the minimal counter port the bus reports
// overflow drops through. A nil sink disables reporting.
type MetricsSink interface {
	IncCounter(name string, labels map[string]string)
}

// LaggedError signals that a Receiver missed N events because it could
// not keep up with the ring buffer's drop-oldest policy. It is not part
// of the core kerrors.Kind taxonomy: it carries a count, not a reason.
type LaggedError struct{ N uint64 }

func (e *LaggedError) Error() string { return fmt.Sprintf("lagged: %d events dropped", e.N) }

// Bus is a bounded, drop-oldest broadcast channel. Publish never blocks.
type Bus struct {
	mu       sync.Mutex
	capacity uint64
	ring     []Event
	writeSeq uint64
	closed   bool
	wake     chan struct{}

	subscribers int64 // atomic

	overflow uint64 // atomic, exposed as bus_overflow_dropped_total
	sink     MetricsSink
}

// New constructs a Bus with the given ring capacity (must be >= 2) and an
// optional MetricsSink for overflow reporting.
func New(capacity int, sink MetricsSink) *Bus {
	if capacity < 2 {
		capacity = 2
	}
	return &Bus{
		capacity: uint64(capacity),
		ring:     make([]Event, capacity),
		wake:     make(chan struct{}),
		sink:     sink,
	}
}

// Publish delivers ev to all current subscribers without blocking. It
// returns the number of receivers subscribed at the time of the call.
// If the ring wraps over an unread slot, the overflow counter advances.
func (b *Bus) Publish(ev Event) int {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	if b.writeSeq >= b.capacity {
		atomic.AddUint64(&b.overflow, 1)
		if b.sink != nil {
			b.sink.IncCounter("bus_overflow_dropped_total", nil)
		}
	}
	b.ring[b.writeSeq%b.capacity] = ev
	b.writeSeq++
	wake := b.wake
	b.wake = make(chan struct{})
	b.mu.Unlock()
	close(wake)
	return int(atomic.LoadInt64(&b.subscribers))
}

// Close marks the bus closed; subscribers observe Closed once drained.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	wake := b.wake
	b.wake = make(chan struct{})
	b.mu.Unlock()
	close(wake)
}

// OverflowDropped returns the monotonic count of ring-buffer overwrites.
func (b *Bus) OverflowDropped() uint64 { return atomic.LoadUint64(&b.overflow) }

// Subscribe creates a new Receiver positioned at the current write head;
// it observes only events published after this call.
func (b *Bus) Subscribe() *Receiver {
	b.mu.Lock()
	cursor := b.writeSeq
	b.mu.Unlock()
	atomic.AddInt64(&b.subscribers, 1)
	return &Receiver{bus: b, cursor: cursor}
}

// Receiver is a single subscriber's independent read cursor into a Bus.
type Receiver struct {
	bus    *Bus
	cursor uint64
	closed bool
}

// Recv blocks until an event is available, the bus is closed, or ctx is
// done. A lagging receiver receives *LaggedError instead of silently
// skipping events; the cursor resynchronizes to the oldest available slot.
func (r *Receiver) Recv(ctx context.Context) (Event, error) {
	b := r.bus
	for {
		b.mu.Lock()
		if r.cursor < b.writeSeq {
			var oldestAvail uint64
			if b.writeSeq > b.capacity {
				oldestAvail = b.writeSeq - b.capacity
			}
			if r.cursor < oldestAvail {
				n := oldestAvail - r.cursor
				r.cursor = oldestAvail
				b.mu.Unlock()
				return Event{}, &LaggedError{N: n}
			}
			ev := b.ring[r.cursor%b.capacity]
			r.cursor++
			b.mu.Unlock()
			return ev, nil
		}
		if b.closed {
			b.mu.Unlock()
			return Event{}, kerrors.ErrClosed
		}
		wake := b.wake
		b.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return Event{}, kerrors.New(kerrors.Timeout, "recv cancelled", nil)
		}
	}
}

// Close releases the receiver's slot in the subscriber count. It does not
// affect the bus or other receivers.
func (r *Receiver) Close() {
	if r.closed {
		return
	}
	r.closed = true
	atomic.AddInt64(&r.bus.subscribers, -1)
}
