// Package ryker implements bounded, single-consumer mailboxes: the
// host-owned queues that supervised children read from. Sends never block
// past their configured policy; the runtime schedules fairly across
// mailboxes sharing a worker pool.
package ryker

import (
	"context"
	"sync"
	"time"

	"github.com/rustyonions/kernel/pkg/kerrors"
	"github.com/rustyonions/kernel/pkg/limits"
	"golang.org/x/time/rate"
)

// DropReason classifies why OnDrop fired.
type DropReason string

const (
	DropCapacity DropReason = "capacity"
	DropClosed   DropReason = "closed"
)

// Observer receives best-effort, non-blocking mailbox lifecycle hooks.
// Implementations must not block; the runtime calls these inline on the
// data path and a slow observer would throttle every sender.
type Observer interface {
	OnEnqueue(actor string, depth int)
	OnDrop(actor string, reason DropReason)
	OnTimeout(actor string)
	OnRestart(actor string)
}

// NoopObserver implements Observer with no-ops, safe as a default.
type NoopObserver struct{}

func (NoopObserver) OnEnqueue(string, int)        {}
func (NoopObserver) OnDrop(string, DropReason)    {}
func (NoopObserver) OnTimeout(string)             {}
func (NoopObserver) OnRestart(string)             {}

// Config controls one mailbox's capacity and fairness knobs.
type Config struct {
	Actor           string
	Capacity        int
	Deadline        time.Duration
	MaxMsgBytes     int // 0 disables the size check
	YieldEveryNMsgs int
	BatchMessages   int
	Amnesia         bool
	Observer        Observer
	Limiter         *rate.Limiter // optional admission limiter
}

func (c *Config) setDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = limits.DefaultMailboxCapacity
	}
	if c.Deadline <= 0 {
		c.Deadline = limits.DefaultMailboxDeadline
	}
	if c.YieldEveryNMsgs <= 0 {
		c.YieldEveryNMsgs = limits.DefaultYieldEveryN
	}
	if c.BatchMessages <= 0 {
		c.BatchMessages = limits.DefaultBatchMessages
	}
	if c.Observer == nil {
		c.Observer = NoopObserver{}
	}
}

// Sized is implemented by messages that report their own byte footprint
// for MaxMsgBytes enforcement. Messages that don't implement it bypass
// the size check.
type Sized interface {
	SizeBytes() int
}

// Mailbox is a bounded, single-consumer FIFO queue. Recv is a method on
// the mailbox itself (not a cloneable receiver), enforcing single
// ownership of the receive half by API shape.
type Mailbox struct {
	cfg    Config
	ch     chan any
	mu     sync.Mutex
	closed bool
	recvN  int // messages received since last yield, for fairness bookkeeping
}

// New constructs a Mailbox. cfg.Capacity/Deadline/fairness knobs default
// per pkg/limits when zero.
func New(cfg Config) *Mailbox {
	cfg.setDefaults()
	return &Mailbox{
		cfg: cfg,
		ch:  make(chan any, cfg.Capacity),
	}
}

func sizeOf(msg any) int {
	if s, ok := msg.(Sized); ok {
		return s.SizeBytes()
	}
	return 0
}

func (m *Mailbox) admit() bool {
	if m.cfg.Limiter == nil {
		return true
	}
	return m.cfg.Limiter.Allow()
}

// TrySend enqueues msg without blocking. It fails with kerrors.Busy when
// the mailbox (or its admission limiter) is saturated, kerrors.TooLarge
// when MaxMsgBytes is configured and exceeded, or kerrors.Closed once the
// mailbox has been closed.
func (m *Mailbox) TrySend(msg any) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.cfg.Observer.OnDrop(m.cfg.Actor, DropClosed)
		return kerrors.ErrClosed
	}
	if m.cfg.MaxMsgBytes > 0 {
		if n := sizeOf(msg); n > m.cfg.MaxMsgBytes {
			m.cfg.Observer.OnDrop(m.cfg.Actor, DropCapacity)
			return kerrors.New(kerrors.TooLarge, "message exceeds max_msg_bytes", map[string]any{
				"size": n, "max": m.cfg.MaxMsgBytes,
			})
		}
	}
	if !m.admit() {
		m.cfg.Observer.OnDrop(m.cfg.Actor, DropCapacity)
		return kerrors.ErrBusy
	}
	select {
	case m.ch <- msg:
		m.cfg.Observer.OnEnqueue(m.cfg.Actor, len(m.ch))
		return nil
	default:
		m.cfg.Observer.OnDrop(m.cfg.Actor, DropCapacity)
		return kerrors.ErrBusy
	}
}

// SendWithDeadline waits up to d (or until ctx is done, if sooner) for
// room in the mailbox. Reject-on-full is the default policy for TrySend;
// SendWithDeadline is the opt-in blocking alternative.
func (m *Mailbox) SendWithDeadline(ctx context.Context, msg any, d time.Duration) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.cfg.Observer.OnDrop(m.cfg.Actor, DropClosed)
		return kerrors.ErrClosed
	}
	if d <= 0 {
		d = m.cfg.Deadline
	}
	if m.cfg.MaxMsgBytes > 0 {
		if n := sizeOf(msg); n > m.cfg.MaxMsgBytes {
			m.cfg.Observer.OnDrop(m.cfg.Actor, DropCapacity)
			return kerrors.New(kerrors.TooLarge, "message exceeds max_msg_bytes", map[string]any{
				"size": n, "max": m.cfg.MaxMsgBytes,
			})
		}
	}
	if m.cfg.Limiter != nil {
		if err := m.cfg.Limiter.WaitN(ctx, 1); err != nil {
			m.cfg.Observer.OnTimeout(m.cfg.Actor)
			return kerrors.New(kerrors.Timeout, "admission limiter wait exceeded", nil)
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case m.ch <- msg:
		m.cfg.Observer.OnEnqueue(m.cfg.Actor, len(m.ch))
		return nil
	case <-timer.C:
		m.cfg.Observer.OnTimeout(m.cfg.Actor)
		return kerrors.ErrTimeout
	case <-ctx.Done():
		m.cfg.Observer.OnTimeout(m.cfg.Actor)
		return kerrors.New(kerrors.Timeout, "send cancelled", nil)
	}
}

// Recv blocks for the single consumer until a message is available, ctx
// is done, or the mailbox is closed and drained.
func (m *Mailbox) Recv(ctx context.Context) (any, error) {
	select {
	case msg, ok := <-m.ch:
		if !ok {
			return nil, kerrors.ErrClosed
		}
		m.recvN++
		if m.recvN%m.cfg.YieldEveryNMsgs == 0 {
			yield()
		}
		return msg, nil
	case <-ctx.Done():
		return nil, kerrors.New(kerrors.Timeout, "recv cancelled", nil)
	}
}

// Close marks the mailbox closed; subsequent TrySend/SendWithDeadline
// calls fail with kerrors.Closed. Without Amnesia, buffered messages
// remain receivable until drained. With Amnesia, Close itself drains every
// buffered message, calling Zeroize on those implementing Zeroizer
// (best-effort, single pass), so none remain receivable.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	close(m.ch)

	if m.cfg.Amnesia {
		for msg := range m.ch {
			if z, ok := msg.(Zeroizer); ok {
				z.Zeroize()
			}
		}
	}
}

// ObserverHooks exposes the mailbox's configured Observer so a supervisor can
// fire OnRestart(actor) when it restarts the child that owns this mailbox.
func (m *Mailbox) ObserverHooks() Observer { return m.cfg.Observer }

// Actor returns the mailbox's configured actor name.
func (m *Mailbox) Actor() string { return m.cfg.Actor }

// Len returns the current buffered message count.
func (m *Mailbox) Len() int { return len(m.ch) }

// Zeroizer is implemented by messages that hold sensitive buffers and
// know how to best-effort wipe them when Amnesia mode drops them.
type Zeroizer interface {
	Zeroize()
}
