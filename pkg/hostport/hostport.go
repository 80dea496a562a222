// Package hostport collects the ports services implement to plug into
// the core: signing, verification, clocks, observability, hashing, and
// bus bridging. The core depends only on these interfaces, never on a
// concrete transport or crypto library.
package hostport

import (
	"context"
	"time"

	"github.com/rustyonions/kernel/pkg/bus"
	"github.com/rustyonions/kernel/pkg/contentid"
	"github.com/rustyonions/kernel/pkg/metrics"
	"github.com/rustyonions/kernel/pkg/passport"
	"github.com/rustyonions/kernel/pkg/ryker"
)

// KeyID opaquely identifies a signing/verification key.
type KeyID string

// Signer produces a MAC/signature over msg under the key identified by
// KeyID. Core components never see the underlying key material.
type Signer interface {
	Sign(ctx context.Context, kid KeyID, msg []byte) (sig []byte, err error)
}

// Verifier checks a signature produced by the counterpart Signer.
type Verifier interface {
	Verify(ctx context.Context, kid KeyID, msg, sig []byte) (ok bool, err error)
}

// Clock supplies monotonic and wall-clock readings so time-sensitive
// components (backoff, capability expiry) are deterministic under test.
type Clock interface {
	Now() time.Time
	MonotonicMillis() int64
}

// SystemClock is the default Clock backed by the Go runtime.
type SystemClock struct{ epoch time.Time }

// NewSystemClock returns a Clock whose MonotonicMillis is measured from
// the instant of construction.
func NewSystemClock() SystemClock { return SystemClock{epoch: time.Now()} }

func (c SystemClock) Now() time.Time { return time.Now() }

func (c SystemClock) MonotonicMillis() int64 { return time.Since(c.epoch).Milliseconds() }

// Observer re-exports the mailbox lifecycle hook port so host packages
// depend only on pkg/hostport rather than reaching into pkg/ryker.
type Observer = ryker.Observer

// MetricsSink re-exports the counter/histogram port.
type MetricsSink = metrics.Sink

// HashFn re-exports the content-hashing port.
type HashFn = contentid.HashFn

// KeyDirectory re-exports the capability key lookup port.
type KeyDirectory = passport.KeyDirectory

// BusEventSink is implemented by adapters that want to observe every
// event published on a Bus (audit ledgers, WebSocket bridges).
type BusEventSink interface {
	Accept(ctx context.Context, ev bus.Event) error
}

// BusEventSource is implemented by adapters that inject events onto a
// Bus from outside the core (e.g. an external control-plane signal).
type BusEventSource interface {
	Events(ctx context.Context) (<-chan bus.Event, error)
}
