package supervisor

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rustyonions/kernel/pkg/limits"
)

// hashU64 derives a pseudorandom uint64 from parts via sha256, avoiding
// any dependency on math/rand's global state so concurrent children draw
// independent sequences without coordination.
func hashU64(parts ...string) uint64 {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // separator, prevents "ab","c" colliding with "a","bc"
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

// uniformBetween draws a deterministic pseudorandom duration in [lo, hi]
// (inclusive), seeded by parts.
func uniformBetween(lo, hi time.Duration, parts ...string) time.Duration {
	if hi <= lo {
		return lo
	}
	span := uint64(hi - lo)
	r := hashU64(parts...) % (span + 1)
	return lo + time.Duration(r)
}

// Backoff implements decorrelated-jitter restart delays:
// next = min(cap, uniform(base, max(base, prev*3))).
// Two immediate consecutive crashes with no intervening successful run
// reset the delay straight to cap, avoiding a hot crash loop.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
	Salt string // per-child identity, keeps draws independent across children

	prev    time.Duration
	attempt uint64
	streak  int
}

// NewBackoff constructs a Backoff; Base/Cap default per pkg/limits when zero.
func NewBackoff(salt string, base, cap time.Duration) *Backoff {
	if base <= 0 {
		base = limits.DefaultBackoffBase
	}
	if cap <= 0 {
		cap = limits.DefaultBackoffCap
	}
	return &Backoff{Base: base, Cap: cap, Salt: salt}
}

// Next returns the delay before the next restart attempt and records a
// crash in the consecutive-crash streak.
func (b *Backoff) Next() time.Duration {
	b.streak++
	if b.streak >= 2 {
		b.prev = b.Cap
		b.attempt++
		return b.Cap
	}

	hi := b.prev * 3
	if hi < b.Base {
		hi = b.Base
	}
	if hi > b.Cap {
		hi = b.Cap
	}
	d := uniformBetween(b.Base, hi, b.Salt, fmt.Sprint(b.attempt), b.prev.String())
	if d > b.Cap {
		d = b.Cap
	}
	b.attempt++
	b.prev = d
	return d
}

// ResetOnSuccess clears the consecutive-crash streak and jitter memory
// after a child completes a successful (non-crashing) run.
func (b *Backoff) ResetOnSuccess() {
	b.streak = 0
	b.prev = 0
}
