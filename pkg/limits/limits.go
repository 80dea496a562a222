// Package limits defines the protocol and runtime bounds shared across the
// kernel: frame caps, chunk sizing guidance, and default mailbox/supervisor
// knobs. Changing MaxFrame is a breaking change to the wire contract.
package limits

import "time"

const (
	// MaxFrame is the hard cap on a single OAP/1 frame, header included.
	MaxFrame = 1 << 20 // 1 MiB

	// HeaderSize is the fixed OAP/1 header width in bytes: len(4) + ver(2) +
	// flags(2) + code(2) + app_proto_id(2) + tenant_id(16) + cap_len(2) +
	// corr_id(8).
	HeaderSize = 38

	// StreamChunkHint is a guideline for streaming writers; it is not a
	// protocol limit and decoders MUST NOT reject frames based on it.
	StreamChunkHint = 64 * 1024

	// MaxDecompressExpansion bounds COMP-flagged inflation relative to the
	// wire length of the frame that carried it.
	MaxDecompressExpansion = 8

	// OAPVersion is the only wire version this codec currently emits/accepts.
	OAPVersion = 1

	// MaxInflightPerConn is a defensive default admission cap; hosts may
	// override it per connection.
	MaxInflightPerConn = 64
)

// Ryker (mailbox/supervisor) defaults, applied when the matching
// construction option is zero. No package in this module reads RYKER_*
// environment variables; overrides come only from explicit options.
const (
	DefaultMailboxCapacity = 256
	DefaultMailboxDeadline = 2 * time.Second
	DefaultBatchMessages   = 16
	DefaultYieldEveryN     = 64
	DefaultBackoffBase     = 100 * time.Millisecond
	DefaultBackoffCap      = 30 * time.Second
	DefaultAmnesia         = false
)

// Timeout defaults for externally triggered operations (spec §5).
const (
	HandshakeTimeout = 2 * time.Second
	ReadTimeout      = 5 * time.Second
	WriteTimeout     = 5 * time.Second
	IdleTimeout      = 30 * time.Second
	AdminTimeout     = 10 * time.Second
)
