// Package uuidcorr generates correlation and request identifiers using
// google/uuid. The kernel's OAP codec treats corr_id as an opaque
// 8-byte field; this package is how host callers mint one.
package uuidcorr

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// NewRequestID returns a canonical string request identifier, suitable
// for the X-Request-ID header and for pkg/errors.ErrorEnvelope.RequestID.
func NewRequestID() string {
	return uuid.NewString()
}

// NewTraceID returns a canonical string trace identifier, suitable for
// pkg/telemetry/tracing.go's SpanContext.TraceID.
func NewTraceID() string {
	return uuid.NewString()
}

// NewCorrID derives an OAP Header.CorrID from a fresh UUIDv4's leading
// eight bytes. It is not reversible and carries no semantic meaning
// beyond uniqueness within the process's lifetime.
func NewCorrID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}
