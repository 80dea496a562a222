// Package metrics defines the stable, low-cardinality outcome-class
// taxonomy used across the core for metric labels, and the MetricsSink
// port implementations report through.
package metrics

import "github.com/rustyonions/kernel/pkg/kerrors"

// OutcomeClass is a stable, low-cardinality classification of a request
// or decode outcome, safe to use as a metric label value.
type OutcomeClass string

const (
	Success      OutcomeClass = "success"
	ClientError  OutcomeClass = "client_error"
	ServerError  OutcomeClass = "server_error"
	Oversize     OutcomeClass = "oversize"
	DecodeError  OutcomeClass = "decode_error"
	Unauthorized OutcomeClass = "unauthorized"
	RateLimited  OutcomeClass = "rate_limited"
	Unavailable  OutcomeClass = "unavailable"
)

// Labels is the stable (subsystem, reason, status) tuple rendered for a
// given OutcomeClass. Reason strings are immutable across minor versions.
type Labels struct {
	Subsystem string
	Reason    string
	Status    string
}

var labelTable = map[OutcomeClass]Labels{
	Success:      {"oap", "ok", "2xx"},
	ClientError:  {"oap", "client_error", "4xx"},
	ServerError:  {"oap", "server_error", "5xx"},
	Oversize:     {"oap", "oversize", "413"},
	DecodeError:  {"oap", "decode_error", "400"},
	Unauthorized: {"oap", "unauthorized", "401"},
	RateLimited:  {"oap", "rate_limited", "429"},
	Unavailable:  {"oap", "unavailable", "503"},
}

// LabelsFor returns the stable label tuple for an outcome class.
func LabelsFor(c OutcomeClass) Labels { return labelTable[c] }

// FromDecodeError classifies a pkg/oap decode failure into an
// OutcomeClass: FrameTooLarge maps to Oversize; BadFlags, CapOnNonStart,
// PayloadOutOfBounds, and Malformed all map to DecodeError.
func FromDecodeError(err error) OutcomeClass {
	k, ok := kerrors.KindOf(err)
	if !ok {
		return ServerError
	}
	switch k {
	case kerrors.FrameTooLarge:
		return Oversize
	case kerrors.BadFlags, kerrors.CapOnNonStart, kerrors.PayloadOutOfBounds, kerrors.Malformed:
		return DecodeError
	case kerrors.UnknownKid, kerrors.MacMismatch, kerrors.Expired, kerrors.NotYetValid:
		return Unauthorized
	case kerrors.Busy, kerrors.TooLarge:
		return RateLimited
	case kerrors.Closed, kerrors.Unavailable:
		return Unavailable
	default:
		return ServerError
	}
}
