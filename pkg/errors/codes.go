// Package errors is the HTTP-facing error envelope layer: it maps the
// closed pkg/kerrors.Kind taxonomy onto stable wire codes, HTTP status,
// and retryability, for admin/operator surfaces that need JSON error
// bodies rather than typed Go errors.
package errors

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/rustyonions/kernel/pkg/kerrors"
)

// Code is a stable wire error code. Once published, codes are treated
// as API-stable.
type Code string

// CodeMeta provides metadata useful for HTTP mapping, retry decisions,
// and documentation.
type CodeMeta struct {
	HTTPStatus  int    `json:"http_status"`
	Retryable   bool   `json:"retryable"`
	Kind        string `json:"kind"` // client|server|security|dependency
	Description string `json:"description"`
}

// ---- OAP codec ----
const (
	OAPMalformed           Code = "oap.malformed"
	OAPFrameTooLarge       Code = "oap.frame_too_large"
	OAPBadFlags            Code = "oap.bad_flags"
	OAPCapOnNonStart       Code = "oap.cap_on_non_start"
	OAPPayloadOutOfBounds  Code = "oap.payload_out_of_bounds"
	OAPOversize            Code = "oap.oversize"
)

// ---- capability verifier ----
const (
	CapabilityBounds      Code = "capability.bounds"
	CapabilityUnknownKid  Code = "capability.unknown_kid"
	CapabilityMacMismatch Code = "capability.mac_mismatch"
	CapabilityExpired     Code = "capability.expired"
	CapabilityNotYetValid Code = "capability.not_yet_valid"
)

// ---- mailbox / supervisor ----
const (
	MailboxBusy    Code = "mailbox.busy"
	MailboxTooLarge Code = "mailbox.too_large"
	MailboxClosed  Code = "mailbox.closed"
	MailboxTimeout Code = "mailbox.timeout"
)

// ---- kernel-wide ----
const (
	KernelUnavailable Code = "kernel.unavailable"
	KernelInternal    Code = "kernel.internal"
	KernelNotFound    Code = "kernel.not_found"
)

var registry = map[Code]CodeMeta{
	OAPMalformed:          {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "frame failed structural decode"},
	OAPFrameTooLarge:      {HTTPStatus: 413, Retryable: false, Kind: "client", Description: "frame exceeds max_frame"},
	OAPBadFlags:           {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "unknown flag bits set"},
	OAPCapOnNonStart:      {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "capability present without START flag"},
	OAPPayloadOutOfBounds: {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "cap_len exceeds frame body"},
	OAPOversize:           {HTTPStatus: 413, Retryable: false, Kind: "client", Description: "encoded frame exceeds max_frame"},

	CapabilityBounds:      {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "token exceeds size bound"},
	CapabilityUnknownKid:  {HTTPStatus: 401, Retryable: false, Kind: "security", Description: "unknown key id"},
	CapabilityMacMismatch: {HTTPStatus: 401, Retryable: false, Kind: "security", Description: "mac verification failed"},
	CapabilityExpired:     {HTTPStatus: 401, Retryable: false, Kind: "security", Description: "token expired"},
	CapabilityNotYetValid: {HTTPStatus: 401, Retryable: false, Kind: "security", Description: "token not yet valid"},

	MailboxBusy:     {HTTPStatus: 429, Retryable: true, Kind: "dependency", Description: "mailbox at capacity"},
	MailboxTooLarge: {HTTPStatus: 413, Retryable: false, Kind: "client", Description: "message exceeds mailbox bound"},
	MailboxClosed:   {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "mailbox closed"},
	MailboxTimeout:  {HTTPStatus: 504, Retryable: true, Kind: "dependency", Description: "mailbox send deadline exceeded"},

	KernelUnavailable: {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "dependency unavailable"},
	KernelInternal:    {HTTPStatus: 500, Retryable: true, Kind: "server", Description: "internal error"},
	KernelNotFound:    {HTTPStatus: 404, Retryable: false, Kind: "client", Description: "route not found"},
}

// kindCode maps the closed kerrors.Kind taxonomy onto wire Codes. Every
// kerrors.Kind has exactly one row here; an unmapped Kind falls back to
// KernelInternal in CodeForKind.
var kindCode = map[kerrors.Kind]Code{
	kerrors.Bounds:             CapabilityBounds,
	kerrors.Malformed:          OAPMalformed,
	kerrors.FrameTooLarge:      OAPFrameTooLarge,
	kerrors.BadFlags:           OAPBadFlags,
	kerrors.CapOnNonStart:      OAPCapOnNonStart,
	kerrors.PayloadOutOfBounds: OAPPayloadOutOfBounds,
	kerrors.UnknownKid:         CapabilityUnknownKid,
	kerrors.MacMismatch:        CapabilityMacMismatch,
	kerrors.Expired:            CapabilityExpired,
	kerrors.NotYetValid:        CapabilityNotYetValid,
	kerrors.Busy:               MailboxBusy,
	kerrors.TooLarge:           MailboxTooLarge,
	kerrors.Closed:             MailboxClosed,
	kerrors.Timeout:            MailboxTimeout,
	kerrors.Oversize:           OAPOversize,
	kerrors.Unavailable:        KernelUnavailable,
	kerrors.Internal:           KernelInternal,
}

// CodeForKind returns the wire Code for a core kerrors.Kind, defaulting
// to KernelInternal for an unmapped kind.
func CodeForKind(k kerrors.Kind) Code {
	if c, ok := kindCode[k]; ok {
		return c
	}
	return KernelInternal
}

// Meta returns metadata for a code.
func Meta(code Code) (CodeMeta, bool) {
	m, ok := registry[code]
	return m, ok
}

func Known(code Code) bool {
	_, ok := registry[code]
	return ok
}

// List returns all known codes sorted.
func List() []Code {
	out := make([]Code, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExportJSON returns stable JSON of all codes + meta.
func ExportJSON() []byte {
	type row struct {
		Code Code     `json:"code"`
		Meta CodeMeta `json:"meta"`
	}
	codes := List()
	rows := make([]row, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, row{Code: c, Meta: registry[c]})
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return []byte("[]")
	}
	var buf bytes.Buffer
	_, _ = buf.Write(b)
	return buf.Bytes()
}
