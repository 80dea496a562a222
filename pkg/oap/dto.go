package oap

// Sub-frame payload shapes. The codec never requires, parses, or validates
// these; they exist as a convenience contract for hosts that choose to use
// JSON application payloads over OAP/1. HELLO's precise shape is an
// external collaborator contract, not a wire invariant.

// HelloPayload is the conventional body of a session preamble REQ frame.
type HelloPayload struct {
	ServerVersion  string   `json:"server_version"`
	MaxFrame       int      `json:"max_frame"`
	MaxInflight    int      `json:"max_inflight"`
	SupportedFlags []string `json:"supported_flags"`
	OapVersions    []int    `json:"oap_versions"`
	Transports     []string `json:"transports"`
}

// StartPayload is the conventional body of a START-flagged frame opening a
// logical stream.
type StartPayload struct {
	StreamID uint64 `json:"stream_id"`
	Name     string `json:"name"`
}

// DataPayload is a conventional streamed chunk body.
type DataPayload struct {
	Seq   uint64 `json:"seq"`
	Bytes []byte `json:"bytes"`
}

// EndPayload is the conventional body of an END-flagged frame closing a
// logical stream.
type EndPayload struct {
	StreamID uint64 `json:"stream_id"`
	Reason   string `json:"reason,omitempty"`
}

// ErrorPayload is the conventional body of an application-level error
// response; Message must never embed secrets.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}
