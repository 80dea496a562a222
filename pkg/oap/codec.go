package oap

import (
	"github.com/rustyonions/kernel/pkg/kerrors"
	"github.com/rustyonions/kernel/pkg/limits"
)

// Encode serializes a frame to a freshly allocated buffer. It fails closed:
// Oversize if the resulting length exceeds limits.MaxFrame, CapOnNonStart if
// a non-empty cap is supplied without the START flag.
func Encode(flags Flags, code, appProtoID uint16, tenantID [16]byte, corrID uint64, cap, payload []byte) ([]byte, error) {
	capLen := len(cap)
	payloadLen := len(payload)

	if capLen > 0 && !flags.Has(FlagSTART) {
		return nil, kerrors.New(kerrors.CapOnNonStart, "cap present without START flag", nil)
	}

	total := limits.HeaderSize + capLen + payloadLen
	if total > limits.MaxFrame {
		return nil, kerrors.New(kerrors.Oversize, "encoded frame exceeds max_frame", map[string]any{
			"len": total, "max": limits.MaxFrame,
		})
	}

	buf := make([]byte, total)
	h := Header{
		Len:        uint32(total),
		Ver:        limits.OAPVersion,
		Flags:      flags,
		Code:       code,
		AppProtoID: appProtoID,
		TenantID:   tenantID,
		CapLen:     uint16(capLen),
		CorrID:     corrID,
	}
	putHeader(buf, h)
	n := limits.HeaderSize
	n += copy(buf[n:], cap)
	copy(buf[n:], payload)
	return buf, nil
}

// EncodeFrame is a convenience wrapper over Encode taking a Frame value.
func EncodeFrame(f Frame) ([]byte, error) {
	return Encode(f.Header.Flags, f.Header.Code, f.Header.AppProtoID, f.Header.TenantID, f.Header.CorrID, f.Cap, f.Payload)
}

// DecodeResult is the tri-state outcome of a single Decoder.Decode call.
type DecodeResult int

const (
	// NeedMore indicates the buffer does not yet hold a complete frame;
	// the caller must append more bytes and retry.
	NeedMore DecodeResult = iota
	// Decoded indicates Frame is populated and the consumed bytes have
	// been removed from the internal buffer.
	Decoded
)

// Decoder incrementally parses OAP/1 frames from an append-only byte stream.
// It owns no network I/O; callers feed bytes via Push and drain via Decode.
type Decoder struct {
	buf          []byte
	maxBuffered  int // soft cap; 0 disables the check
}

// NewDecoder constructs a Decoder. maxBuffered is an optional soft cap on
// buffered bytes awaiting a complete frame; 0 disables the check.
func NewDecoder(maxBuffered int) *Decoder {
	return &Decoder{maxBuffered: maxBuffered}
}

// Push appends newly received bytes to the decoder's internal buffer.
// It returns PayloadOutOfBounds if doing so would exceed the soft cap.
func (d *Decoder) Push(b []byte) error {
	if d.maxBuffered > 0 && len(d.buf)+len(b) > d.maxBuffered {
		return kerrors.New(kerrors.PayloadOutOfBounds, "decoder soft buffer cap exceeded", map[string]any{
			"buffered": len(d.buf) + len(b), "max": d.maxBuffered,
		})
	}
	d.buf = append(d.buf, b...)
	return nil
}

// Buffered reports the number of bytes currently held awaiting a frame.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Decode attempts to parse one frame from the internal buffer. It returns
// (NeedMore, zero Frame, nil) if insufficient bytes are buffered, or a
// *kerrors.Error classified per the OAP/1 decode contract on malformed
// input. On success it removes the consumed bytes from the buffer.
func (d *Decoder) Decode() (DecodeResult, Frame, error) {
	if len(d.buf) < limits.HeaderSize {
		return NeedMore, Frame{}, nil
	}

	h := parseHeader(d.buf)

	if h.Len > limits.MaxFrame {
		return NeedMore, Frame{}, kerrors.New(kerrors.FrameTooLarge, "frame exceeds max_frame", map[string]any{
			"len": h.Len, "max": uint32(limits.MaxFrame),
		})
	}
	if h.Len < limits.HeaderSize {
		return NeedMore, Frame{}, kerrors.New(kerrors.Malformed, "frame length shorter than header", map[string]any{
			"len": h.Len,
		})
	}

	if len(d.buf) < int(h.Len) {
		return NeedMore, Frame{}, nil
	}

	if !h.Flags.Valid() {
		return NeedMore, Frame{}, kerrors.New(kerrors.BadFlags, "unknown flag bits set", map[string]any{
			"raw": uint16(h.Flags),
		})
	}
	if h.CapLen > 0 && !h.Flags.Has(FlagSTART) {
		return NeedMore, Frame{}, kerrors.New(kerrors.CapOnNonStart, "cap present without START flag", nil)
	}
	bodyLen := h.Len - limits.HeaderSize
	if uint32(h.CapLen) > bodyLen {
		return NeedMore, Frame{}, kerrors.New(kerrors.PayloadOutOfBounds, "cap_len exceeds frame body", map[string]any{
			"cap_len": h.CapLen, "body_len": bodyLen,
		})
	}

	frameBytes := d.buf[:h.Len]
	cap := frameBytes[limits.HeaderSize : limits.HeaderSize+int(h.CapLen)]
	payload := frameBytes[limits.HeaderSize+int(h.CapLen):]

	out := Frame{
		Header:  h,
		Cap:     append([]byte(nil), cap...),
		Payload: append([]byte(nil), payload...),
	}
	d.buf = append([]byte(nil), d.buf[h.Len:]...)
	return Decoded, out, nil
}

// DecodeAll drains every complete frame currently buffered, stopping at the
// first NeedMore or error.
func (d *Decoder) DecodeAll() ([]Frame, error) {
	var out []Frame
	for {
		res, f, err := d.Decode()
		if err != nil {
			return out, err
		}
		if res == NeedMore {
			return out, nil
		}
		out = append(out, f)
	}
}
