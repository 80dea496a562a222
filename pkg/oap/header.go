// Package oap implements the OAP/1 wire codec: a fixed 38-byte header
// followed by an optional capability blob and an optional payload, with
// strict bounds and incremental decoding suitable for streamed transports.
package oap

import (
	"encoding/binary"

	"github.com/rustyonions/kernel/pkg/limits"
)

// Header is the fixed OAP/1 frame header (38 bytes on the wire, big-endian).
type Header struct {
	Len         uint32
	Ver         uint16
	Flags       Flags
	Code        uint16
	AppProtoID  uint16
	TenantID    [16]byte
	CapLen      uint16
	CorrID      uint64
}

// putHeader writes h into buf[:limits.HeaderSize] in wire order.
func putHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.Len)
	binary.BigEndian.PutUint16(buf[4:6], h.Ver)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Flags))
	binary.BigEndian.PutUint16(buf[8:10], h.Code)
	binary.BigEndian.PutUint16(buf[10:12], h.AppProtoID)
	copy(buf[12:28], h.TenantID[:])
	binary.BigEndian.PutUint16(buf[28:30], h.CapLen)
	binary.BigEndian.PutUint64(buf[30:38], h.CorrID)
}

// parseHeader reads a Header from buf, which must be at least HeaderSize
// bytes. It performs no bounds/flag validation beyond field extraction.
func parseHeader(buf []byte) Header {
	var h Header
	h.Len = binary.BigEndian.Uint32(buf[0:4])
	h.Ver = binary.BigEndian.Uint16(buf[4:6])
	h.Flags = Flags(binary.BigEndian.Uint16(buf[6:8]))
	h.Code = binary.BigEndian.Uint16(buf[8:10])
	h.AppProtoID = binary.BigEndian.Uint16(buf[10:12])
	copy(h.TenantID[:], buf[12:28])
	h.CapLen = binary.BigEndian.Uint16(buf[28:30])
	h.CorrID = binary.BigEndian.Uint64(buf[30:38])
	return h
}

const wireSize = limits.HeaderSize
