// Package contentid implements the ContentId newtype: a strict
// "b3:<64 lowercase hex>" identifier. The core never computes hashes
// itself; hashing is injected via a HashFn port.
package contentid

import (
	"errors"
	"fmt"
)

const (
	prefix    = "b3:"
	hexDigits = 64
)

// ParseError is a strict classification of why a string is not a valid
// ContentId.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("contentid: %s", e.Reason) }

var (
	ErrMissingPrefix = &ParseError{Reason: "missing_prefix"}
	ErrBadLen        = &ParseError{Reason: "bad_len"}
	ErrBadHex        = &ParseError{Reason: "bad_hex"}
)

// ContentId is a validated "b3:<64 lowercase hex>" identifier.
type ContentId struct {
	s string
}

// Parse validates s and returns a ContentId, or one of ErrMissingPrefix,
// ErrBadLen, ErrBadHex.
func Parse(s string) (ContentId, error) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return ContentId{}, ErrMissingPrefix
	}
	hexPart := s[len(prefix):]
	if len(hexPart) != hexDigits {
		return ContentId{}, ErrBadLen
	}
	if !isLowerHex64(hexPart) {
		return ContentId{}, ErrBadHex
	}
	return ContentId{s: s}, nil
}

func isLowerHex64(s string) bool {
	if len(s) != hexDigits {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

// String returns the canonical "b3:<hex>" form.
func (c ContentId) String() string { return c.s }

// IsZero reports whether c is the zero value (never successfully parsed).
func (c ContentId) IsZero() bool { return c.s == "" }

// Equal reports value equality.
func (c ContentId) Equal(other ContentId) bool { return c.s == other.s }

// HashFn computes a ContentId over bytes. The default implementation is
// BLAKE3-256, provided by NewBlake3HashFn in this package.
type HashFn func(data []byte) ContentId

// IsParseError reports whether err is one of this package's sentinel
// parse errors, for errors.Is-style callers.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
