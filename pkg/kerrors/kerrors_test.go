package kerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownAndList(t *testing.T) {
	all := List()
	require.Len(t, all, 17)
	for _, k := range all {
		assert.True(t, Known(k))
	}
	assert.False(t, Known(Kind("not_a_real_kind")))
}

func TestErrorMessageNeverRequired(t *testing.T) {
	e := New(Busy, "", nil)
	assert.Equal(t, "busy", e.Error())

	e2 := New(Timeout, "deadline exceeded waiting on recv", nil)
	assert.Equal(t, "timeout: deadline exceeded waiting on recv", e2.Error())
}

func TestIsMatchesByKind(t *testing.T) {
	err := New(MacMismatch, "signature check failed", nil)
	assert.True(t, errors.Is(err, New(MacMismatch, "", nil)))
	assert.False(t, errors.Is(err, New(Expired, "", nil)))
}

func TestWrapPreservesUnwrap(t *testing.T) {
	cause := errors.New("underlying io failure")
	err := New(Internal, "write failed", nil).Wrap(cause)
	assert.Same(t, cause, errors.Unwrap(err))
	assert.Equal(t, "internal: write failed", err.Error())
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf(New(FrameTooLarge, "", map[string]any{"len": 99}))
	require.True(t, ok)
	assert.Equal(t, FrameTooLarge, k)

	k, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, Internal, k)
}

func TestSentinelsCarryStableReason(t *testing.T) {
	assert.Equal(t, "busy", ErrBusy.Reason)
	assert.Equal(t, "too_large", ErrTooLarge.Reason)
	assert.Equal(t, "closed", ErrClosed.Reason)
	assert.Equal(t, "timeout", ErrTimeout.Reason)
}
