package metrics

import (
	"testing"

	"github.com/rustyonions/kernel/pkg/kerrors"
	"github.com/stretchr/testify/assert"
)

func TestFromDecodeErrorMapsFrameTooLargeToOversize(t *testing.T) {
	err := kerrors.New(kerrors.FrameTooLarge, "", nil)
	assert.Equal(t, Oversize, FromDecodeError(err))
}

func TestFromDecodeErrorMapsStructuralErrorsToDecodeError(t *testing.T) {
	for _, k := range []kerrors.Kind{kerrors.BadFlags, kerrors.CapOnNonStart, kerrors.PayloadOutOfBounds, kerrors.Malformed} {
		assert.Equal(t, DecodeError, FromDecodeError(kerrors.New(k, "", nil)))
	}
}

func TestLabelsForOversize(t *testing.T) {
	l := LabelsFor(Oversize)
	assert.Equal(t, Labels{"oap", "oversize", "413"}, l)
}
