package uuidcorr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequestIDIsUniqueAndWellFormed(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestNewCorrIDIsNonZeroAndVariesAcrossCalls(t *testing.T) {
	a := NewCorrID()
	b := NewCorrID()
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)
}
