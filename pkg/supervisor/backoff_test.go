package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffStaysWithinBounds(t *testing.T) {
	b := NewBackoff("child-a", 100*time.Millisecond, 2*time.Second)
	for i := 0; i < 50; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond-1)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestBackoffSecondConsecutiveCrashJumpsToCap(t *testing.T) {
	b := NewBackoff("child-b", 100*time.Millisecond, 5*time.Second)
	b.Next() // first crash
	second := b.Next()
	assert.Equal(t, 5*time.Second, second)
}

func TestBackoffResetOnSuccessClearsStreak(t *testing.T) {
	b := NewBackoff("child-c", 100*time.Millisecond, 5*time.Second)
	b.Next()
	b.Next() // now at cap, streak=2
	b.ResetOnSuccess()
	d := b.Next()
	assert.Less(t, d, 5*time.Second)
}

func TestUniformBetweenDeterministic(t *testing.T) {
	a := uniformBetween(time.Millisecond, time.Second, "x", "1")
	b := uniformBetween(time.Millisecond, time.Second, "x", "1")
	assert.Equal(t, a, b)

	c := uniformBetween(time.Millisecond, time.Second, "x", "2")
	assert.NotEqual(t, a, c, "different seed should very likely differ")
}
