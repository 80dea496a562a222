package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildRestartsAfterCrash(t *testing.T) {
	var runs int32
	ctx, cancel := context.WithCancel(context.Background())

	s := New(nil, time.Second)
	spec := ChildSpec{
		Name:        "flaky",
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&runs, 1)
			if n < 3 {
				return errors.New("boom")
			}
			cancel()
			<-ctx.Done()
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx, []ChildSpec{spec})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not converge")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(3))
}

func TestPanicBecomesCrashNotPropagated(t *testing.T) {
	var runs int32
	ctx, cancel := context.WithCancel(context.Background())
	s := New(nil, time.Second)
	spec := ChildSpec{
		Name:        "panicky",
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&runs, 1)
			if n == 1 {
				panic("kaboom")
			}
			cancel()
			<-ctx.Done()
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		require.NotPanics(t, func() {
			_ = s.Run(ctx, []ChildSpec{spec})
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not converge")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestShutdownReturnsEmptyOnCleanStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(nil, 2*time.Second)

	spec := ChildSpec{
		Name: "cooperative",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	}

	go func() { _ = s.Run(ctx, []ChildSpec{spec}) }()
	time.Sleep(20 * time.Millisecond)

	overrun := s.Shutdown(context.Background())
	assert.Empty(t, overrun)
}
