package ryker

import (
	"context"
	"testing"
	"time"

	"github.com/rustyonions/kernel/pkg/kerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrySendRecvFIFO(t *testing.T) {
	m := New(Config{Actor: "a", Capacity: 4})
	require.NoError(t, m.TrySend("one"))
	require.NoError(t, m.TrySend("two"))

	ctx := context.Background()
	v1, err := m.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", v1)

	v2, err := m.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", v2)
}

func TestTrySendBusyWhenFull(t *testing.T) {
	m := New(Config{Actor: "a", Capacity: 1})
	require.NoError(t, m.TrySend("one"))
	err := m.TrySend("two")
	require.Error(t, err)
	k, ok := kerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.Busy, k)
}

type sizedMsg struct{ n int }

func (s sizedMsg) SizeBytes() int { return s.n }

func TestTrySendTooLarge(t *testing.T) {
	m := New(Config{Actor: "a", Capacity: 4, MaxMsgBytes: 10})
	err := m.TrySend(sizedMsg{n: 11})
	require.Error(t, err)
	k, ok := kerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.TooLarge, k)
}

func TestTrySendClosedAfterClose(t *testing.T) {
	m := New(Config{Actor: "a", Capacity: 4})
	m.Close()
	err := m.TrySend("x")
	require.Error(t, err)
	k, ok := kerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.Closed, k)
}

func TestSendWithDeadlineClosedAfterClose(t *testing.T) {
	m := New(Config{Actor: "a", Capacity: 4})
	m.Close()
	err := m.SendWithDeadline(context.Background(), "x", 50*time.Millisecond)
	require.Error(t, err)
	k, ok := kerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.Closed, k)
}

func TestSendWithDeadlineTimesOutWhenFull(t *testing.T) {
	m := New(Config{Actor: "a", Capacity: 1})
	require.NoError(t, m.TrySend("one"))

	ctx := context.Background()
	start := time.Now()
	err := m.SendWithDeadline(ctx, "two", 30*time.Millisecond)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	k, ok := kerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.Timeout, k)
}

func TestSendWithDeadlineSucceedsWhenRoomFreesUp(t *testing.T) {
	m := New(Config{Actor: "a", Capacity: 1})
	require.NoError(t, m.TrySend("one"))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = m.Recv(context.Background())
	}()

	err := m.SendWithDeadline(context.Background(), "two", 200*time.Millisecond)
	assert.NoError(t, err)
}

func TestRecvReturnsClosedOnceDrained(t *testing.T) {
	m := New(Config{Actor: "a", Capacity: 2})
	require.NoError(t, m.TrySend("one"))
	m.Close()

	ctx := context.Background()
	v, err := m.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", v)

	_, err = m.Recv(ctx)
	require.Error(t, err)
	k, ok := kerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.Closed, k)
}

type countObserver struct {
	enqueued, dropped, timedOut int
}

func (c *countObserver) OnEnqueue(string, int)           { c.enqueued++ }
func (c *countObserver) OnDrop(string, DropReason)       { c.dropped++ }
func (c *countObserver) OnTimeout(string)                { c.timedOut++ }
func (c *countObserver) OnRestart(string)                {}

func TestObserverHooksFireOnDropAndEnqueue(t *testing.T) {
	obs := &countObserver{}
	m := New(Config{Actor: "a", Capacity: 1, Observer: obs})
	require.NoError(t, m.TrySend("one"))
	_ = m.TrySend("two")

	assert.Equal(t, 1, obs.enqueued)
	assert.Equal(t, 1, obs.dropped)
}
