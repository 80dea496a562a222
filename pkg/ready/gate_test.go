package ready

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateRequiresAllFlags(t *testing.T) {
	g := New("db")
	assert.False(t, g.Ready())

	g.SetConfigLoaded(true)
	g.SetListenersBound(true)
	g.SetDepsOK(true)
	assert.False(t, g.Ready(), "required service db not yet healthy")

	g.SetServiceHealth("db", true)
	assert.True(t, g.Ready())
}

func TestGateNeverAutoHeals(t *testing.T) {
	g := New()
	g.SetConfigLoaded(true)
	g.SetListenersBound(true)
	g.SetDepsOK(true)
	assert.True(t, g.Ready())

	g.SetDepsOK(false)
	assert.False(t, g.Ready())
	// Ready() being called again must not flip depsOK back.
	assert.False(t, g.Ready())

	g.SetDepsOK(true)
	assert.True(t, g.Ready())
}

func TestSnapshotIsConsistentCopy(t *testing.T) {
	g := New("svc-a")
	g.SetConfigLoaded(true)
	g.SetServiceHealth("svc-a", true)

	snap := g.Snapshot()
	assert.True(t, snap.ConfigLoaded)
	assert.True(t, snap.ServiceHealth["svc-a"])

	g.SetServiceHealth("svc-a", false)
	assert.True(t, snap.ServiceHealth["svc-a"], "snapshot must not mutate after capture")
}
