package sqliteaudit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rustyonions/kernel/pkg/bus"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAcceptAppendsAndVerifies(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Accept(ctx, bus.HealthEvent("oap", true)))
	require.NoError(t, l.Accept(ctx, bus.ServiceCrashedEvent("oap", "panic")))
	require.NoError(t, l.Accept(ctx, bus.RestartEvent("oap", "backoff elapsed")))

	require.NoError(t, l.Verify(ctx))
}

func TestVerifyDetectsTamperedRow(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Accept(ctx, bus.HealthEvent("oap", true)))
	require.NoError(t, l.Accept(ctx, bus.HealthEvent("oap", false)))

	_, err := l.db.ExecContext(ctx, `UPDATE audit_events SET payload_json = ? WHERE seq = 1`, `{"kind":"tampered"}`)
	require.NoError(t, err)

	err = l.Verify(ctx)
	require.Error(t, err)
}
