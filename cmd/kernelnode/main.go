// Command kernelnode wires the kernel substrate into a runnable process:
// layered config, structured logging, the bounded event bus, a
// crash-only supervisor, the readiness gate, an operator HTTP surface,
// a WebSocket event bridge, and a tamper-evident audit ledger. It is a
// host, not a kernel package: every dependency here flows inward
// through pkg/hostport, never the reverse.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rustyonions/kernel/internal/adapters/adminhttp"
	"github.com/rustyonions/kernel/internal/adapters/pgkeydir"
	"github.com/rustyonions/kernel/internal/adapters/promsink"
	"github.com/rustyonions/kernel/internal/adapters/sqliteaudit"
	"github.com/rustyonions/kernel/internal/adapters/wsbus"
	"github.com/rustyonions/kernel/pkg/bus"
	"github.com/rustyonions/kernel/pkg/config"
	"github.com/rustyonions/kernel/pkg/health"
	"github.com/rustyonions/kernel/pkg/passport"
	"github.com/rustyonions/kernel/pkg/ready"
	"github.com/rustyonions/kernel/pkg/supervisor"
	"github.com/rustyonions/kernel/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("kernelnode: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node := getenv("KERNELNODE_ID", "node-local")
	env := getenv("KERNELNODE_ENV", "local")
	configRoot := getenv("KERNELNODE_CONFIG_ROOT", "./config")

	logger := telemetry.NewDefaultLogger(os.Stdout, "kernelnode")

	loader, err := config.NewLoader(configRoot, config.Options{
		Service:            "kernelnode",
		Env:                env,
		Node:               node,
		EnableEnvOverrides: true,
	})
	var bundle *config.Bundle
	if err != nil {
		logger.Warn(ctx, "config_loader_construct_failed", map[string]any{"error": err.Error()})
		bundle = &config.Bundle{Merged: map[string]any{}}
	} else if bundle, err = loader.Load(ctx); err != nil {
		logger.Warn(ctx, "config_load_failed", map[string]any{"error": err.Error()})
		bundle = &config.Bundle{Merged: map[string]any{}}
	}
	store := config.NewStore(bundle)
	snap := store.Load()

	gate := ready.New("oap")
	gate.SetConfigLoaded(true)

	metricsReg := prometheus.NewRegistry()
	sink := promsink.New(metricsReg)

	eventBus := bus.New(orDefault(snap.BusCapacity, 256), sink)

	ledgerPath := getenv("KERNELNODE_AUDIT_DB", "./kernelnode-audit.db")
	ledger, err := sqliteaudit.Open(ledgerPath)
	if err != nil {
		return fmt.Errorf("sqliteaudit: %w", err)
	}
	defer ledger.Close()

	keyDir, cleanupKeys := buildKeyDirectory(ctx, logger)
	if cleanupKeys != nil {
		defer cleanupKeys()
	}

	hub := wsbus.NewHub(64, keyDir)

	sup := supervisor.New(eventBus, orDuration(snap.SupervisorGrace, 5*time.Second))

	adminAddr := getenv("KERNELNODE_ADMIN_ADDR", ":8090")
	adminSrv := adminhttp.New(adminhttp.Options{
		Addr: adminAddr,
		Gate: gate,
		HealthSource: func(now time.Time) (health.Snapshot, error) {
			return health.New("kernelnode", env, []health.ComponentStatus{
				{Name: "bus", Status: health.StatusOK, CheckedAt: now},
				{Name: "audit_ledger", Status: health.StatusOK, CheckedAt: now},
			}, now)
		},
		MetricsHandler: sink.Handler(),
		Logger:         logger,
	})

	wsAddr := getenv("KERNELNODE_WS_ADDR", ":8091")
	wsSrv := &http.Server{Addr: wsAddr, Handler: hub, ReadHeaderTimeout: 10 * time.Second}

	specs := []supervisor.ChildSpec{
		{
			Name:        "admin-http",
			Run:         func(ctx context.Context) error { return serveUntilDone(ctx, adminSrv.ListenAndServe, adminSrv.Shutdown) },
			BackoffBase: 200 * time.Millisecond,
			BackoffCap:  10 * time.Second,
		},
		{
			Name: "ws-bridge",
			Run: func(ctx context.Context) error {
				return serveUntilDone(ctx, func() error {
					if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						return err
					}
					return nil
				}, wsSrv.Shutdown)
			},
			BackoffBase: 200 * time.Millisecond,
			BackoffCap:  10 * time.Second,
		},
		{
			Name: "audit-pump",
			Run: func(ctx context.Context) error {
				recv := eventBus.Subscribe()
				defer recv.Close()
				for {
					ev, err := recv.Recv(ctx)
					if err != nil {
						return nil
					}
					if err := ledger.Accept(ctx, ev); err != nil {
						logger.Error(ctx, "audit_accept_failed", map[string]any{"error": err.Error()})
					}
					_ = hub.Accept(ctx, ev)
				}
			},
			BackoffBase: 100 * time.Millisecond,
			BackoffCap:  5 * time.Second,
		},
	}

	gate.SetListenersBound(true)
	gate.SetDepsOK(true)
	gate.SetServiceHealth("oap", true)

	logger.Info(ctx, "kernelnode_starting", map[string]any{
		"node": node, "env": env,
		"admin_addr": adminAddr,
		"ws_addr":    wsAddr,
	})

	runErr := sup.Run(ctx, specs)
	eventBus.Publish(bus.ShutdownEvent())
	eventBus.Close()
	logger.Info(context.Background(), "kernelnode_stopped", map[string]any{"error": errString(runErr)})
	return runErr
}

// serveUntilDone runs serve in the current goroutine and calls shutdown
// once ctx is cancelled, matching pkg/supervisor.ChildFunc's contract:
// return promptly once ctx is done.
func serveUntilDone(ctx context.Context, serve func() error, shutdown func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- serve() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// buildKeyDirectory wires internal/adapters/pgkeydir when
// KERNELNODE_KEYDIR_DSN is set, otherwise falls back to an empty
// in-memory passport.MemDirectory; a fresh node with no registered
// capabilities simply denies every Verify call as UnknownKid.
func buildKeyDirectory(ctx context.Context, logger *telemetry.Logger) (passport.KeyDirectory, func()) {
	dsn := getenv("KERNELNODE_KEYDIR_DSN", "")
	if dsn == "" {
		return passport.NewMemDirectory(), nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error(ctx, "pgkeydir_open_failed", map[string]any{"error": err.Error()})
		return passport.NewMemDirectory(), nil
	}
	dir, err := pgkeydir.New(db, pgkeydir.Options{})
	if err != nil {
		logger.Error(ctx, "pgkeydir_construct_failed", map[string]any{"error": err.Error()})
		db.Close()
		return passport.NewMemDirectory(), nil
	}
	if err := dir.EnsureSchema(ctx); err != nil {
		logger.Error(ctx, "pgkeydir_migrate_failed", map[string]any{"error": err.Error()})
	}
	return dir, func() { db.Close() }
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDuration(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
