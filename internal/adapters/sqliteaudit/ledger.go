// Package sqliteaudit implements a hash-chained, tamper-evident audit
// ledger for bus events, backed by SQLite. It is a hostport.BusEventSink:
// wired to a bus.Bus subscription by cmd/kernelnode, not invoked by the
// core directly.
package sqliteaudit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyonions/kernel/pkg/bus"
)

const genesisPrevHash = "GENESIS"

var (
	ErrChainMismatch = errors.New("sqliteaudit: chain mismatch")
)

// Link is one persisted, hash-chained audit row.
type Link struct {
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"`
	Service  string `json:"service"`
	TS       string `json:"ts"`
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// Ledger persists bus.Event values as a hash chain. Accept is safe for
// concurrent use; the chain is serialized under mu so PrevHash always
// reflects the most recently committed row.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (if needed) the audit_events table at path. The current
// chain head is read from the table on each append, not at open time.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqliteaudit: open: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	service TEXT NOT NULL,
	ts TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	hash TEXT NOT NULL,
	payload_json TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqliteaudit: migrate: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// Accept implements hostport.BusEventSink. It canonicalizes ev, extends
// the hash chain from the current on-disk head, and commits atomically.
func (l *Ledger) Accept(ctx context.Context, ev bus.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := l.headLocked(ctx)
	if err != nil {
		return err
	}

	payload, ts, err := canonicalEventBytes(ev)
	if err != nil {
		return err
	}
	hash := hashStep(prev, payload)

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO audit_events (kind, service, ts, prev_hash, hash, payload_json) VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Kind), ev.Service, ts, prev, hash, string(payload),
	)
	if err != nil {
		return fmt.Errorf("sqliteaudit: insert: %w", err)
	}
	return nil
}

func (l *Ledger) headLocked(ctx context.Context) (string, error) {
	row := l.db.QueryRowContext(ctx, `SELECT hash FROM audit_events ORDER BY seq DESC LIMIT 1`)
	var hash string
	switch err := row.Scan(&hash); {
	case errors.Is(err, sql.ErrNoRows):
		return genesisPrevHash, nil
	case err != nil:
		return "", fmt.Errorf("sqliteaudit: head: %w", err)
	default:
		return hash, nil
	}
}

// Verify recomputes the chain from the persisted rows and reports the
// first mismatch, if any.
func (l *Ledger) Verify(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx, `SELECT seq, kind, service, ts, prev_hash, hash, payload_json FROM audit_events ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("sqliteaudit: query: %w", err)
	}
	defer rows.Close()

	prev := genesisPrevHash
	for rows.Next() {
		var l Link
		var payload string
		if err := rows.Scan(&l.Seq, &l.Kind, &l.Service, &l.TS, &l.PrevHash, &l.Hash, &payload); err != nil {
			return fmt.Errorf("sqliteaudit: scan: %w", err)
		}
		if l.PrevHash != prev {
			return fmt.Errorf("%w: seq %d expected prev_hash %q, got %q", ErrChainMismatch, l.Seq, prev, l.PrevHash)
		}
		want := hashStep(prev, []byte(payload))
		if want != l.Hash {
			return fmt.Errorf("%w: seq %d hash mismatch", ErrChainMismatch, l.Seq)
		}
		prev = l.Hash
	}
	return rows.Err()
}

func hashStep(prev string, canonicalJSON []byte) string {
	prev = strings.TrimSpace(prev)
	if prev == "" {
		prev = genesisPrevHash
	}
	h := sha256.New()
	_, _ = h.Write([]byte(prev))
	_, _ = h.Write([]byte("\n"))
	_, _ = h.Write(canonicalJSON)
	return hex.EncodeToString(h.Sum(nil))
}

type canonicalEvent struct {
	Kind    string `json:"kind"`
	Service string `json:"service"`
	Healthy bool   `json:"healthy"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func canonicalEventBytes(ev bus.Event) ([]byte, string, error) {
	ce := canonicalEvent{
		Kind:    string(ev.Kind),
		Service: normCollapse(ev.Service),
		Healthy: ev.Healthy,
		Version: normCollapse(ev.Version),
		Reason:  normCollapse(ev.Reason),
	}
	b, err := json.Marshal(ce)
	if err != nil {
		return nil, "", fmt.Errorf("sqliteaudit: marshal: %w", err)
	}
	return b, isoNow(), nil
}

// isoNow is a variable so tests can replace it; by default it yields
// wall-clock time via the implementation in clock.go.
var isoNow = defaultISONow

func normCollapse(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}
