// Package pgkeydir implements a PostgreSQL-backed passport.KeyDirectory.
// The caller registers the postgres driver (blank-imported lib/pq) and
// supplies an already-open *sql.DB; this package never imports a driver
// itself so it stays testable against any database/sql-compatible store.
package pgkeydir

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("pgkeydir: invalid input")
	ErrDB           = errors.New("pgkeydir: db error")
)

// Options configures a Directory.
type Options struct {
	// TableName overrides the default "kernel_capability_keys" table.
	TableName string
}

// Directory is a PostgreSQL-backed passport.KeyDirectory: Lookup is the
// only hot-path method, backed by a single indexed SELECT.
type Directory struct {
	db    *sql.DB
	table string
}

// New wraps an already-open *sql.DB as a Directory. EnsureSchema must be
// called once (typically at startup) before Lookup is used.
func New(db *sql.DB, opts Options) (*Directory, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db is nil", ErrInvalidInput)
	}
	table := strings.TrimSpace(opts.TableName)
	if table == "" {
		table = "kernel_capability_keys"
	}
	if err := validateTableName(table); err != nil {
		return nil, err
	}
	return &Directory{db: db, table: table}, nil
}

// EnsureSchema creates the backing table if it does not already exist.
func (d *Directory) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		kid TEXT PRIMARY KEY,
		key_hex TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ
	)`, d.table)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrDB, err)
	}
	return nil
}

// Put inserts or replaces the key material for kid.
func (d *Directory) Put(ctx context.Context, kid string, key []byte, now time.Time) error {
	kid = strings.TrimSpace(kid)
	if kid == "" || len(key) == 0 {
		return fmt.Errorf("%w: kid and key required", ErrInvalidInput)
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (kid, key_hex, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (kid) DO UPDATE SET key_hex = EXCLUDED.key_hex, revoked_at = NULL`, d.table)
	if _, err := d.db.ExecContext(ctx, stmt, kid, hex.EncodeToString(key), now.UTC()); err != nil {
		return fmt.Errorf("%w: put: %v", ErrDB, err)
	}
	return nil
}

// Revoke marks kid as no longer usable. Lookup on a revoked kid reports
// (nil, false), matching an unknown-kid outcome in pkg/passport.
func (d *Directory) Revoke(ctx context.Context, kid string, now time.Time) error {
	stmt := fmt.Sprintf(`UPDATE %s SET revoked_at = $2 WHERE kid = $1`, d.table)
	if _, err := d.db.ExecContext(ctx, stmt, kid, now.UTC()); err != nil {
		return fmt.Errorf("%w: revoke: %v", ErrDB, err)
	}
	return nil
}

// Lookup implements passport.KeyDirectory. It never returns an error:
// any failure (not found, revoked, db error) collapses to ok=false so
// the capability verifier treats it uniformly as UnknownKid.
func (d *Directory) Lookup(kid string) ([]byte, bool) {
	stmt := fmt.Sprintf(`SELECT key_hex FROM %s WHERE kid = $1 AND revoked_at IS NULL`, d.table)
	var keyHex string
	err := d.db.QueryRowContext(context.Background(), stmt, kid).Scan(&keyHex)
	if err != nil {
		return nil, false
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, false
	}
	return key, true
}

func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty table name", ErrInvalidInput)
	}
	for _, r := range name {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isDigit && r != '_' {
			return fmt.Errorf("%w: table name %q has invalid char %q", ErrInvalidInput, name, r)
		}
	}
	return nil
}
