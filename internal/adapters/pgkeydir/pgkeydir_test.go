package pgkeydir

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOpenDB returns a live *sql.DB so New can store a real handle without
// dialing Postgres; New never issues a query, so the driver underneath
// does not matter for these construction-only tests.
func fakeOpenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestValidateTableNameAcceptsLowerSnakeCase(t *testing.T) {
	require.NoError(t, validateTableName("kernel_capability_keys"))
	require.NoError(t, validateTableName("keys2"))
}

func TestValidateTableNameRejectsEmpty(t *testing.T) {
	err := validateTableName("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateTableNameRejectsUnsafeChars(t *testing.T) {
	for _, name := range []string{"keys;drop table", "Keys", "keys table", "keys-v2"} {
		err := validateTableName(name)
		require.Errorf(t, err, "expected rejection for %q", name)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestNewRejectsNilDB(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewDefaultsTableName(t *testing.T) {
	// A handle that was never used is fine here: New only validates and
	// stores it, it never dials until a method executes a query.
	d, err := New(fakeOpenDB(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, "kernel_capability_keys", d.table)
}

func TestNewHonorsCustomTableName(t *testing.T) {
	d, err := New(fakeOpenDB(t), Options{TableName: "node_keys"})
	require.NoError(t, err)
	assert.Equal(t, "node_keys", d.table)
}
