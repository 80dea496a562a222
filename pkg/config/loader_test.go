package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadLayersBaseEnvNode(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "kernelnode.json"), `{"bus":{"capacity":100},"service":"base"}`)
	writeFile(t, filepath.Join(root, "env", "prod", "kernelnode.json"), `{"bus":{"capacity":500}}`)
	writeFile(t, filepath.Join(root, "nodes", "node-1", "kernelnode.yaml"), "bus:\n  capacity: 900\n")

	l, err := NewLoader(root, Options{Service: "kernelnode", Env: "prod", Node: "node-1"})
	require.NoError(t, err)
	b, err := l.Load(context.Background())
	require.NoError(t, err)

	bus, ok := b.Merged["bus"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 900, bus["capacity"])
	assert.Equal(t, "base", b.Merged["service"])
}

func TestLoadSurfacesMergeWarningOnTypeConflict(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "kernelnode.json"), `{"bus":{"capacity":100}}`)
	writeFile(t, filepath.Join(root, "env", "prod", "kernelnode.json"), `{"bus":"disabled"}`)

	l, err := NewLoader(root, Options{Service: "kernelnode", Env: "prod"})
	require.NoError(t, err)
	b, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "disabled", b.Merged["bus"])
	require.NotEmpty(t, b.MergeWarnings)
	assert.Equal(t, "type.replace", b.MergeWarnings[0].Code)
}

func TestLoadRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	l, err := NewLoader(root, Options{Service: "svc", ExplicitPath: "../../etc/passwd"})
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestLoadRejectsOversizeFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "svc.json"), `{"a":1}`)
	l, err := NewLoader(root, Options{Service: "svc", MaxFileBytes: 2})
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestEnvOverridesApplyWithHighestPrecedence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "svc.json"), `{"bus":{"capacity":1}}`)
	t.Setenv("SVC_BUS__CAPACITY", "777")

	l, err := NewLoader(root, Options{Service: "svc", EnableEnvOverrides: true})
	require.NoError(t, err)
	b, err := l.Load(context.Background())
	require.NoError(t, err)

	bus := b.Merged["bus"].(map[string]any)
	assert.Equal(t, json.Number("777"), bus["capacity"])
}

func TestCanonicalJSONIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "svc.json"), `{"z":1,"a":2}`)
	l, err := NewLoader(root, Options{Service: "svc"})
	require.NoError(t, err)
	b, err := l.Load(context.Background())
	require.NoError(t, err)

	out1, err := b.CanonicalJSON()
	require.NoError(t, err)
	out2, err := b.CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
	assert.Equal(t, `{"a":2,"z":1}`, string(out1))
}

func TestYAMLDecodingSupportsNestedMaps(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "svc.yaml"), "db:\n  host: localhost\n  port: 5432\n")
	l, err := NewLoader(root, Options{Service: "svc"})
	require.NoError(t, err)
	b, err := l.Load(context.Background())
	require.NoError(t, err)

	db := b.Merged["db"].(map[string]any)
	assert.Equal(t, "localhost", db["host"])
}
