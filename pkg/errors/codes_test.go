package errors

import (
	"testing"

	"github.com/rustyonions/kernel/pkg/kerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListReturnsAllCodesSorted(t *testing.T) {
	codes := List()
	require.NotEmpty(t, codes)
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1], codes[i])
	}
}

func TestCodeForKindCoversEveryKnownKind(t *testing.T) {
	for _, k := range kerrors.List() {
		c := CodeForKind(k)
		assert.True(t, Known(c), "kind %v mapped to unregistered code %v", k, c)
	}
}

func TestCodeForKindUnmappedFallsBackToInternal(t *testing.T) {
	assert.Equal(t, KernelInternal, CodeForKind(kerrors.Kind(9999)))
}

func TestExportJSONIsStable(t *testing.T) {
	a := ExportJSON()
	b := ExportJSON()
	assert.Equal(t, a, b)
}
