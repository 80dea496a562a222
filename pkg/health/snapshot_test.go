package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallIsWorstOfComponents(t *testing.T) {
	now := time.Now()
	s, err := New("kernelnode", "prod", []ComponentStatus{
		{Name: "bus", Status: StatusOK, CheckedAt: now},
		{Name: "db", Status: StatusDegraded, CheckedAt: now},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, s.Overall)
}

func TestDuplicateComponentsDeduped(t *testing.T) {
	now := time.Now()
	s, err := New("kernelnode", "prod", []ComponentStatus{
		{Name: "bus", Status: StatusOK, CheckedAt: now},
		{Name: "Bus", Status: StatusFatal, CheckedAt: now},
	}, now)
	require.NoError(t, err)
	require.Len(t, s.Components, 1)
	assert.NotEmpty(t, s.Warnings)
}

func TestHashStableAcrossEqualInput(t *testing.T) {
	now := time.Now()
	s1, err := New("kernelnode", "prod", []ComponentStatus{{Name: "bus", Status: StatusOK, CheckedAt: now}}, now)
	require.NoError(t, err)
	s2, err := New("kernelnode", "prod", []ComponentStatus{{Name: "bus", Status: StatusOK, CheckedAt: now.Add(time.Second)}}, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, s1.Hash, s2.Hash, "hash excludes timing, only health state")
}

func TestEmptyComponentsYieldsUnknownOverall(t *testing.T) {
	s, err := New("kernelnode", "prod", nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, s.Overall)
}
