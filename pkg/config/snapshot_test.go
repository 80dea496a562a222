package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreLoadReflectsInitialBundle(t *testing.T) {
	b := &Bundle{Merged: map[string]any{"bus": map[string]any{"capacity": 512}}}
	s := NewStore(b)
	n := s.Load()
	assert.Equal(t, 512, n.BusCapacity)
}

func TestStoreReloadWithoutRestartKeepsColdOnlyField(t *testing.T) {
	b1 := &Bundle{Merged: map[string]any{"mailbox": map[string]any{"capacity": 64}}}
	s := NewStore(b1)

	b2 := &Bundle{Merged: map[string]any{"mailbox": map[string]any{"capacity": 999}}}
	n := s.Reload(b2, false)
	assert.Equal(t, 64, n.MailboxCapacity)
}

func TestStoreReloadWithRestartAppliesColdOnlyField(t *testing.T) {
	b1 := &Bundle{Merged: map[string]any{"mailbox": map[string]any{"capacity": 64}}}
	s := NewStore(b1)

	b2 := &Bundle{Merged: map[string]any{"mailbox": map[string]any{"capacity": 999}}}
	n := s.Reload(b2, true)
	assert.Equal(t, 999, n.MailboxCapacity)
}
