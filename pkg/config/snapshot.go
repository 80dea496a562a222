package config

import (
	"encoding/json"
	"sync/atomic"
)

// Node is the strongly-typed view of a Bundle.Merged tree that kernel
// components read. Fields here are deliberately a mix of hot-reloadable
// and cold-only values; on a reload without a restart hint, Store keeps
// the previous value of each cold-only field, so a capacity change does
// not take effect live.
type Node struct {
	Service string
	Env     string
	NodeID  string

	BusCapacity       int
	MailboxCapacity   int // cold-only: requires supervisor restart to apply
	SupervisorGrace   int // seconds
	ReadyRequiredDeps []string

	Raw map[string]any
}

func nodeFromBundle(b *Bundle) Node {
	n := Node{Service: b.Service, Env: b.Env, NodeID: b.Node, Raw: b.Merged}
	n.BusCapacity = intAt(b.Merged, "bus", "capacity")
	n.MailboxCapacity = intAt(b.Merged, "mailbox", "capacity")
	n.SupervisorGrace = intAt(b.Merged, "supervisor", "grace_seconds")
	if deps, ok := b.Merged["ready"].(map[string]any); ok {
		if raw, ok := deps["required_services"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					n.ReadyRequiredDeps = append(n.ReadyRequiredDeps, s)
				}
			}
		}
	}
	return n
}

func intAt(root map[string]any, section, key string) int {
	sub, ok := root[section].(map[string]any)
	if !ok {
		return 0
	}
	switch v := sub[key].(type) {
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Store holds a live, atomically-swappable Node snapshot. Readers call
// Load and never block a concurrent Reload.
type Store struct {
	ptr atomic.Pointer[Node]
}

// NewStore builds a Store from an initial Bundle.
func NewStore(b *Bundle) *Store {
	s := &Store{}
	n := nodeFromBundle(b)
	s.ptr.Store(&n)
	return s
}

// Load returns the current snapshot. Safe for concurrent use.
func (s *Store) Load() Node {
	p := s.ptr.Load()
	if p == nil {
		return Node{}
	}
	return *p
}

// Reload atomically swaps in a freshly loaded Bundle. The cold-only
// MailboxCapacity field is carried over from the previous snapshot
// unless restartApplied is true, signaling the caller has actually
// restarted the affected supervised children.
func (s *Store) Reload(b *Bundle, restartApplied bool) Node {
	next := nodeFromBundle(b)
	if !restartApplied {
		if prev := s.ptr.Load(); prev != nil {
			next.MailboxCapacity = prev.MailboxCapacity
		}
	}
	s.ptr.Store(&next)
	return next
}
