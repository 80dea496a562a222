// Package health renders an operator-facing snapshot of named component
// statuses, layered on top of pkg/ready.Gate. It is purely additive
// reporting: nothing here feeds back into Gate.Ready().
package health

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is a component's normalized health classification.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFatal    Status = "fatal"
	StatusUnknown  Status = "unknown"
)

// Bounds applied during Normalize to keep reports small and renderable.
const (
	MaxComponents   = 64
	MaxMessageLen   = 256
	MaxDetails      = 32
	MaxDetailKeyLen = 64
	MaxDetailValLen = 256
	MaxServiceLen   = 64
	MaxEnvLen       = 32
	MaxWarnings     = 32
)

// ErrInvalidSnapshot wraps every Validate failure.
var ErrInvalidSnapshot = errors.New("health: invalid snapshot")

// Warning records a non-fatal normalization decision (truncation, dedupe).
type Warning struct {
	Code    string `json:"code"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// ComponentStatus describes a single subsystem check.
type ComponentStatus struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	CheckedAt time.Time         `json:"checked_at"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Snapshot is the full operator-facing health document.
type Snapshot struct {
	Service     string            `json:"service"`
	Env         string            `json:"env,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Overall     Status            `json:"overall"`
	Components  []ComponentStatus `json:"components"`
	Hash        string            `json:"hash"`
	Warnings    []Warning         `json:"warnings,omitempty"`
}

// New builds a normalized, validated Snapshot. A zero now defaults to
// time.Now().UTC().
func New(service, env string, comps []ComponentStatus, now time.Time) (Snapshot, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	s := Snapshot{
		Service:     strings.TrimSpace(service),
		Env:         strings.TrimSpace(env),
		GeneratedAt: now,
		Components:  comps,
		Overall:     StatusUnknown,
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	h, err := s.stableHash()
	if err != nil {
		return Snapshot{}, err
	}
	s.Hash = h
	return s, nil
}

func (s *Snapshot) warn(code, subject, msg string) {
	if len(s.Warnings) >= MaxWarnings {
		return
	}
	s.Warnings = append(s.Warnings, Warning{Code: code, Subject: subject, Message: msg})
}

func statusRank(s Status) int {
	switch s {
	case StatusFatal:
		return 3
	case StatusDegraded:
		return 2
	case StatusOK:
		return 1
	default:
		return 0
	}
}

func normalizeStatus(s Status) Status {
	switch s {
	case StatusOK, StatusDegraded, StatusFatal:
		return s
	default:
		return StatusUnknown
	}
}

// normalize enforces deterministic ordering and bounds: truncation,
// dedupe by component name, and overall-as-worst-of computation.
func (s *Snapshot) normalize() {
	s.Warnings = nil

	if len(s.Service) > MaxServiceLen {
		s.warn("truncate.service", "service", fmt.Sprintf("service truncated to %d bytes", MaxServiceLen))
		s.Service = s.Service[:MaxServiceLen]
	}
	if len(s.Env) > MaxEnvLen {
		s.warn("truncate.env", "env", fmt.Sprintf("env truncated to %d bytes", MaxEnvLen))
		s.Env = s.Env[:MaxEnvLen]
	}

	if len(s.Components) > MaxComponents {
		tmp := append([]ComponentStatus(nil), s.Components...)
		sort.SliceStable(tmp, func(i, j int) bool {
			return strings.ToLower(tmp[i].Name) < strings.ToLower(tmp[j].Name)
		})
		s.warn("truncate.components", "components", fmt.Sprintf("components truncated to %d entries", MaxComponents))
		s.Components = tmp[:MaxComponents]
	}

	for i := range s.Components {
		c := &s.Components[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Message = strings.TrimSpace(c.Message)
		if len(c.Name) > MaxServiceLen {
			c.Name = c.Name[:MaxServiceLen]
		}
		if len(c.Message) > MaxMessageLen {
			s.warn("truncate.component_message", c.Name, fmt.Sprintf("component message truncated to %d bytes", MaxMessageLen))
			c.Message = c.Message[:MaxMessageLen]
		}
		if c.CheckedAt.IsZero() {
			c.CheckedAt = s.GeneratedAt
		} else {
			c.CheckedAt = c.CheckedAt.UTC()
		}
		c.Status = normalizeStatus(c.Status)
		c.Details = normalizeDetails(s, c)
	}

	sort.SliceStable(s.Components, func(i, j int) bool {
		ai, aj := strings.ToLower(s.Components[i].Name), strings.ToLower(s.Components[j].Name)
		if ai != aj {
			return ai < aj
		}
		return statusRank(s.Components[i].Status) > statusRank(s.Components[j].Status)
	})

	if len(s.Components) > 1 {
		out := make([]ComponentStatus, 0, len(s.Components))
		seen := make(map[string]bool, len(s.Components))
		for _, c := range s.Components {
			key := strings.ToLower(c.Name)
			if key == "" || seen[key] {
				if seen[key] {
					s.warn("dedupe.component", c.Name, "duplicate component name deduped (kept first)")
				}
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
		s.Components = out
	}

	overall := StatusUnknown
	for _, c := range s.Components {
		if statusRank(c.Status) > statusRank(overall) {
			overall = c.Status
		}
	}
	s.Overall = normalizeStatus(overall)

	if len(s.Warnings) > MaxWarnings {
		s.Warnings = s.Warnings[:MaxWarnings]
	}
}

func normalizeDetails(s *Snapshot, c *ComponentStatus) map[string]string {
	if c.Details == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Details))
	for k := range c.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clean := make(map[string]string, len(c.Details))
	for _, k := range keys {
		k2 := strings.ToLower(strings.TrimSpace(k))
		if k2 == "" || len(k2) > MaxDetailKeyLen {
			s.warn("drop.detail_key", c.Name, "dropped invalid detail key")
			continue
		}
		v := strings.TrimSpace(c.Details[k])
		if len(v) > MaxDetailValLen {
			s.warn("truncate.detail_value", c.Name, fmt.Sprintf("detail value truncated to %d bytes", MaxDetailValLen))
			v = v[:MaxDetailValLen]
		}
		clean[k2] = v
		if len(clean) >= MaxDetails {
			s.warn("truncate.details", c.Name, fmt.Sprintf("details truncated to %d entries", MaxDetails))
			break
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

// Validate checks structural invariants a Normalize pass should already
// guarantee; exported so callers deserializing a Snapshot can re-check it.
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.Service) == "" {
		return fmt.Errorf("%w: service required", ErrInvalidSnapshot)
	}
	if s.GeneratedAt.IsZero() {
		return fmt.Errorf("%w: generated_at required", ErrInvalidSnapshot)
	}
	if len(s.Components) == 0 {
		if normalizeStatus(s.Overall) != StatusUnknown {
			return fmt.Errorf("%w: overall must be unknown when no components", ErrInvalidSnapshot)
		}
		return nil
	}
	seen := make(map[string]bool, len(s.Components))
	for i, c := range s.Components {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: component[%d] name required", ErrInvalidSnapshot, i)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate component name %q", ErrInvalidSnapshot, c.Name)
		}
		seen[key] = true
	}
	return nil
}

// stableHash computes a deterministic digest over the normalized fields
// that represent health state, excluding Warnings and GeneratedAt (pure
// normalization/timing artifacts, not health state).
func (s Snapshot) stableHash() (string, error) {
	h := sha256.New()
	write := func(x string) { h.Write([]byte(x)); h.Write([]byte{0}) }

	write(s.Service)
	write(s.Env)
	write(string(s.Overall))
	for _, c := range s.Components {
		write(c.Name)
		write(string(c.Status))
		write(c.Message)
		keys := make([]string, 0, len(c.Details))
		for k := range c.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			write(k)
			write(c.Details[k])
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
