package types

import (
	"fmt"
	"strings"
)

// Priority is the urgency of an update request.
// Priorities are totally ordered: Low < Normal < High < Critical.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Priorities lists every valid priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the four known priorities.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority parses a priority name (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RefetchMode controls how aggressively an invalidated entry is refreshed.
type RefetchMode int

const (
	// RefetchNone marks the entry stale; it is refetched on its next read.
	RefetchNone RefetchMode = iota
	// RefetchActive refetches the entry immediately.
	RefetchActive
)

func (m RefetchMode) String() string {
	if m == RefetchActive {
		return "active"
	}
	return "none"
}

// WildcardSuffix marks a key as a prefix matching every entry that starts with it.
const WildcardSuffix = "*"

// IsWildcard reports whether key ends with the wildcard marker.
func IsWildcard(key string) bool {
	return strings.HasSuffix(key, WildcardSuffix)
}

// SplitWildcard returns the literal prefix of a wildcard key.
// ok is false for exact keys, in which case prefix is the key itself.
func SplitWildcard(key string) (prefix string, ok bool) {
	if !IsWildcard(key) {
		return key, false
	}
	return strings.TrimSuffix(key, WildcardSuffix), true
}

// UpdateRequest describes one intent to invalidate a cache entry.
type UpdateRequest struct {
	// Key identifies the cache entry, or a family of entries when it ends in "*".
	Key string `json:"key"`

	// Source labels the caller for diagnostics only.
	Source string `json:"source,omitempty"`

	Priority Priority `json:"priority"`

	// Force bypasses the cooldown check.
	Force bool `json:"force,omitempty"`

	// Data, when non-nil, is written to the entry before it is invalidated.
	Data any `json:"data,omitempty"`
}

// Wildcard reports whether the request targets a key prefix.
func (r UpdateRequest) Wildcard() bool {
	return IsWildcard(r.Key)
}

// Action is the kind of change carried by an Event.
type Action string

const (
	Set        Action = "set"
	Invalidate Action = "invalidate"
	Refetch    Action = "refetch"
	Clear      Action = "clear"
)

// Event is a cache change propagated between pods.
// A Key ending in "*" addresses every entry with that prefix.
type Event struct {
	Key    string `json:"key"`
	Sender string `json:"sender"`
	Action Action `json:"action"`
	Value  []byte `json:"value,omitempty"` // JSON-encoded value for Set
}
