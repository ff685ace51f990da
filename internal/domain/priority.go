package domain

import (
	"fmt"
	"strings"
)

// Priority is the ordered relevance tier of an item.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = [...]string{"none", "low", "medium", "high", "critical"}

func (p Priority) String() string {
	if p < PriorityNone || p > PriorityCritical {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// Valid reports whether p is one of the defined tiers.
func (p Priority) Valid() bool {
	return p >= PriorityNone && p <= PriorityCritical
}

// ParsePriority accepts the lowercase tier names (case-insensitive, surrounding space ignored).
func ParsePriority(value string) (Priority, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for i, name := range priorityNames {
		if v == name {
			return Priority(i), nil
		}
	}
	return PriorityNone, fmt.Errorf("unknown priority %q", value)
}

// MarshalText stores tiers by name so persisted metadata stays readable.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TierScore is the canonical score persisted alongside a tier that was assigned
// by classification rather than by rule scoring.
func TierScore(p Priority) int {
	switch p {
	case PriorityCritical:
		return 95
	case PriorityHigh:
		return 85
	case PriorityMedium:
		return 70
	case PriorityLow:
		return 55
	default:
		return 20
	}
}
