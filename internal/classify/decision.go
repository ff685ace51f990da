package classify

import (
	"fmt"

	"NewsRadar/internal/domain"
)

// Default relevance thresholds for the embedding pre-filter.
const (
	DefaultHighThreshold = 0.7
	DefaultEdgeThreshold = 0.4
)

// Thresholds split classifier confidence into three buckets. Edge must be below High.
type Thresholds struct {
	High float64
	Edge float64
}

// DefaultThresholds returns High=0.7, Edge=0.4.
func DefaultThresholds() Thresholds {
	return Thresholds{High: DefaultHighThreshold, Edge: DefaultEdgeThreshold}
}

// Validate checks the ordering and range of the thresholds.
func (t Thresholds) Validate() error {
	if t.Edge < 0 || t.High > 1 {
		return fmt.Errorf("thresholds must lie in [0,1], got edge=%v high=%v", t.Edge, t.High)
	}
	if t.Edge >= t.High {
		return fmt.Errorf("edge threshold %v must be below high threshold %v", t.Edge, t.High)
	}
	return nil
}

// Decision is the Stage A verdict for one item.
type Decision struct {
	Priority domain.Priority
	Score    int
	SkipLLM  bool
}

// Decide maps a relevance confidence to a tier and tells whether the LLM stage
// can be skipped. Both boundaries are inclusive on the upper bucket.
func Decide(confidence float64, t Thresholds) Decision {
	switch {
	case confidence >= t.High:
		return Decision{Priority: domain.PriorityMedium, Score: 70}
	case confidence >= t.Edge:
		return Decision{Priority: domain.PriorityLow, Score: 55}
	default:
		return Decision{Priority: domain.PriorityNone, Score: 20, SkipLLM: true}
	}
}
