package domain

import "time"

// StepType names one processing step in the event log.
type StepType string

const (
	StepClassifier StepType = "classifier"
	StepLLM        StepType = "llm"
)

// ProcessingEvent is one append-only audit record for a processing step.
type ProcessingEvent struct {
	ID             string
	ItemID         string
	RunID          string
	Step           StepType
	StartedAt      time.Time
	Duration       time.Duration
	Provider       string
	Model          string
	Confidence     *float64
	PriorityBefore Priority
	PriorityAfter  Priority
	Success        bool
	Skipped        bool
	Error          string
	Input          map[string]any
	Output         map[string]any
}
