package domain

import "time"

// WorkerState is published by the process that owns a worker loop.
type WorkerState struct {
	Running            bool      `json:"running"`
	Paused             bool      `json:"paused"`
	StoppedDueToErrors bool      `json:"stopped_due_to_errors"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// WorkerStats carries best-effort counters; readers accept staleness.
type WorkerStats struct {
	Processed       int64            `json:"processed"`
	Errors          int64            `json:"errors"`
	PriorityChanged int64            `json:"priority_changed"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	LastBatchAt     *time.Time       `json:"last_batch_at,omitempty"`
	Counters        map[string]int64 `json:"counters,omitempty"`
	SyncedAt        time.Time        `json:"synced_at"`
}

// WorkerAction is a command verb understood by worker loops.
type WorkerAction string

const (
	ActionStart  WorkerAction = "start"
	ActionStop   WorkerAction = "stop"
	ActionPause  WorkerAction = "pause"
	ActionResume WorkerAction = "resume"
)

// Valid reports whether a is a known action.
func (a WorkerAction) Valid() bool {
	switch a {
	case ActionStart, ActionStop, ActionPause, ActionResume:
		return true
	}
	return false
}

// WorkerCommand is a pending request for the owning process.
type WorkerCommand struct {
	Action   WorkerAction `json:"action"`
	IssuedAt time.Time    `json:"issued_at"`
}

// Stale reports whether the command is older than maxAge at now.
func (c WorkerCommand) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(c.IssuedAt) > maxAge
}

// ConsumeStatus distinguishes the three outcomes of consuming a command.
type ConsumeStatus int

const (
	NoCommand ConsumeStatus = iota
	StaleCommand
	CommandReady
)

// CommandReceipt is returned by TryConsume. Command is set for CommandReady and
// StaleCommand and is zero for NoCommand.
type CommandReceipt struct {
	Status  ConsumeStatus
	Command WorkerCommand
}
