package coordination

import (
	"context"
	"fmt"
	"time"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// Status is the merged view of a worker as seen from any process.
type Status struct {
	Name       string              `json:"name"`
	Known      bool                `json:"known"`
	State      domain.WorkerState  `json:"state"`
	Stats      *domain.WorkerStats `json:"stats,omitempty"`
	ObservedAt time.Time           `json:"observed_at"`
}

// Control reads worker status and issues commands without owning the loop.
type Control struct {
	store ports.WorkerStore
	now   func() time.Time
}

func NewControl(store ports.WorkerStore) *Control {
	return &Control{store: store, now: time.Now}
}

// Status merges the last published state and stats for name.
func (c *Control) Status(ctx context.Context, name string) (Status, error) {
	out := Status{Name: name, ObservedAt: c.now().UTC()}

	state, ok, err := c.store.ReadState(ctx, name)
	if err != nil {
		return Status{}, fmt.Errorf("read %s state: %w", name, err)
	}
	out.Known = ok
	out.State = state

	stats, ok, err := c.store.ReadStats(ctx, name)
	if err != nil {
		return Status{}, fmt.Errorf("read %s stats: %w", name, err)
	}
	if ok {
		out.Stats = &stats
	}
	return out, nil
}

// Issue records a command for whichever process owns the loop. A nil error
// means the command was accepted; it may never be executed if no process
// owns the worker before the command goes stale.
func (c *Control) Issue(ctx context.Context, name string, action domain.WorkerAction) (domain.WorkerCommand, error) {
	if !action.Valid() {
		return domain.WorkerCommand{}, fmt.Errorf("unknown worker action %q", action)
	}
	cmd := domain.WorkerCommand{Action: action, IssuedAt: c.now().UTC()}
	if err := c.store.WriteCommand(ctx, name, cmd); err != nil {
		return domain.WorkerCommand{}, fmt.Errorf("write %s command: %w", name, err)
	}
	return cmd, nil
}
