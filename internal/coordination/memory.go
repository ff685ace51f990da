package coordination

import (
	"context"
	"sync"
	"time"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

type record struct {
	state   *domain.WorkerState
	stats   *domain.WorkerStats
	command *domain.WorkerCommand
}

// MemoryStore is a single-process WorkerStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
}

var _ ports.WorkerStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]*record{}}
}

func (s *MemoryStore) get(name string) *record {
	r, ok := s.records[name]
	if !ok {
		r = &record{}
		s.records[name] = r
	}
	return r
}

func (s *MemoryStore) WriteState(ctx context.Context, name string, state domain.WorkerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(name).state = &state
	return nil
}

func (s *MemoryStore) ReadState(ctx context.Context, name string) (domain.WorkerState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(name)
	if r.state == nil {
		return domain.WorkerState{}, false, nil
	}
	return *r.state, true, nil
}

func (s *MemoryStore) WriteStats(ctx context.Context, name string, stats domain.WorkerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stats.Counters != nil {
		counters := make(map[string]int64, len(stats.Counters))
		for k, v := range stats.Counters {
			counters[k] = v
		}
		stats.Counters = counters
	}
	s.get(name).stats = &stats
	return nil
}

func (s *MemoryStore) ReadStats(ctx context.Context, name string) (domain.WorkerStats, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(name)
	if r.stats == nil {
		return domain.WorkerStats{}, false, nil
	}
	return *r.stats, true, nil
}

func (s *MemoryStore) WriteCommand(ctx context.Context, name string, cmd domain.WorkerCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(name).command = &cmd
	return nil
}

func (s *MemoryStore) TryConsume(ctx context.Context, name string, now time.Time, maxAge time.Duration) (domain.CommandReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(name)
	if r.command == nil {
		return domain.CommandReceipt{Status: domain.NoCommand}, nil
	}
	cmd := *r.command
	r.command = nil
	return receiptFor(cmd, now, maxAge), nil
}
