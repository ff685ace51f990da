package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// MemoryStore keeps every repository in process memory. It backs the
// "memory" database driver and the use-case tests.
type MemoryStore struct {
	Sources *MemorySources
	Items   *MemoryItems
	Rules   *MemoryRules
	Events  *MemoryEvents
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Sources: &MemorySources{rows: map[string]domain.Source{}},
		Items:   &MemoryItems{},
		Rules:   &MemoryRules{rows: map[string]domain.Rule{}},
		Events:  &MemoryEvents{},
	}
}

// MemorySources implements ports.SourceRepository.
type MemorySources struct {
	mu   sync.Mutex
	rows map[string]domain.Source
}

var _ ports.SourceRepository = (*MemorySources)(nil)

func (m *MemorySources) ListEnabled(ctx context.Context) ([]domain.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Source, 0, len(m.rows))
	for _, s := range m.rows {
		if s.Enabled {
			out = append(out, cloneSource(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemorySources) Get(ctx context.Context, id string) (domain.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.rows[id]
	if !ok {
		return domain.Source{}, fmt.Errorf("source %s: %w", id, ports.ErrNotFound)
	}
	return cloneSource(s), nil
}

func (m *MemorySources) Upsert(ctx context.Context, source domain.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.rows[source.ID]; ok {
		source.LastFetchAt = existing.LastFetchAt
		source.LastError = existing.LastError
	}
	m.rows[source.ID] = cloneSource(source)
	return nil
}

// Put stores the source verbatim, including fetch bookkeeping.
func (m *MemorySources) Put(source domain.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[source.ID] = cloneSource(source)
}

func (m *MemorySources) RecordFetch(ctx context.Context, id string, at time.Time, fetchErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, ports.ErrNotFound)
	}
	if fetchErr != nil {
		msg := fetchErr.Error()
		s.LastError = &msg
	} else {
		t := at
		s.LastFetchAt = &t
		s.LastError = nil
	}
	m.rows[id] = s
	return nil
}

func cloneSource(s domain.Source) domain.Source {
	if s.Config != nil {
		cfg := make(map[string]string, len(s.Config))
		for k, v := range s.Config {
			cfg[k] = v
		}
		s.Config = cfg
	}
	return s
}

// MemoryItems implements ports.ItemRepository.
type MemoryItems struct {
	mu   sync.Mutex
	rows []domain.Item
}

var _ ports.ItemRepository = (*MemoryItems)(nil)

func (m *MemoryItems) ExistsByExternalID(ctx context.Context, sourceID, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.rows {
		if it.SourceID == sourceID && it.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryItems) ExistsByHash(ctx context.Context, contentHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.rows {
		if it.ContentHash == contentHash {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryItems) InsertBatch(ctx context.Context, items []domain.Item) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if m.conflicts(it) {
			continue
		}
		m.rows = append(m.rows, it)
		inserted = append(inserted, it)
	}
	return inserted, nil
}

func (m *MemoryItems) conflicts(item domain.Item) bool {
	for _, it := range m.rows {
		if it.ContentHash == item.ContentHash {
			return true
		}
		if it.SourceID == item.SourceID && it.ExternalID == item.ExternalID {
			return true
		}
	}
	return false
}

func (m *MemoryItems) UpdateClassification(ctx context.Context, item domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == item.ID {
			m.rows[i].Priority = item.Priority
			m.rows[i].PriorityScore = item.PriorityScore
			m.rows[i].Analysis = item.Analysis
			m.rows[i].ClassifiedAt = item.ClassifiedAt
			m.rows[i].ClassifyAttempts = item.ClassifyAttempts
			return nil
		}
	}
	return fmt.Errorf("item %s: %w", item.ID, ports.ErrNotFound)
}

func (m *MemoryItems) ListUnclassified(ctx context.Context, limit, maxAttempts int) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Item
	for _, it := range m.rows {
		if it.ClassifiedAt != nil {
			continue
		}
		if maxAttempts > 0 && it.ClassifyAttempts >= maxAttempts {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FetchedAt.After(out[j].FetchedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryItems) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rows[:0]
	var deleted int64
	for _, it := range m.rows {
		if it.FetchedAt.Before(cutoff) && !it.Starred {
			deleted++
			continue
		}
		kept = append(kept, it)
	}
	m.rows = kept
	return deleted, nil
}

// All returns a snapshot of stored items in insertion order.
func (m *MemoryItems) All() []domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Item, len(m.rows))
	copy(out, m.rows)
	return out
}

// Put appends an item without conflict checks.
func (m *MemoryItems) Put(item domain.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, item)
}

// MemoryRules implements ports.RuleRepository.
type MemoryRules struct {
	mu   sync.Mutex
	rows map[string]domain.Rule
}

var _ ports.RuleRepository = (*MemoryRules)(nil)

func (m *MemoryRules) ListEnabled(ctx context.Context) ([]domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Rule, 0, len(m.rows))
	for _, r := range m.rows {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRules) Upsert(ctx context.Context, rule domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rule.ID] = rule
	return nil
}

// MemoryEvents implements ports.EventLog.
type MemoryEvents struct {
	mu     sync.Mutex
	events []domain.ProcessingEvent
}

var _ ports.EventLog = (*MemoryEvents)(nil)

func (m *MemoryEvents) Record(ctx context.Context, event domain.ProcessingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// All returns recorded events in order.
func (m *MemoryEvents) All() []domain.ProcessingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ProcessingEvent, len(m.events))
	copy(out, m.events)
	return out
}
