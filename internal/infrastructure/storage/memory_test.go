package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRadar/internal/config"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

func TestMemoryItemsConflicts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	inserted, err := store.Items.InsertBatch(ctx, []domain.Item{
		{ID: "1", SourceID: "s", ExternalID: "a", ContentHash: "h1"},
		{ID: "2", SourceID: "s", ExternalID: "a", ContentHash: "h2"},
		{ID: "3", SourceID: "t", ExternalID: "b", ContentHash: "h1"},
		{ID: "4", SourceID: "t", ExternalID: "a", ContentHash: "h4"},
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(inserted))
	for _, it := range inserted {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"1", "4"}, ids)
}

func TestMemoryItemsListUnclassified(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	done := base

	store.Items.Put(domain.Item{ID: "old", FetchedAt: base})
	store.Items.Put(domain.Item{ID: "new", FetchedAt: base.Add(time.Hour)})
	store.Items.Put(domain.Item{ID: "done", FetchedAt: base.Add(2 * time.Hour), ClassifiedAt: &done})
	store.Items.Put(domain.Item{ID: "exhausted", FetchedAt: base.Add(3 * time.Hour), ClassifyAttempts: 3})

	items, err := store.Items.ListUnclassified(context.Background(), 10, 3)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].ID)
	assert.Equal(t, "old", items[1].ID)
}

func TestMemoryItemsDeleteOlderThan(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store.Items.Put(domain.Item{ID: "old", FetchedAt: base})
	store.Items.Put(domain.Item{ID: "starred", FetchedAt: base, Starred: true})
	store.Items.Put(domain.Item{ID: "fresh", FetchedAt: base.Add(48 * time.Hour)})

	n, err := store.Items.DeleteOlderThan(context.Background(), base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Len(t, store.Items.All(), 2)
}

func TestMemorySourcesRecordFetch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Sources.Upsert(ctx, domain.Source{ID: "s", Enabled: true, FetchIntervalMinutes: 60}))

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Sources.RecordFetch(ctx, "s", at, errors.New("boom")))
	s, err := store.Sources.Get(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, s.LastFetchAt, "failed fetch keeps the source due")
	require.NotNil(t, s.LastError)

	require.NoError(t, store.Sources.RecordFetch(ctx, "s", at, nil))
	s, err = store.Sources.Get(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, s.LastFetchAt)
	assert.Nil(t, s.LastError)

	require.NoError(t, store.Sources.Upsert(ctx, domain.Source{ID: "s", Name: "renamed", Enabled: true}))
	s, _ = store.Sources.Get(ctx, "s")
	assert.NotNil(t, s.LastFetchAt, "upsert keeps fetch bookkeeping")

	assert.ErrorIs(t, store.Sources.RecordFetch(ctx, "missing", at, nil), ports.ErrNotFound)
}

func TestSeed(t *testing.T) {
	store := NewMemoryStore()
	disabled := false
	cfg := config.Config{
		Sources: []config.SourceConfig{
			{ID: "feed", Type: "html", FetchIntervalMinutes: 30, Config: map[string]string{"url": "https://x"}},
			{ID: "off", Type: "arxiv", FetchIntervalMinutes: 60, Enabled: &disabled},
		},
		Rules: []config.RuleConfig{
			{Name: "Budget", Type: "keyword", Pattern: "haushalt", PriorityBoost: 30, TargetPriority: "HIGH", Order: 1},
		},
	}

	require.NoError(t, Seed(context.Background(), store.Sources, store.Rules, cfg))

	sources, err := store.Sources.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "feed", sources[0].Name)

	rules, err := store.Rules.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "budget", rules[0].ID)
	require.NotNil(t, rules[0].TargetPriority)
	assert.Equal(t, domain.PriorityHigh, *rules[0].TargetPriority)

	cfg.Rules[0].TargetPriority = "urgent"
	assert.Error(t, Seed(context.Background(), store.Sources, store.Rules, cfg))
}
