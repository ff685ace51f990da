package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func stores(t *testing.T) map[string]ports.WorkerStore {
	redisStore, _ := newRedisStore(t)
	return map[string]ports.WorkerStore{
		"redis":  redisStore,
		"memory": NewMemoryStore(),
	}
}

func TestStoreStateAndStats(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.ReadState(ctx, "w")
			require.NoError(t, err)
			assert.False(t, ok)

			at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
			require.NoError(t, store.WriteState(ctx, "w", domain.WorkerState{Running: true, Paused: true, UpdatedAt: at}))
			state, ok, err := store.ReadState(ctx, "w")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, state.Running)
			assert.True(t, state.Paused)
			assert.True(t, at.Equal(state.UpdatedAt))

			require.NoError(t, store.WriteStats(ctx, "w", domain.WorkerStats{Processed: 4, Errors: 1, Counters: map[string]int64{"llm_skipped": 2}}))
			stats, ok, err := store.ReadStats(ctx, "w")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.EqualValues(t, 4, stats.Processed)
			assert.EqualValues(t, 2, stats.Counters["llm_skipped"])
		})
	}
}

func TestStoreCommandConsumedOnce(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

			receipt, err := store.TryConsume(ctx, "w", now, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, domain.NoCommand, receipt.Status)

			require.NoError(t, store.WriteCommand(ctx, "w", domain.WorkerCommand{Action: domain.ActionPause, IssuedAt: now.Add(-5 * time.Second)}))
			receipt, err = store.TryConsume(ctx, "w", now, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, domain.CommandReady, receipt.Status)
			assert.Equal(t, domain.ActionPause, receipt.Command.Action)

			receipt, err = store.TryConsume(ctx, "w", now, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, domain.NoCommand, receipt.Status)
		})
	}
}

func TestStoreStaleCommandRejected(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

			require.NoError(t, store.WriteCommand(ctx, "w", domain.WorkerCommand{Action: domain.ActionStop, IssuedAt: now.Add(-61 * time.Second)}))
			receipt, err := store.TryConsume(ctx, "w", now, 60*time.Second)
			require.NoError(t, err)
			assert.Equal(t, domain.StaleCommand, receipt.Status)

			receipt, err = store.TryConsume(ctx, "w", now, 60*time.Second)
			require.NoError(t, err)
			assert.Equal(t, domain.NoCommand, receipt.Status, "stale command is discarded")
		})
	}
}

func TestRedisKeyLayout(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.WriteState(context.Background(), "classification", domain.WorkerState{Running: true}))
	assert.True(t, mr.Exists("test:classification:state"))
}

func TestControl(t *testing.T) {
	store := NewMemoryStore()
	control := NewControl(store)
	ctx := context.Background()

	status, err := control.Status(ctx, "w")
	require.NoError(t, err)
	assert.False(t, status.Known)
	assert.Nil(t, status.Stats)

	require.NoError(t, store.WriteState(ctx, "w", domain.WorkerState{Running: true}))
	require.NoError(t, store.WriteStats(ctx, "w", domain.WorkerStats{Processed: 9}))
	status, err = control.Status(ctx, "w")
	require.NoError(t, err)
	assert.True(t, status.Known)
	assert.True(t, status.State.Running)
	require.NotNil(t, status.Stats)
	assert.EqualValues(t, 9, status.Stats.Processed)

	cmd, err := control.Issue(ctx, "w", domain.ActionPause)
	require.NoError(t, err)
	receipt, err := store.TryConsume(ctx, "w", cmd.IssuedAt, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.CommandReady, receipt.Status)

	_, err = control.Issue(ctx, "w", domain.WorkerAction("explode"))
	assert.Error(t, err)
}
