package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const defaultKeyPrefix = "newsradar:worker:"

// RedisStore keeps worker records as three plain keys per worker name:
// <prefix><name>:state, :stats and :command.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.WorkerStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name, part string) string {
	return s.prefix + name + ":" + part
}

func (s *RedisStore) WriteState(ctx context.Context, name string, state domain.WorkerState) error {
	return s.set(ctx, s.key(name, "state"), state)
}

func (s *RedisStore) ReadState(ctx context.Context, name string) (domain.WorkerState, bool, error) {
	var state domain.WorkerState
	ok, err := s.get(ctx, s.key(name, "state"), &state)
	return state, ok, err
}

func (s *RedisStore) WriteStats(ctx context.Context, name string, stats domain.WorkerStats) error {
	return s.set(ctx, s.key(name, "stats"), stats)
}

func (s *RedisStore) ReadStats(ctx context.Context, name string) (domain.WorkerStats, bool, error) {
	var stats domain.WorkerStats
	ok, err := s.get(ctx, s.key(name, "stats"), &stats)
	return stats, ok, err
}

func (s *RedisStore) WriteCommand(ctx context.Context, name string, cmd domain.WorkerCommand) error {
	return s.set(ctx, s.key(name, "command"), cmd)
}

// TryConsume uses GETDEL so that exactly one poller observes a command.
func (s *RedisStore) TryConsume(ctx context.Context, name string, now time.Time, maxAge time.Duration) (domain.CommandReceipt, error) {
	raw, err := s.client.GetDel(ctx, s.key(name, "command")).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CommandReceipt{Status: domain.NoCommand}, nil
	}
	if err != nil {
		return domain.CommandReceipt{}, fmt.Errorf("consume command: %w", err)
	}

	var cmd domain.WorkerCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return domain.CommandReceipt{}, fmt.Errorf("decode command: %w", err)
	}
	return receiptFor(cmd, now, maxAge), nil
}

func (s *RedisStore) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func receiptFor(cmd domain.WorkerCommand, now time.Time, maxAge time.Duration) domain.CommandReceipt {
	if cmd.Stale(now, maxAge) {
		return domain.CommandReceipt{Status: domain.StaleCommand, Command: cmd}
	}
	return domain.CommandReceipt{Status: domain.CommandReady, Command: cmd}
}
