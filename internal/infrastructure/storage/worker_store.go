package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// PostgresWorkerStore keeps worker records in one row per worker name.
type PostgresWorkerStore struct {
	db *sql.DB
}

var _ ports.WorkerStore = (*PostgresWorkerStore)(nil)

// NewPostgresWorkerStore wires a sql.DB implementation.
func NewPostgresWorkerStore(db *sql.DB) *PostgresWorkerStore {
	return &PostgresWorkerStore{db: db}
}

func (s *PostgresWorkerStore) WriteState(ctx context.Context, name string, state domain.WorkerState) error {
	return s.writeColumn(ctx, name, "state", state)
}

func (s *PostgresWorkerStore) ReadState(ctx context.Context, name string) (domain.WorkerState, bool, error) {
	var state domain.WorkerState
	ok, err := s.readColumn(ctx, name, "state", &state)
	return state, ok, err
}

func (s *PostgresWorkerStore) WriteStats(ctx context.Context, name string, stats domain.WorkerStats) error {
	return s.writeColumn(ctx, name, "stats", stats)
}

func (s *PostgresWorkerStore) ReadStats(ctx context.Context, name string) (domain.WorkerStats, bool, error) {
	var stats domain.WorkerStats
	ok, err := s.readColumn(ctx, name, "stats", &stats)
	return stats, ok, err
}

func (s *PostgresWorkerStore) WriteCommand(ctx context.Context, name string, cmd domain.WorkerCommand) error {
	return s.writeColumn(ctx, name, "command", cmd)
}

// TryConsume clears the command column and returns its previous value in a
// single statement, so two pollers can never both receive the same command.
func (s *PostgresWorkerStore) TryConsume(ctx context.Context, name string, now time.Time, maxAge time.Duration) (domain.CommandReceipt, error) {
	// RETURNING yields post-update values, so the previous command is read
	// through a locked sub-select joined with FROM.
	prev, prevArgs, err := sq.Select("name", "command").
		From("worker_records").
		Where(sq.Eq{"name": name}).
		Where("command IS NOT NULL").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return domain.CommandReceipt{}, fmt.Errorf("build consume command: %w", err)
	}
	query, args, err := psql.Update("worker_records AS w").
		Set("command", sq.Expr("NULL")).
		Set("updated_at", sq.Expr("NOW()")).
		Suffix("FROM ("+prev+") AS prev WHERE w.name = prev.name RETURNING prev.command", prevArgs...).
		ToSql()
	if err != nil {
		return domain.CommandReceipt{}, fmt.Errorf("build consume command: %w", err)
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.CommandReceipt{Status: domain.NoCommand}, nil
	case err != nil:
		return domain.CommandReceipt{}, fmt.Errorf("consume command: %w", err)
	}

	var cmd domain.WorkerCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return domain.CommandReceipt{}, fmt.Errorf("decode command: %w", err)
	}
	if cmd.Stale(now, maxAge) {
		return domain.CommandReceipt{Status: domain.StaleCommand, Command: cmd}, nil
	}
	return domain.CommandReceipt{Status: domain.CommandReady, Command: cmd}, nil
}

func (s *PostgresWorkerStore) writeColumn(ctx context.Context, name, column string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal worker %s: %w", column, err)
	}
	query, args, err := psql.Insert("worker_records").
		Columns("name", column, "updated_at").
		Values(name, string(raw), sq.Expr("NOW()")).
		Suffix(fmt.Sprintf("ON CONFLICT (name) DO UPDATE SET %s = EXCLUDED.%s, updated_at = NOW()", column, column)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build write worker %s: %w", column, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write worker %s: %w", column, err)
	}
	return nil
}

func (s *PostgresWorkerStore) readColumn(ctx context.Context, name, column string, v any) (bool, error) {
	query, args, err := psql.Select(column).From("worker_records").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build read worker %s: %w", column, err)
	}
	var raw []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read worker %s: %w", column, err)
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode worker %s: %w", column, err)
	}
	return true, nil
}
