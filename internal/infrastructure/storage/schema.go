package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the tables used by the Postgres repositories when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const clickHouseEventsDDL = `CREATE TABLE IF NOT EXISTS %s (
    id              UUID,
    item_id         UUID,
    run_id          UUID,
    step            LowCardinality(String),
    started_at      DateTime64(3, 'UTC'),
    duration_ms     Int64,
    provider        LowCardinality(String),
    model           String,
    confidence      Nullable(Float64),
    priority_before Int16,
    priority_after  Int16,
    success         Bool,
    skipped         Bool,
    error           String,
    input           String,
    output          String
) ENGINE = MergeTree ORDER BY (started_at, item_id)`

// MigrateClickHouse creates the analytics event table when missing.
func MigrateClickHouse(ctx context.Context, db *sql.DB, table string) error {
	if table == "" {
		table = "processing_events"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(clickHouseEventsDDL, table)); err != nil {
		return fmt.Errorf("apply clickhouse schema: %w", err)
	}
	return nil
}
