package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

var eventColumns = []string{
	"id", "item_id", "run_id", "step", "started_at", "duration_ms", "provider", "model",
	"confidence", "priority_before", "priority_after", "success", "skipped", "error", "input", "output",
}

// SQLEventLog appends processing events to a SQL table. The same shape is
// used for the Postgres processing_events table and the ClickHouse sink; only
// the placeholder style differs.
type SQLEventLog struct {
	db      *sql.DB
	table   string
	builder sq.StatementBuilderType
}

var _ ports.EventLog = (*SQLEventLog)(nil)

// NewPostgresEventLog writes to processing_events in Postgres.
func NewPostgresEventLog(db *sql.DB) *SQLEventLog {
	return &SQLEventLog{db: db, table: "processing_events", builder: psql}
}

// NewClickHouseEventLog writes to table in ClickHouse.
func NewClickHouseEventLog(db *sql.DB, table string) *SQLEventLog {
	if table == "" {
		table = "processing_events"
	}
	return &SQLEventLog{db: db, table: table, builder: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

func (l *SQLEventLog) Record(ctx context.Context, event domain.ProcessingEvent) error {
	input, err := marshalSnapshot(event.Input)
	if err != nil {
		return err
	}
	output, err := marshalSnapshot(event.Output)
	if err != nil {
		return err
	}

	query, args, err := l.builder.Insert(l.table).
		Columns(eventColumns...).
		Values(
			event.ID, event.ItemID, event.RunID, string(event.Step), event.StartedAt,
			event.Duration.Milliseconds(), event.Provider, event.Model, event.Confidence,
			int(event.PriorityBefore), int(event.PriorityAfter), event.Success, event.Skipped,
			event.Error, input, output,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert event: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func marshalSnapshot(v map[string]any) (string, error) {
	if len(v) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal event snapshot: %w", err)
	}
	return string(raw), nil
}

// DiscardEventLog drops events; used when the sink is "none".
type DiscardEventLog struct{}

var _ ports.EventLog = DiscardEventLog{}

func (DiscardEventLog) Record(context.Context, domain.ProcessingEvent) error { return nil }
