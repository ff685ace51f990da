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

// insertChunk keeps multi-row inserts well below the Postgres parameter limit.
const insertChunk = 500

var sourceColumns = []string{"id", "name", "type", "config", "enabled", "fetch_interval_minutes", "last_fetch_at", "last_error"}

var itemColumns = []string{
	"id", "source_id", "external_id", "title", "content", "url", "author",
	"published_at", "fetched_at", "content_hash", "priority", "priority_score",
	"is_read", "is_starred", "is_archived", "analysis", "classified_at", "classify_attempts",
}

var ruleColumns = []string{"id", "name", "type", "pattern", "priority_boost", "target_priority", "enabled", "sort_order"}

// PostgresSources persists sources into Postgres.
type PostgresSources struct {
	db *sql.DB
}

var _ ports.SourceRepository = (*PostgresSources)(nil)

// NewPostgresSources wires a sql.DB implementation.
func NewPostgresSources(db *sql.DB) *PostgresSources {
	return &PostgresSources{db: db}
}

func (r *PostgresSources) ListEnabled(ctx context.Context) ([]domain.Source, error) {
	query, args, err := psql.Select(sourceColumns...).
		From("sources").
		Where(sq.Eq{"enabled": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sources: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (r *PostgresSources) Get(ctx context.Context, id string) (domain.Source, error) {
	query, args, err := psql.Select(sourceColumns...).From("sources").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Source{}, fmt.Errorf("build get source: %w", err)
	}
	s, err := scanSource(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, fmt.Errorf("source %s: %w", id, ports.ErrNotFound)
	}
	return s, err
}

// Upsert inserts or updates the configurable columns; fetch bookkeeping is left untouched.
func (r *PostgresSources) Upsert(ctx context.Context, source domain.Source) error {
	cfg, err := json.Marshal(source.Config)
	if err != nil {
		return fmt.Errorf("marshal source config: %w", err)
	}
	query, args, err := psql.Insert("sources").
		Columns("id", "name", "type", "config", "enabled", "fetch_interval_minutes").
		Values(source.ID, source.Name, source.Type, string(cfg), source.Enabled, source.FetchIntervalMinutes).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			config = EXCLUDED.config,
			enabled = EXCLUDED.enabled,
			fetch_interval_minutes = EXCLUDED.fetch_interval_minutes,
			updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert source: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

func (r *PostgresSources) RecordFetch(ctx context.Context, id string, at time.Time, fetchErr error) error {
	update := psql.Update("sources").Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"id": id})
	if fetchErr != nil {
		update = update.Set("last_error", fetchErr.Error())
	} else {
		update = update.Set("last_fetch_at", at).Set("last_error", nil)
	}
	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build record fetch: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("record fetch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (domain.Source, error) {
	var (
		s         domain.Source
		cfg       []byte
		lastFetch sql.NullTime
		lastError sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Type, &cfg, &s.Enabled, &s.FetchIntervalMinutes, &lastFetch, &lastError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Source{}, err
		}
		return domain.Source{}, fmt.Errorf("scan source: %w", err)
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &s.Config); err != nil {
			return domain.Source{}, fmt.Errorf("decode source %s config: %w", s.ID, err)
		}
	}
	if lastFetch.Valid {
		t := lastFetch.Time
		s.LastFetchAt = &t
	}
	if lastError.Valid {
		msg := lastError.String
		s.LastError = &msg
	}
	return s, nil
}

// PostgresItems persists items into Postgres.
type PostgresItems struct {
	db *sql.DB
}

var _ ports.ItemRepository = (*PostgresItems)(nil)

// NewPostgresItems wires a sql.DB implementation.
func NewPostgresItems(db *sql.DB) *PostgresItems {
	return &PostgresItems{db: db}
}

func (r *PostgresItems) ExistsByExternalID(ctx context.Context, sourceID, externalID string) (bool, error) {
	return r.exists(ctx, sq.And{sq.Eq{"source_id": sourceID}, sq.Eq{"external_id": externalID}})
}

func (r *PostgresItems) ExistsByHash(ctx context.Context, contentHash string) (bool, error) {
	return r.exists(ctx, sq.Eq{"content_hash": contentHash})
}

func (r *PostgresItems) exists(ctx context.Context, pred sq.Sqlizer) (bool, error) {
	query, args, err := psql.Select("1").From("items").Where(pred).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}
	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

// InsertBatch writes items with ON CONFLICT DO NOTHING, so rows racing with a
// concurrently fetched source are skipped rather than failing the batch.
func (r *PostgresItems) InsertBatch(ctx context.Context, items []domain.Item) ([]domain.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	inserted := make([]domain.Item, 0, len(items))
	for start := 0; start < len(items); start += insertChunk {
		end := min(start+insertChunk, len(items))
		chunk := items[start:end]

		ids, err := r.insertChunk(ctx, chunk)
		if err != nil {
			return inserted, err
		}
		for _, it := range chunk {
			if _, ok := ids[it.ID]; ok {
				inserted = append(inserted, it)
			}
		}
	}
	return inserted, nil
}

func (r *PostgresItems) insertChunk(ctx context.Context, chunk []domain.Item) (map[string]struct{}, error) {
	builder := psql.Insert("items").Columns(itemColumns...)
	for _, it := range chunk {
		analysis, err := json.Marshal(it.Analysis)
		if err != nil {
			return nil, fmt.Errorf("marshal analysis for %s: %w", it.ID, err)
		}
		builder = builder.Values(
			it.ID, it.SourceID, it.ExternalID, it.Title, it.Content, it.URL, it.Author,
			it.PublishedAt, it.FetchedAt, it.ContentHash, int(it.Priority), it.PriorityScore,
			it.Read, it.Starred, it.Archived, string(analysis), it.ClassifiedAt, it.ClassifyAttempts,
		)
	}
	query, args, err := builder.Suffix("ON CONFLICT DO NOTHING RETURNING id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert items: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{}, len(chunk))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return ids, nil
}

func (r *PostgresItems) UpdateClassification(ctx context.Context, item domain.Item) error {
	analysis, err := json.Marshal(item.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis for %s: %w", item.ID, err)
	}
	query, args, err := psql.Update("items").
		Set("priority", int(item.Priority)).
		Set("priority_score", item.PriorityScore).
		Set("analysis", string(analysis)).
		Set("classified_at", item.ClassifiedAt).
		Set("classify_attempts", item.ClassifyAttempts).
		Where(sq.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update classification: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %s: %w", item.ID, ports.ErrNotFound)
	}
	return nil
}

func (r *PostgresItems) ListUnclassified(ctx context.Context, limit, maxAttempts int) ([]domain.Item, error) {
	builder := psql.Select(itemColumns...).
		From("items").
		Where(sq.Eq{"classified_at": nil}).
		OrderBy("fetched_at DESC")
	if maxAttempts > 0 {
		builder = builder.Where(sq.Lt{"classify_attempts": maxAttempts})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list unclassified: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unclassified: %w", err)
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes items fetched before cutoff, keeping starred ones.
func (r *PostgresItems) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete("items").
		Where(sq.Lt{"fetched_at": cutoff}).
		Where(sq.Eq{"is_starred": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete items: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		it         domain.Item
		priority   int
		analysis   []byte
		classified sql.NullTime
	)
	err := row.Scan(
		&it.ID, &it.SourceID, &it.ExternalID, &it.Title, &it.Content, &it.URL, &it.Author,
		&it.PublishedAt, &it.FetchedAt, &it.ContentHash, &priority, &it.PriorityScore,
		&it.Read, &it.Starred, &it.Archived, &analysis, &classified, &it.ClassifyAttempts,
	)
	if err != nil {
		return domain.Item{}, fmt.Errorf("scan item: %w", err)
	}
	it.Priority = domain.Priority(priority)
	if len(analysis) > 0 {
		if err := json.Unmarshal(analysis, &it.Analysis); err != nil {
			return domain.Item{}, fmt.Errorf("decode item %s analysis: %w", it.ID, err)
		}
	}
	if classified.Valid {
		t := classified.Time
		it.ClassifiedAt = &t
	}
	return it, nil
}

// PostgresRules persists matching rules into Postgres.
type PostgresRules struct {
	db *sql.DB
}

var _ ports.RuleRepository = (*PostgresRules)(nil)

// NewPostgresRules wires a sql.DB implementation.
func NewPostgresRules(db *sql.DB) *PostgresRules {
	return &PostgresRules{db: db}
}

func (r *PostgresRules) ListEnabled(ctx context.Context) ([]domain.Rule, error) {
	query, args, err := psql.Select(ruleColumns...).
		From("rules").
		Where(sq.Eq{"enabled": true}).
		OrderBy("sort_order", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list rules: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		var (
			rule     domain.Rule
			ruleType string
			target   sql.NullInt64
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &ruleType, &rule.Pattern, &rule.PriorityBoost, &target, &rule.Enabled, &rule.Order); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Type = domain.RuleType(ruleType)
		if target.Valid {
			p := domain.Priority(target.Int64)
			rule.TargetPriority = &p
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (r *PostgresRules) Upsert(ctx context.Context, rule domain.Rule) error {
	var target any
	if rule.TargetPriority != nil {
		target = int(*rule.TargetPriority)
	}
	query, args, err := psql.Insert("rules").
		Columns(ruleColumns...).
		Values(rule.ID, rule.Name, string(rule.Type), rule.Pattern, rule.PriorityBoost, target, rule.Enabled, rule.Order).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			pattern = EXCLUDED.pattern,
			priority_boost = EXCLUDED.priority_boost,
			target_priority = EXCLUDED.target_priority,
			enabled = EXCLUDED.enabled,
			sort_order = EXCLUDED.sort_order`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert rule: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}
