package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

func TestSourcesListEnabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fetched := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, name, type, config, enabled, fetch_interval_minutes, last_fetch_at, last_error FROM sources WHERE enabled = \$1 ORDER BY id`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(sourceColumns).
			AddRow("a", "A", "html", []byte(`{"url":"https://a.example"}`), true, 60, nil, nil).
			AddRow("b", "B", "arxiv", []byte(`{}`), true, 15, fetched, "timeout"))

	sources, err := NewPostgresSources(db).ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, "https://a.example", sources[0].Config["url"])
	assert.Nil(t, sources[0].LastFetchAt)
	require.NotNil(t, sources[1].LastFetchAt)
	assert.True(t, fetched.Equal(*sources[1].LastFetchAt))
	require.NotNil(t, sources[1].LastError)
	assert.Equal(t, "timeout", *sources[1].LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourcesGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM sources WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sourceColumns))

	_, err = NewPostgresSources(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestSourcesRecordFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE sources SET updated_at = NOW\(\), last_fetch_at = \$1, last_error = \$2 WHERE id = \$3`).
		WithArgs(at, nil, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sources SET updated_at = NOW\(\), last_error = \$1 WHERE id = \$2`).
		WithArgs("connection reset", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sources`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresSources(db)
	require.NoError(t, repo.RecordFetch(context.Background(), "s1", at, nil))
	require.NoError(t, repo.RecordFetch(context.Background(), "s1", at, errors.New("connection reset")))
	assert.ErrorIs(t, repo.RecordFetch(context.Background(), "gone", at, nil), ports.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemsExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT 1 FROM items WHERE \(source_id = \$1 AND external_id = \$2\) LIMIT 1`).
		WithArgs("s1", "ext-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM items WHERE content_hash = \$1 LIMIT 1`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	repo := NewPostgresItems(db)
	found, err := repo.ExistsByExternalID(context.Background(), "s1", "ext-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.ExistsByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemsInsertBatchReturnsInsertedOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO items \(id,source_id,external_id,.*\) VALUES .* ON CONFLICT DO NOTHING RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("i2"))

	items := []domain.Item{{ID: "i1", SourceID: "s"}, {ID: "i2", SourceID: "s"}}
	inserted, err := NewPostgresItems(db).InsertBatch(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "i2", inserted[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemsListUnclassified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	analysis, _ := json.Marshal(domain.Analysis{SchemaVersion: 1, Rules: &domain.RuleAnalysis{Matched: []string{"budget"}}})
	mock.ExpectQuery(`FROM items WHERE classified_at IS NULL AND classify_attempts < \$1 ORDER BY fetched_at DESC LIMIT 20`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(itemColumns).AddRow(
			"i1", "s1", "e1", "Titel", "Text", "https://x", "",
			now, now, "hash", 3, 80,
			false, false, false, analysis, nil, 1,
		))

	items, err := NewPostgresItems(db).ListUnclassified(context.Background(), 20, 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.PriorityHigh, items[0].Priority)
	assert.Equal(t, 80, items[0].PriorityScore)
	assert.Nil(t, items[0].ClassifiedAt)
	require.NotNil(t, items[0].Analysis.Rules)
	assert.Equal(t, []string{"budget"}, items[0].Analysis.Rules.Matched)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemsDeleteOlderThanKeepsStarred(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM items WHERE fetched_at < \$1 AND is_starred = \$2`).
		WithArgs(cutoff, false).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := NewPostgresItems(db).DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRulesListEnabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM rules WHERE enabled = \$1 ORDER BY sort_order, id`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow("budget", "budget", "keyword", "haushalt", 30, 3, true, 1).
			AddRow("noise", "noise", "regex", "wetter", -10, nil, true, 2))

	rules, err := NewPostgresRules(db).ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.NotNil(t, rules[0].TargetPriority)
	assert.Equal(t, domain.PriorityHigh, *rules[0].TargetPriority)
	assert.Equal(t, domain.RuleRegex, rules[1].Type)
	assert.Nil(t, rules[1].TargetPriority)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerStoreTryConsume(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	fresh, _ := json.Marshal(domain.WorkerCommand{Action: domain.ActionPause, IssuedAt: now.Add(-10 * time.Second)})
	stale, _ := json.Marshal(domain.WorkerCommand{Action: domain.ActionStop, IssuedAt: now.Add(-2 * time.Minute)})

	mock.ExpectQuery(`UPDATE worker_records AS w SET command = NULL, updated_at = NOW\(\) FROM \(SELECT name, command FROM worker_records WHERE name = \$1 AND command IS NOT NULL FOR UPDATE\) AS prev WHERE w.name = prev.name RETURNING prev.command`).
		WithArgs("w").WillReturnRows(sqlmock.NewRows([]string{"command"}))
	mock.ExpectQuery(`UPDATE worker_records`).WithArgs("w").WillReturnRows(sqlmock.NewRows([]string{"command"}).AddRow(fresh))
	mock.ExpectQuery(`UPDATE worker_records`).WithArgs("w").WillReturnRows(sqlmock.NewRows([]string{"command"}).AddRow(stale))

	store := NewPostgresWorkerStore(db)
	receipt, err := store.TryConsume(context.Background(), "w", now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.NoCommand, receipt.Status)

	receipt, err = store.TryConsume(context.Background(), "w", now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.CommandReady, receipt.Status)
	assert.Equal(t, domain.ActionPause, receipt.Command.Action)

	receipt, err = store.TryConsume(context.Background(), "w", now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.StaleCommand, receipt.Status)
	assert.Equal(t, domain.ActionStop, receipt.Command.Action, "stale receipts still carry the command")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerStoreState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO worker_records \(name,state,updated_at\) VALUES \(\$1,\$2,NOW\(\)\) ON CONFLICT \(name\) DO UPDATE SET state = EXCLUDED.state`).
		WithArgs("w", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT state FROM worker_records WHERE name = \$1`).
		WithArgs("w").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow([]byte(`{"running":true,"paused":true}`)))
	mock.ExpectQuery(`SELECT stats FROM worker_records WHERE name = \$1`).
		WithArgs("other").
		WillReturnRows(sqlmock.NewRows([]string{"stats"}))

	store := NewPostgresWorkerStore(db)
	require.NoError(t, store.WriteState(context.Background(), "w", domain.WorkerState{Running: true}))

	state, ok, err := store.ReadState(context.Background(), "w")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, state.Paused)

	_, ok, err = store.ReadStats(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLogRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO processing_events \(id,item_id,run_id,step,.*\) VALUES \(\$1,\$2,`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO llm_events \(id,item_id,.*\) VALUES \(\?,\?,`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := domain.ProcessingEvent{ID: "e1", ItemID: "i1", RunID: "r1", Step: domain.StepLLM, Output: map[string]any{"priority": "high"}}
	require.NoError(t, NewPostgresEventLog(db).Record(context.Background(), event))
	require.NoError(t, NewClickHouseEventLog(db, "llm_events").Record(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}
