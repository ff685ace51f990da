package ports

import (
	"context"
	"errors"
	"time"

	"NewsRadar/internal/domain"
)

var (
	// ErrNotFound is returned by repositories when a row is absent.
	ErrNotFound = errors.New("not found")
	// ErrClassifierUnavailable marks a classifier call that never produced a verdict
	// (network error, non-2xx, open circuit), as opposed to a "not relevant" answer.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
)

// Connector turns an opaque source configuration into raw records.
type Connector interface {
	Type() string
	Fetch(ctx context.Context, config map[string]string) ([]domain.RawItem, error)
	Validate(config map[string]string) (bool, string)
}

// SourceRepository persists configured sources and their fetch bookkeeping.
type SourceRepository interface {
	ListEnabled(ctx context.Context) ([]domain.Source, error)
	Get(ctx context.Context, id string) (domain.Source, error)
	Upsert(ctx context.Context, source domain.Source) error
	// RecordFetch stores the outcome of one fetch attempt. A nil fetchErr marks
	// a successful fetch at the given time and clears the last error.
	RecordFetch(ctx context.Context, id string, at time.Time, fetchErr error) error
}

// ItemRepository persists items and answers duplicate checks.
type ItemRepository interface {
	ExistsByExternalID(ctx context.Context, sourceID, externalID string) (bool, error)
	ExistsByHash(ctx context.Context, contentHash string) (bool, error)
	// InsertBatch stores items and returns the ones that were actually inserted;
	// rows conflicting with an existing (source, external id) or hash are skipped.
	InsertBatch(ctx context.Context, items []domain.Item) ([]domain.Item, error)
	UpdateClassification(ctx context.Context, item domain.Item) error
	ListUnclassified(ctx context.Context, limit, maxAttempts int) ([]domain.Item, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RuleRepository lists matching rules.
type RuleRepository interface {
	// ListEnabled returns enabled rules ordered ascending by evaluation order.
	ListEnabled(ctx context.Context) ([]domain.Rule, error)
	Upsert(ctx context.Context, rule domain.Rule) error
}

// EventLog is the write-only audit sink for processing steps.
type EventLog interface {
	Record(ctx context.Context, event domain.ProcessingEvent) error
}

// ClassifyRequest is the payload of POST /classify.
type ClassifyRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// ClassifyResult is a well-formed classifier verdict.
type ClassifyResult struct {
	Relevant            bool     `json:"relevant"`
	RelevanceConfidence float64  `json:"relevance_confidence"`
	Priority            string   `json:"priority,omitempty"`
	AK                  string   `json:"ak,omitempty"`
	AKConfidence        *float64 `json:"ak_confidence,omitempty"`
}

// Classifier is the embedding-confidence pre-filter.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error)
	Health(ctx context.Context) error
}

// CompletionRequest is a provider-agnostic prompt.
type CompletionRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// Completion is a provider-agnostic answer.
type Completion struct {
	Text       string
	Model      string
	Provider   string
	TokensUsed *int
}

// LLMProvider is one language-model backend.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// WorkerStore is the per-worker-name key space shared by every process.
// A successful WriteCommand means the command was accepted, not executed.
type WorkerStore interface {
	WriteState(ctx context.Context, name string, state domain.WorkerState) error
	ReadState(ctx context.Context, name string) (domain.WorkerState, bool, error)
	WriteStats(ctx context.Context, name string, stats domain.WorkerStats) error
	ReadStats(ctx context.Context, name string) (domain.WorkerStats, bool, error)
	WriteCommand(ctx context.Context, name string, cmd domain.WorkerCommand) error
	// TryConsume atomically reads and clears the pending command. Commands older
	// than maxAge at now are discarded and reported as StaleCommand.
	TryConsume(ctx context.Context, name string, now time.Time, maxAge time.Duration) (domain.CommandReceipt, error)
}

// Notifier pushes alerts for high-priority items.
type Notifier interface {
	NotifyItem(ctx context.Context, item domain.Item, sourceName string) error
}

// PoolRefresher refreshes an external resource pool used by connectors.
type PoolRefresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler controls when periodic jobs execute.
type Scheduler interface {
	AddJob(name, spec string, job func(ctx context.Context)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
