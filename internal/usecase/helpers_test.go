package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"NewsRadar/internal/classify"
	"NewsRadar/internal/connector"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/infrastructure/storage"
	"NewsRadar/internal/ingest"
	"NewsRadar/internal/ports"
	"NewsRadar/internal/rules"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubConnector serves fixed raw items keyed by the source config "id".
type stubConnector struct {
	mu      sync.Mutex
	items   map[string][]domain.RawItem
	fail    map[string]error
	calls   []string
	started chan string
	release chan struct{}
}

func newStubConnector() *stubConnector {
	return &stubConnector{items: map[string][]domain.RawItem{}, fail: map[string]error{}}
}

func (s *stubConnector) Type() string { return "stub" }

func (s *stubConnector) Validate(config map[string]string) (bool, string) {
	if config["id"] == "" {
		return false, "id is required"
	}
	return true, ""
}

func (s *stubConnector) Fetch(ctx context.Context, config map[string]string) ([]domain.RawItem, error) {
	id := config["id"]
	s.mu.Lock()
	s.calls = append(s.calls, id)
	started, release := s.started, s.release
	items, err := s.items[id], s.fail[id]
	s.mu.Unlock()

	if started != nil {
		started <- id
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return items, err
}

func (s *stubConnector) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// stubLLM answers with text or err. When gate is set, each call signals
// entered and blocks until gate is closed.
type stubLLM struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	entered chan struct{}
	gate    chan struct{}
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	s.mu.Lock()
	s.calls++
	text, err, entered, gate := s.text, s.err, s.entered, s.gate
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ports.Completion{}, ctx.Err()
		}
	}
	if err != nil {
		return ports.Completion{}, err
	}
	return ports.Completion{Text: text, Model: "stub-1", Provider: "stub"}, nil
}

func (s *stubLLM) answer(text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text, s.err = text, err
}

func (s *stubLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubClassifier struct {
	confidence float64
}

func (s stubClassifier) Classify(ctx context.Context, req ports.ClassifyRequest) (ports.ClassifyResult, error) {
	return ports.ClassifyResult{Relevant: true, RelevanceConfidence: s.confidence}, nil
}

func (s stubClassifier) Health(ctx context.Context) error { return nil }

type recordingNotifier struct {
	mu    sync.Mutex
	items []domain.Item
}

func (r *recordingNotifier) NotifyItem(ctx context.Context, item domain.Item, sourceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return nil
}

func (r *recordingNotifier) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

var errBoom = errors.New("boom")

type fixture struct {
	store          *storage.MemoryStore
	connector      *stubConnector
	classification *Classification
	pipeline       *Pipeline
	scheduler      *Scheduler
	now            time.Time
}

type fixtureOptions struct {
	classifier  ports.Classifier
	llm         ports.LLMProvider
	notifier    ports.Notifier
	inline      bool
	training    bool
	parallelism int
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	logger := quietLogger()
	store := storage.NewMemoryStore()
	conn := newStubConnector()
	lock := &sync.Mutex{}

	orch := classify.NewOrchestrator(classify.Config{}, classify.Deps{
		Classifier: opts.classifier,
		LLM:        opts.llm,
		Events:     store.Events,
		Taxonomy:   classify.Taxonomy{Categories: []string{"Finanzen"}, CatchAll: "sonstiges"},
		Logger:     logger,
	})
	cls := NewClassification(ClassificationDeps{
		Orchestrator: orch,
		Items:        store.Items,
		Notifier:     opts.notifier,
		WriteLock:    lock,
		Logger:       logger,
	})

	pipeline := NewPipeline(PipelineDeps{
		Sources:        store.Sources,
		Items:          store.Items,
		Connectors:     connector.NewRegistry(conn),
		Deduplicator:   ingest.NewDeduplicator(store.Items, logger),
		Rules:          rules.NewEngine(store.Rules, logger),
		Classification: cls,
		WriteLock:      lock,
		Logger:         logger,
	}, PipelineOptions{InlineClassification: opts.inline, TrainingMode: opts.training})

	parallelism := opts.parallelism
	if parallelism == 0 {
		parallelism = 1
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sched := NewScheduler(SchedulerConfig{Parallelism: parallelism, Retention: 90 * 24 * time.Hour}, SchedulerDeps{
		Pipeline: pipeline,
		Sources:  store.Sources,
		Items:    store.Items,
		Logger:   logger,
	})
	sched.now = func() time.Time { return now }

	high := domain.PriorityHigh
	require.NoError(t, store.Rules.Upsert(context.Background(), domain.Rule{
		ID: "budget", Name: "budget", Type: domain.RuleKeyword, Pattern: "haushaltskürzungen, sparpaket",
		PriorityBoost: 30, TargetPriority: &high, Enabled: true, Order: 1,
	}))

	return &fixture{store: store, connector: conn, classification: cls, pipeline: pipeline, scheduler: sched, now: now}
}

func (f *fixture) addSource(id string, lastFetch *time.Time, raws ...domain.RawItem) {
	f.store.Sources.Put(domain.Source{
		ID:                   id,
		Name:                 "Source " + id,
		Type:                 "stub",
		Config:               map[string]string{"id": id},
		Enabled:              true,
		FetchIntervalMinutes: 60,
		LastFetchAt:          lastFetch,
	})
	f.connector.mu.Lock()
	f.connector.items[id] = raws
	f.connector.mu.Unlock()
}

func timePtr(t time.Time) *time.Time { return &t }

func budgetItems() []domain.RawItem {
	return []domain.RawItem{
		{ExternalID: "1", Title: "Haushaltskürzungen beschlossen", Content: "Der Bundestag hat das Sparpaket verabschiedet.", URL: "https://example.org/1"},
		{ExternalID: "2", Title: "Wetter morgen", Content: "Sonnig bei 20 Grad.", URL: "https://example.org/2"},
	}
}
