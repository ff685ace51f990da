package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ingest"
	"NewsRadar/internal/ports"
	"NewsRadar/internal/rules"
)

// ErrSourceDisabled is returned when a one-off fetch targets a disabled source.
var ErrSourceDisabled = errors.New("source is disabled")

// ConnectorResolver looks up the connector for a source type tag.
type ConnectorResolver interface {
	Resolve(sourceType string) (ports.Connector, error)
}

// FetchRecorder receives ingestion metrics.
type FetchRecorder interface {
	ObserveFetch(sourceID, outcome string, elapsed time.Duration)
	AddIngested(sourceID string, inserted, duplicates int)
	ScanSkipped()
}

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Sources        ports.SourceRepository
	Items          ports.ItemRepository
	Connectors     ConnectorResolver
	Deduplicator   *ingest.Deduplicator
	Rules          *rules.Engine
	Classification *Classification
	Metrics        FetchRecorder
	WriteLock      *sync.Mutex
	Logger         *slog.Logger
}

// PipelineOptions toggles inline classification.
type PipelineOptions struct {
	InlineClassification bool
	// TrainingMode favors ingest speed: classification is left to the worker.
	TrainingMode bool
}

// FetchResult summarizes one source fetch.
type FetchResult struct {
	SourceID   string
	Fetched    int
	Inserted   int
	Duplicates int
	Classified int
	Err        error
}

// Pipeline implements the per-source ingestion workflow:
// connector → dedup → rules → batch insert → optional inline classification.
type Pipeline struct {
	sources        ports.SourceRepository
	items          ports.ItemRepository
	connectors     ConnectorResolver
	dedup          *ingest.Deduplicator
	rules          *rules.Engine
	classification *Classification
	metrics        FetchRecorder
	writeLock      *sync.Mutex
	opts           PipelineOptions
	logger         *slog.Logger
	now            func() time.Time
}

// NewPipeline constructs the ingestion component.
func NewPipeline(deps PipelineDeps, opts PipelineOptions) *Pipeline {
	lock := deps.WriteLock
	if lock == nil {
		lock = &sync.Mutex{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		sources:        deps.Sources,
		items:          deps.Items,
		connectors:     deps.Connectors,
		dedup:          deps.Deduplicator,
		rules:          deps.Rules,
		classification: deps.Classification,
		metrics:        deps.Metrics,
		writeLock:      lock,
		opts:           opts,
		logger:         logger,
		now:            time.Now,
	}
}

// FetchSource runs one fetch cycle for source. Failures are recorded on the
// source and returned in the result; they never panic or abort the caller.
func (p *Pipeline) FetchSource(ctx context.Context, source domain.Source) FetchResult {
	start := p.now()
	result, err := p.fetch(ctx, source)
	result.SourceID = source.ID
	result.Err = err

	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	p.writeLock.Lock()
	recordErr := p.sources.RecordFetch(context.WithoutCancel(ctx), source.ID, p.now().UTC(), err)
	p.writeLock.Unlock()
	if recordErr != nil {
		p.logger.Error("record fetch outcome", "source", source.ID, "error", recordErr)
		if result.Err == nil {
			result.Err = recordErr
			outcome = "error"
		}
	}

	if p.metrics != nil {
		p.metrics.ObserveFetch(source.ID, outcome, p.now().Sub(start))
		p.metrics.AddIngested(source.ID, result.Inserted, result.Duplicates)
	}

	if result.Err != nil {
		p.logger.Warn("source fetch failed", "source", source.ID, "error", result.Err)
	} else {
		p.logger.Info("source fetched",
			"source", source.ID,
			"fetched", result.Fetched,
			"inserted", result.Inserted,
			"duplicates", result.Duplicates,
			"classified", result.Classified)
	}
	return result
}

func (p *Pipeline) fetch(ctx context.Context, source domain.Source) (FetchResult, error) {
	var result FetchResult

	conn, err := p.connectors.Resolve(source.Type)
	if err != nil {
		return result, err
	}
	if ok, msg := conn.Validate(source.Config); !ok {
		return result, fmt.Errorf("invalid %s config: %s", source.Type, msg)
	}

	raws, err := conn.Fetch(ctx, source.Config)
	if err != nil {
		return result, fmt.Errorf("fetch %s: %w", source.Type, err)
	}
	result.Fetched = len(raws)

	filtered, err := p.dedup.Filter(ctx, source, raws)
	if err != nil {
		return result, fmt.Errorf("deduplicate: %w", err)
	}
	result.Duplicates = filtered.Duplicates
	if len(filtered.Items) == 0 {
		return result, nil
	}

	ruleSet, err := p.rules.Load(ctx)
	if err != nil {
		return result, err
	}
	for i := range filtered.Items {
		ruleSet.Apply(&filtered.Items[i])
	}

	inline := p.inlineClassification()
	p.writeLock.Lock()
	inserted, err := p.items.InsertBatch(ctx, filtered.Items)
	if err == nil && inline {
		// Claimed before the lock is released so the worker cannot pick them up.
		inserted = p.classification.claim(inserted)
	}
	p.writeLock.Unlock()
	if err != nil {
		return result, fmt.Errorf("insert items: %w", err)
	}
	result.Inserted = len(inserted)
	// Rows lost to a concurrent insert of the same content count as duplicates.
	result.Duplicates += len(filtered.Items) - len(inserted)

	if !inline {
		return result, nil
	}
	for i := range inserted {
		if ctx.Err() != nil {
			p.classification.Release(inserted[i:]...)
			break
		}
		outcome, err := p.classification.Run(ctx, &inserted[i], sourceName(source))
		if err != nil {
			// The item stays persisted at its rule priority for the worker to retry.
			p.logger.Warn("inline classification failed", "item", inserted[i].ID, "error", err)
			continue
		}
		if outcome.ClassifierUsed || outcome.LLMUsed {
			result.Classified++
		}
	}
	return result, nil
}

func (p *Pipeline) inlineClassification() bool {
	return p.opts.InlineClassification && !p.opts.TrainingMode && p.classification.Available()
}

// FetchByID loads a source and fetches it regardless of its due state.
func (p *Pipeline) FetchByID(ctx context.Context, id string) (FetchResult, error) {
	source, err := p.sources.Get(ctx, id)
	if err != nil {
		return FetchResult{SourceID: id}, err
	}
	if !source.Enabled {
		return FetchResult{SourceID: id}, fmt.Errorf("source %s: %w", id, ErrSourceDisabled)
	}
	return p.FetchSource(ctx, source), nil
}

// IsNotFound reports whether err means the requested source does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ports.ErrNotFound)
}

func sourceName(s domain.Source) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
