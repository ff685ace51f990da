package classify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// StageRecorder receives per-stage outcomes for metrics.
type StageRecorder interface {
	ObserveStage(stage, outcome string)
}

// Config tunes the orchestrator.
type Config struct {
	Thresholds   Thresholds
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Deps wires the optional backends. Classifier and LLM may each be nil.
type Deps struct {
	Classifier ports.Classifier
	LLM        ports.LLMProvider
	Events     ports.EventLog
	Taxonomy   Taxonomy
	Metrics    StageRecorder
	Logger     *slog.Logger
}

// Orchestrator upgrades an item's priority with progressively more expensive signals.
type Orchestrator struct {
	classifier ports.Classifier
	llm        ports.LLMProvider
	events     ports.EventLog
	taxonomy   Taxonomy
	metrics    StageRecorder
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator builds the tiered classifier.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		classifier: deps.Classifier,
		llm:        deps.LLM,
		events:     deps.Events,
		taxonomy:   deps.Taxonomy,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Available reports whether at least one classification backend is configured.
func (o *Orchestrator) Available() bool {
	return o != nil && (o.classifier != nil || o.llm != nil)
}

// Outcome describes one orchestrator run.
type Outcome struct {
	RunID            string
	PriorityBefore   domain.Priority
	PriorityAfter    domain.Priority
	ClassifierUsed   bool
	ClassifierFailed bool
	LLMUsed          bool
	LLMSkipped       bool
	// Deferred is set when the LLM stage was due but no provider produced a usable answer.
	Deferred bool
	LLMError error
}

// Changed reports whether the run moved the item to another tier.
func (o Outcome) Changed() bool {
	return o.PriorityBefore != o.PriorityAfter
}

// Process runs Stage A (when configured) and Stage B (unless skipped) against
// item and mutates its priority, score and analysis. It never fails: backend
// errors are recorded and reflected in the outcome.
func (o *Orchestrator) Process(ctx context.Context, item *domain.Item, sourceName string) Outcome {
	out := Outcome{RunID: uuid.NewString(), PriorityBefore: item.Priority}
	item.ClassifyAttempts++
	if item.Analysis.SchemaVersion == 0 {
		item.Analysis.SchemaVersion = domain.AnalysisSchemaVersion
	}

	skipLLM := false
	if o.classifier != nil {
		var ok bool
		ok, skipLLM = o.runClassifier(ctx, item, sourceName, out.RunID)
		out.ClassifierUsed = ok
		out.ClassifierFailed = !ok
	}

	switch {
	case skipLLM:
		out.LLMSkipped = true
		o.record(ctx, domain.ProcessingEvent{
			ItemID:         item.ID,
			RunID:          out.RunID,
			Step:           domain.StepLLM,
			StartedAt:      o.now().UTC(),
			PriorityBefore: item.Priority,
			PriorityAfter:  item.Priority,
			Skipped:        true,
			Success:        true,
		})
		o.observe("llm", "skipped")
	case o.llm != nil:
		if err := o.runLLM(ctx, item, sourceName, out.RunID); err != nil {
			out.Deferred = true
			out.LLMError = err
		} else {
			out.LLMUsed = true
		}
	}

	// A deferred LLM stage leaves the item unclassified so the worker retries
	// it until the attempt limit.
	classified := out.LLMUsed || skipLLM || (out.ClassifierUsed && o.llm == nil)
	now := o.now().UTC()
	if classified {
		item.ClassifiedAt = &now
	}
	out.PriorityAfter = item.Priority
	item.Analysis.Runs = append(item.Analysis.Runs, domain.RunProvenance{
		RunID:          out.RunID,
		At:             now,
		PriorityBefore: out.PriorityBefore,
		PriorityAfter:  out.PriorityAfter,
		ClassifierUsed: out.ClassifierUsed,
		LLMUsed:        out.LLMUsed,
		LLMSkipped:     out.LLMSkipped,
		Deferred:       out.Deferred,
	})
	return out
}

func (o *Orchestrator) runClassifier(ctx context.Context, item *domain.Item, sourceName, runID string) (ok, skipLLM bool) {
	req := ports.ClassifyRequest{Title: item.Title, Content: item.Content, Source: sourceName}
	started := o.now().UTC()
	before := item.Priority

	res, err := o.classifier.Classify(ctx, req)
	elapsed := o.now().Sub(started)
	if err != nil {
		o.logger.Warn("classifier failed, continuing without it", "item", item.ID, "error", err)
		o.record(ctx, domain.ProcessingEvent{
			ItemID:         item.ID,
			RunID:          runID,
			Step:           domain.StepClassifier,
			StartedAt:      started,
			Duration:       elapsed,
			Provider:       "classifier",
			PriorityBefore: before,
			PriorityAfter:  before,
			Error:          err.Error(),
			Input:          map[string]any{"title": req.Title, "source": req.Source},
		})
		o.observe("classifier", "failed")
		return false, false
	}

	decision := Decide(res.RelevanceConfidence, o.cfg.Thresholds)
	item.Priority = decision.Priority
	item.PriorityScore = decision.Score
	item.Analysis.Classifier = &domain.ClassifierOutcome{
		Relevant:     res.Relevant,
		Confidence:   res.RelevanceConfidence,
		Priority:     decision.Priority,
		Score:        decision.Score,
		SkipLLM:      decision.SkipLLM,
		SuggestedAK:  res.AK,
		AKConfidence: res.AKConfidence,
		At:           started,
	}

	confidence := res.RelevanceConfidence
	o.record(ctx, domain.ProcessingEvent{
		ItemID:         item.ID,
		RunID:          runID,
		Step:           domain.StepClassifier,
		StartedAt:      started,
		Duration:       elapsed,
		Provider:       "classifier",
		Confidence:     &confidence,
		PriorityBefore: before,
		PriorityAfter:  decision.Priority,
		Success:        true,
		Input:          map[string]any{"title": req.Title, "source": req.Source},
		Output: map[string]any{
			"relevant":             res.Relevant,
			"relevance_confidence": res.RelevanceConfidence,
			"priority":             res.Priority,
			"ak":                   res.AK,
			"skip_llm":             decision.SkipLLM,
		},
	})
	if decision.SkipLLM {
		o.observe("classifier", "skip")
	} else {
		o.observe("classifier", "pass")
	}
	return true, decision.SkipLLM
}

func (o *Orchestrator) runLLM(ctx context.Context, item *domain.Item, sourceName, runID string) error {
	started := o.now().UTC()
	before := item.Priority

	comp, err := o.llm.Complete(ctx, ports.CompletionRequest{
		Prompt:      BuildPrompt(*item, sourceName, o.taxonomy),
		System:      o.cfg.SystemPrompt,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err == nil {
		var assessment Assessment
		assessment, err = ParseAssessment(comp.Text)
		if err == nil {
			o.applyAssessment(item, assessment, comp, started)
			o.record(ctx, domain.ProcessingEvent{
				ItemID:         item.ID,
				RunID:          runID,
				Step:           domain.StepLLM,
				StartedAt:      started,
				Duration:       o.now().Sub(started),
				Provider:       comp.Provider,
				Model:          comp.Model,
				PriorityBefore: before,
				PriorityAfter:  item.Priority,
				Success:        true,
				Input:          map[string]any{"title": item.Title, "source": sourceName},
				Output: map[string]any{
					"relevant":  assessment.Relevant,
					"priority":  assessment.Priority.String(),
					"ak":        item.Analysis.LLM.Category,
					"tags":      item.Analysis.LLM.Tags,
					"reasoning": assessment.Reasoning,
				},
			})
			o.observe("llm", "success")
			return nil
		}
	}

	o.logger.Warn("llm stage deferred", "item", item.ID, "error", err)
	o.record(ctx, domain.ProcessingEvent{
		ItemID:         item.ID,
		RunID:          runID,
		Step:           domain.StepLLM,
		StartedAt:      started,
		Duration:       o.now().Sub(started),
		Provider:       comp.Provider,
		Model:          comp.Model,
		PriorityBefore: before,
		PriorityAfter:  before,
		Error:          err.Error(),
		Input:          map[string]any{"title": item.Title, "source": sourceName},
	})
	o.observe("llm", "deferred")
	return err
}

func (o *Orchestrator) applyAssessment(item *domain.Item, a Assessment, comp ports.Completion, at time.Time) {
	category, hint := o.taxonomy.Category(a.AK)
	tags, tagHints := o.taxonomy.FilterTags(a.Tags)

	item.Priority = a.Priority
	item.PriorityScore = domain.TierScore(a.Priority)
	item.Analysis.LLM = &domain.LLMOutcome{
		Relevant:       a.Relevant,
		Priority:       a.Priority,
		Category:       category,
		CategoryHint:   hint,
		Tags:           tags,
		TagSuggestions: tagHints,
		Reasoning:      a.Reasoning,
		Provider:       comp.Provider,
		Model:          comp.Model,
		TokensUsed:     comp.TokensUsed,
		At:             at,
	}
}

func (o *Orchestrator) record(ctx context.Context, event domain.ProcessingEvent) {
	if o.events == nil {
		return
	}
	event.ID = uuid.NewString()
	if err := o.events.Record(ctx, event); err != nil {
		o.logger.Warn("record processing event", "item", event.ItemID, "step", event.Step, "error", err)
	}
}

func (o *Orchestrator) observe(stage, outcome string) {
	if o.metrics != nil {
		o.metrics.ObserveStage(stage, outcome)
	}
}
