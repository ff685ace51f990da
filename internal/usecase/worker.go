package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

var (
	// ErrWorkerNotRunning is returned by Pause and Resume on a stopped worker.
	ErrWorkerNotRunning = errors.New("worker is not running")
	// ErrNoClassifier is returned by Start when no classification backend is configured.
	ErrNoClassifier = errors.New("no classification backend configured")
)

// WorkerRecorder receives per-item worker metrics.
type WorkerRecorder interface {
	WorkerProcessed(worker string, priorityChanged bool)
	WorkerError(worker string)
}

// WorkerConfig tunes the background classification loop.
type WorkerConfig struct {
	Name              string
	BatchSize         int
	IdleInterval      time.Duration
	MaxAttempts       int
	StatsSyncInterval time.Duration
	PollInterval      time.Duration
	CommandTimeout    time.Duration
}

// WorkerDeps wires the worker's collaborators.
type WorkerDeps struct {
	Sources        ports.SourceRepository
	Classification *Classification
	Store          ports.WorkerStore
	Metrics        WorkerRecorder
	Logger         *slog.Logger
}

// Worker continuously classifies items that still lack a classification.
// It publishes its state and stats through the worker store and executes
// commands addressed to its name.
type Worker struct {
	cfg            WorkerConfig
	sources        ports.SourceRepository
	classification *Classification
	store          ports.WorkerStore
	metrics        WorkerRecorder
	logger         *slog.Logger
	now            func() time.Time

	mu                 sync.Mutex
	running            bool
	paused             bool
	stoppedDueToErrors bool
	stop               chan struct{}
	done               chan struct{}
	wake               chan struct{}
	stats              domain.WorkerStats
	sourceNames        map[string]string
}

// NewWorker builds a stopped worker.
func NewWorker(cfg WorkerConfig, deps WorkerDeps) *Worker {
	if cfg.Name == "" {
		cfg.Name = "classification"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 30 * time.Second
	}
	if cfg.StatsSyncInterval <= 0 {
		cfg.StatsSyncInterval = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 60 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:            cfg,
		sources:        deps.Sources,
		classification: deps.Classification,
		store:          deps.Store,
		metrics:        deps.Metrics,
		logger:         logger.With("worker", cfg.Name),
		now:            time.Now,
		wake:           make(chan struct{}, 1),
		stats:          domain.WorkerStats{Counters: map[string]int64{}},
		sourceNames:    map[string]string{},
	}
}

// Name returns the coordination key of the worker.
func (w *Worker) Name() string {
	return w.cfg.Name
}

// Run owns the worker for the lifetime of ctx: it polls commands (also while
// stopped or paused) and syncs stats. On exit the loop is stopped.
func (w *Worker) Run(ctx context.Context, autoStart bool) {
	if autoStart {
		if err := w.Start(ctx); err != nil {
			w.logger.Warn("auto start failed", "error", err)
		}
	} else {
		w.publishState(ctx)
	}

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	statsTick := time.NewTicker(w.cfg.StatsSyncInterval)
	defer statsTick.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := w.Stop(stopCtx); err != nil {
				w.logger.Warn("stop on shutdown", "error", err)
			}
			cancel()
			return
		case <-poll.C:
			w.PollCommand(ctx)
		case <-statsTick.C:
			w.syncStats(ctx)
		}
	}
}

// PollCommand consumes and executes the pending command, if any.
func (w *Worker) PollCommand(ctx context.Context) {
	if w.store == nil {
		return
	}
	receipt, err := w.store.TryConsume(ctx, w.cfg.Name, w.now().UTC(), w.cfg.CommandTimeout)
	if err != nil {
		w.logger.Warn("poll command", "error", err)
		return
	}
	switch receipt.Status {
	case domain.NoCommand:
		return
	case domain.StaleCommand:
		w.logger.Info("stale command discarded")
		return
	}

	cmd := receipt.Command
	w.logger.Info("command received", "action", cmd.Action, "issued_at", cmd.IssuedAt)
	if err := w.Apply(ctx, cmd.Action); err != nil {
		w.logger.Warn("command failed", "action", cmd.Action, "error", err)
	}
}

// Apply executes action against the local loop.
func (w *Worker) Apply(ctx context.Context, action domain.WorkerAction) error {
	switch action {
	case domain.ActionStart:
		return w.Start(ctx)
	case domain.ActionStop:
		return w.Stop(ctx)
	case domain.ActionPause:
		return w.Pause(ctx)
	case domain.ActionResume:
		return w.Resume(ctx)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// Start launches the loop. Starting a running worker is a no-op. The loop
// inherits ctx values and its cancellation.
func (w *Worker) Start(ctx context.Context) error {
	if !w.classification.Available() {
		return ErrNoClassifier
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	now := w.now().UTC()
	w.running = true
	w.paused = false
	w.stoppedDueToErrors = false
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.stats.StartedAt = &now
	stop, done := w.stop, w.done
	w.mu.Unlock()

	w.logger.Info("worker started")
	w.publishState(ctx)
	go w.loop(ctx, stop, done)
	return nil
}

// Stop signals the loop and waits until the in-flight item is finished.
// Stopping a stopped worker is a no-op.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.paused = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("wait for worker loop: %w", ctx.Err())
	}

	w.logger.Info("worker stopped")
	w.publishState(context.WithoutCancel(ctx))
	w.syncStats(context.WithoutCancel(ctx))
	return err
}

// Pause suspends batch processing without ending the loop.
func (w *Worker) Pause(ctx context.Context) error {
	return w.setPaused(ctx, true)
}

// Resume continues batch processing after Pause.
func (w *Worker) Resume(ctx context.Context) error {
	return w.setPaused(ctx, false)
}

func (w *Worker) setPaused(ctx context.Context, paused bool) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return ErrWorkerNotRunning
	}
	changed := w.paused != paused
	w.paused = paused
	w.mu.Unlock()

	if !changed {
		return nil
	}
	if !paused {
		w.nudge()
	}
	w.logger.Info("worker paused", "paused", paused)
	w.publishState(ctx)
	return nil
}

// State returns the local view of the worker state.
func (w *Worker) State() domain.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

func (w *Worker) stateLocked() domain.WorkerState {
	return domain.WorkerState{
		Running:            w.running,
		Paused:             w.paused,
		StoppedDueToErrors: w.stoppedDueToErrors,
		UpdatedAt:          w.now().UTC(),
	}
}

// Stats returns a copy of the local counters.
func (w *Worker) Stats() domain.WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.statsLocked()
}

func (w *Worker) statsLocked() domain.WorkerStats {
	out := w.stats
	out.Counters = make(map[string]int64, len(w.stats.Counters))
	for k, v := range w.stats.Counters {
		out.Counters[k] = v
	}
	return out
}

func (w *Worker) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		if stopped(stop) || ctx.Err() != nil {
			return
		}

		if !w.isPaused() {
			w.processBatch(ctx, stop)
		}

		timer := time.NewTimer(w.cfg.IdleInterval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, stop <-chan struct{}) {
	batch, err := w.classification.ClaimBacklog(ctx, w.cfg.BatchSize, w.cfg.MaxAttempts)
	if err != nil {
		w.logger.Warn("load batch", "error", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	for i := range batch {
		// Checked between items only; an item in flight always completes.
		if stopped(stop) || w.isPaused() || ctx.Err() != nil {
			w.classification.Release(batch[i:]...)
			break
		}
		w.processItem(ctx, &batch[i])
	}

	now := w.now().UTC()
	w.mu.Lock()
	w.stats.LastBatchAt = &now
	w.mu.Unlock()
}

func (w *Worker) processItem(ctx context.Context, item *domain.Item) {
	outcome, err := w.classification.Run(ctx, item, w.sourceName(ctx, item.SourceID))

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.Errors++
		if w.metrics != nil {
			w.metrics.WorkerError(w.cfg.Name)
		}
		w.logger.Warn("classify item", "item", item.ID, "error", err)
		return
	}

	w.stats.Processed++
	changed := outcome.Changed()
	if changed {
		w.stats.PriorityChanged++
	}
	for key, hit := range map[string]bool{
		"classifier_used":   outcome.ClassifierUsed,
		"classifier_failed": outcome.ClassifierFailed,
		"llm_used":          outcome.LLMUsed,
		"llm_skipped":       outcome.LLMSkipped,
		"deferred":          outcome.Deferred,
	} {
		if hit {
			w.stats.Counters[key]++
		}
	}
	if w.metrics != nil {
		w.metrics.WorkerProcessed(w.cfg.Name, changed)
	}
}

func (w *Worker) sourceName(ctx context.Context, id string) string {
	w.mu.Lock()
	name, ok := w.sourceNames[id]
	w.mu.Unlock()
	if ok {
		return name
	}

	name = id
	if w.sources != nil {
		if src, err := w.sources.Get(ctx, id); err == nil {
			name = sourceName(src)
		}
	}
	w.mu.Lock()
	w.sourceNames[id] = name
	w.mu.Unlock()
	return name
}

func (w *Worker) isPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

func (w *Worker) nudge() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) publishState(ctx context.Context) {
	if w.store == nil {
		return
	}
	if err := w.store.WriteState(ctx, w.cfg.Name, w.State()); err != nil {
		w.logger.Warn("publish state", "error", err)
	}
}

func (w *Worker) syncStats(ctx context.Context) {
	if w.store == nil {
		return
	}
	w.mu.Lock()
	w.stats.SyncedAt = w.now().UTC()
	stats := w.statsLocked()
	w.mu.Unlock()
	if err := w.store.WriteStats(ctx, w.cfg.Name, stats); err != nil {
		w.logger.Warn("sync stats", "error", err)
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
