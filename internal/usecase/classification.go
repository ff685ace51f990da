package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"NewsRadar/internal/classify"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// ClassificationDeps wires the shared classify-then-persist step.
type ClassificationDeps struct {
	Orchestrator *classify.Orchestrator
	Items        ports.ItemRepository
	Notifier     ports.Notifier
	WriteLock    *sync.Mutex
	Logger       *slog.Logger
}

// Classification runs the orchestrator on one persisted item, stores the
// result and raises alerts. It is shared by inline ingestion and the worker.
//
// Items are claimed before they are run so that inline ingestion and the
// worker never classify the same item at once. Claims are taken while the
// writer lock is held, together with the insert or the backlog read that
// produced the items.
type Classification struct {
	orchestrator *classify.Orchestrator
	items        ports.ItemRepository
	notifier     ports.Notifier
	writeLock    *sync.Mutex
	logger       *slog.Logger

	claimMu sync.Mutex
	claims  map[string]struct{}
}

// NewClassification builds the step; a nil WriteLock gets a private mutex.
func NewClassification(deps ClassificationDeps) *Classification {
	lock := deps.WriteLock
	if lock == nil {
		lock = &sync.Mutex{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Classification{
		orchestrator: deps.Orchestrator,
		items:        deps.Items,
		notifier:     deps.Notifier,
		writeLock:    lock,
		logger:       logger,
		claims:       make(map[string]struct{}),
	}
}

// Available reports whether any classification backend is configured.
func (c *Classification) Available() bool {
	return c != nil && c.orchestrator.Available()
}

// ClaimBacklog reads up to limit unclassified items below maxAttempts and
// claims the ones no other run holds. The caller runs or releases each one.
func (c *Classification) ClaimBacklog(ctx context.Context, limit, maxAttempts int) ([]domain.Item, error) {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	batch, err := c.items.ListUnclassified(ctx, limit, maxAttempts)
	if err != nil {
		return nil, err
	}
	return c.claim(batch), nil
}

// claim marks items as in flight and returns those that were free. Callers
// hold writeLock.
func (c *Classification) claim(items []domain.Item) []domain.Item {
	c.claimMu.Lock()
	defer c.claimMu.Unlock()

	free := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if _, busy := c.claims[it.ID]; busy {
			continue
		}
		c.claims[it.ID] = struct{}{}
		free = append(free, it)
	}
	return free
}

// Release drops the claims on items that will not be run.
func (c *Classification) Release(items ...domain.Item) {
	c.claimMu.Lock()
	defer c.claimMu.Unlock()
	for _, it := range items {
		delete(c.claims, it.ID)
	}
}

// Claimed reports whether a run currently holds id.
func (c *Classification) Claimed(id string) bool {
	c.claimMu.Lock()
	defer c.claimMu.Unlock()
	_, ok := c.claims[id]
	return ok
}

// Run classifies item in place and persists the outcome, then releases the
// item's claim. Backend failures are folded into the outcome; only the store
// write can fail.
func (c *Classification) Run(ctx context.Context, item *domain.Item, sourceName string) (classify.Outcome, error) {
	defer c.Release(*item)
	outcome := c.orchestrator.Process(ctx, item, sourceName)

	c.writeLock.Lock()
	err := c.items.UpdateClassification(ctx, *item)
	c.writeLock.Unlock()
	if err != nil {
		return outcome, fmt.Errorf("store classification of %s: %w", item.ID, err)
	}

	if c.notifier != nil && outcome.PriorityAfter > outcome.PriorityBefore {
		if err := c.notifier.NotifyItem(ctx, *item, sourceName); err != nil {
			c.logger.Warn("alert failed", "item", item.ID, "error", err)
		}
	}
	return outcome, nil
}
