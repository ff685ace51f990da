package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// Result summarizes one deduplication pass over a connector batch.
type Result struct {
	Items      []domain.Item
	Duplicates int
}

// Deduplicator converts raw records into new items, discarding duplicates.
type Deduplicator struct {
	items  ports.ItemRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewDeduplicator wires the item repository used for duplicate lookups.
func NewDeduplicator(items ports.ItemRepository, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{items: items, logger: logger, now: time.Now}
}

// Filter normalizes raws in connector order and returns the non-duplicates as
// unsaved items. Priority fields are left for the rule engine.
func (d *Deduplicator) Filter(ctx context.Context, source domain.Source, raws []domain.RawItem) (Result, error) {
	var (
		result     Result
		seenIDs    = map[string]struct{}{}
		seenHashes = map[string]struct{}{}
		fetchedAt  = d.now().UTC()
	)

	for _, raw := range raws {
		item := d.build(source, raw, fetchedAt)

		dup, reason, err := d.isDuplicate(ctx, item, seenIDs, seenHashes)
		if err != nil {
			return Result{}, err
		}
		if dup {
			result.Duplicates++
			d.logger.Debug("duplicate discarded",
				"source", source.ID, "external_id", item.ExternalID, "reason", reason)
			continue
		}

		seenIDs[item.ExternalID] = struct{}{}
		seenHashes[item.ContentHash] = struct{}{}
		result.Items = append(result.Items, item)
	}

	return result, nil
}

func (d *Deduplicator) build(source domain.Source, raw domain.RawItem, fetchedAt time.Time) domain.Item {
	title := NormalizeText(raw.Title)
	content := NormalizeText(raw.Content)

	externalID := raw.ExternalID
	if externalID == "" {
		externalID = raw.URL
	}

	publishedAt := raw.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = fetchedAt
	}

	item := domain.Item{
		ID:          uuid.NewString(),
		SourceID:    source.ID,
		ExternalID:  externalID,
		Title:       title,
		Content:     content,
		URL:         raw.URL,
		Author:      raw.Author,
		PublishedAt: publishedAt.UTC(),
		FetchedAt:   fetchedAt,
		ContentHash: ContentHash(content, title, raw.URL),
		Analysis:    domain.Analysis{SchemaVersion: domain.AnalysisSchemaVersion},
	}
	if len(raw.Metadata) > 0 {
		item.Analysis.Source = raw.Metadata
	}
	return item
}

func (d *Deduplicator) isDuplicate(ctx context.Context, item domain.Item, seenIDs, seenHashes map[string]struct{}) (bool, string, error) {
	if _, ok := seenIDs[item.ExternalID]; ok {
		return true, "external_id in batch", nil
	}
	if _, ok := seenHashes[item.ContentHash]; ok {
		return true, "content_hash in batch", nil
	}

	exists, err := d.items.ExistsByExternalID(ctx, item.SourceID, item.ExternalID)
	if err != nil {
		return false, "", fmt.Errorf("check external id %s: %w", item.ExternalID, err)
	}
	if exists {
		return true, "external_id", nil
	}

	exists, err = d.items.ExistsByHash(ctx, item.ContentHash)
	if err != nil {
		return false, "", fmt.Errorf("check content hash: %w", err)
	}
	if exists {
		return true, "content_hash", nil
	}

	return false, "", nil
}
