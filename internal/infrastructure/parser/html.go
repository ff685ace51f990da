package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// HTMLConnector scrapes listing pages with CSS selectors. Source config keys:
//
//	url          comma-separated page URLs
//	item         selector for one entry (required)
//	title        selector for the title inside an entry (required)
//	link         selector for the anchor inside an entry (defaults to "a")
//	body         selector for the teaser text
//	date         selector for the publication date; a datetime attribute wins over text
//	date_layout  Go time layout for the date text (defaults to RFC 3339)
type HTMLConnector struct {
	fetcher pageFetcher
	now     func() time.Time
}

var _ ports.Connector = (*HTMLConnector)(nil)

// NewHTMLConnector wires an HTTP client and the User-Agent sent with every page request.
func NewHTMLConnector(client *http.Client, userAgent string) *HTMLConnector {
	return &HTMLConnector{fetcher: newPageFetcher(client, userAgent), now: time.Now}
}

// Type identifies the connector inside the registry.
func (h *HTMLConnector) Type() string {
	return "html"
}

// Validate checks the source configuration without touching the network.
func (h *HTMLConnector) Validate(config map[string]string) (bool, string) {
	if ok, msg := validateURLs(config["url"]); !ok {
		return false, msg
	}
	for _, key := range []string{"item", "title"} {
		if strings.TrimSpace(config[key]) == "" {
			return false, key + " selector is required"
		}
	}
	if config["date_layout"] != "" && config["date"] == "" {
		return false, "date_layout requires a date selector"
	}
	return true, ""
}

// Fetch loads every page and maps matching entries to raw items.
func (h *HTMLConnector) Fetch(ctx context.Context, config map[string]string) ([]domain.RawItem, error) {
	if ok, msg := h.Validate(config); !ok {
		return nil, fmt.Errorf("html config: %s", msg)
	}

	sel := selectorsFrom(config)
	results := make([]domain.RawItem, 0)
	seen := map[string]struct{}{}

	for _, pageURL := range splitURLs(config["url"]) {
		base, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid page url %s: %w", pageURL, err)
		}

		doc, err := h.fetcher.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", pageURL, err)
		}

		doc.Find(sel.item).Each(func(_ int, entry *goquery.Selection) {
			item, ok := h.parseItem(entry, sel, base)
			if !ok {
				return
			}
			if _, dup := seen[item.ExternalID]; dup {
				return
			}
			seen[item.ExternalID] = struct{}{}
			results = append(results, item)
		})
	}

	return results, nil
}

type selectors struct {
	item, title, link, body, date, dateLayout string
}

func selectorsFrom(config map[string]string) selectors {
	s := selectors{
		item:       strings.TrimSpace(config["item"]),
		title:      strings.TrimSpace(config["title"]),
		link:       strings.TrimSpace(config["link"]),
		body:       strings.TrimSpace(config["body"]),
		date:       strings.TrimSpace(config["date"]),
		dateLayout: config["date_layout"],
	}
	if s.link == "" {
		s.link = "a"
	}
	if s.dateLayout == "" {
		s.dateLayout = time.RFC3339
	}
	return s
}

func (h *HTMLConnector) parseItem(entry *goquery.Selection, sel selectors, base *url.URL) (domain.RawItem, bool) {
	title := collapse(entry.Find(sel.title).First().Text())
	if title == "" {
		return domain.RawItem{}, false
	}

	var link string
	anchor := entry.Find(sel.link).First()
	if goquery.NodeName(entry) == "a" && anchor.Length() == 0 {
		anchor = entry
	}
	if href, ok := anchor.Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			link = base.ResolveReference(ref).String()
		}
	}

	var body string
	if sel.body != "" {
		body = collapse(entry.Find(sel.body).First().Text())
	}

	publishedAt := h.now().UTC()
	if sel.date != "" {
		dateNode := entry.Find(sel.date).First()
		raw, ok := dateNode.Attr("datetime")
		layout := time.RFC3339
		if !ok {
			raw = dateNode.Text()
			layout = sel.dateLayout
		}
		if parsed, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			publishedAt = parsed
		}
	}

	externalID := link
	if externalID == "" {
		externalID = title
	}

	return domain.RawItem{
		ExternalID:  externalID,
		Title:       title,
		Content:     body,
		URL:         link,
		PublishedAt: publishedAt,
		Metadata:    map[string]any{"page": base.String()},
	}, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
