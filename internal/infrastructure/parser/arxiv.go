package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const (
	arxivBaseURL      = "https://arxiv.org"
	arxivPageSize     = 200
	arxivLookbackDays = 2
)

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivConnector crawls arXiv listing pages. Source config keys:
//
//	url           comma-separated listing URLs
//	page_size     entries per listing page (default 200)
//	lookback_days how many days back to collect (default 2)
type ArxivConnector struct {
	fetcher  pageFetcher
	pageSize int
	now      func() time.Time
}

var _ ports.Connector = (*ArxivConnector)(nil)

// NewArxivConnector wires an HTTP client and the User-Agent sent with every page request.
func NewArxivConnector(client *http.Client, userAgent string) *ArxivConnector {
	return &ArxivConnector{
		fetcher:  newPageFetcher(client, userAgent),
		pageSize: arxivPageSize,
		now:      time.Now,
	}
}

// Type identifies the connector inside the registry.
func (a *ArxivConnector) Type() string {
	return "arxiv"
}

// Validate checks the source configuration without touching the network.
func (a *ArxivConnector) Validate(config map[string]string) (bool, string) {
	if ok, msg := validateURLs(config["url"]); !ok {
		return false, msg
	}
	if _, err := positiveInt(config, "page_size", a.pageSize); err != nil {
		return false, err.Error()
	}
	if _, err := positiveInt(config, "lookback_days", arxivLookbackDays); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Fetch walks each listing URL and returns entries dated within the lookback window.
func (a *ArxivConnector) Fetch(ctx context.Context, config map[string]string) ([]domain.RawItem, error) {
	if ok, msg := a.Validate(config); !ok {
		return nil, fmt.Errorf("arxiv config: %s", msg)
	}
	pageSize, _ := positiveInt(config, "page_size", a.pageSize)
	lookback, _ := positiveInt(config, "lookback_days", arxivLookbackDays)

	cutoff := a.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(lookback - 1))
	results := make([]domain.RawItem, 0)
	seen := map[string]struct{}{}

	for _, listURL := range splitURLs(config["url"]) {
		skip := 0
		for {
			pageURL, err := buildPageURL(listURL, skip, pageSize)
			if err != nil {
				return nil, err
			}

			doc, err := a.fetcher.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("listing %s: %w", listURL, err)
			}

			pageItems, shouldContinue := extractEntries(doc, cutoff, pageSize, listURL)
			for _, item := range pageItems {
				if _, ok := seen[item.ExternalID]; ok {
					continue
				}
				seen[item.ExternalID] = struct{}{}
				results = append(results, item)
			}

			if !shouldContinue {
				break
			}
			skip += pageSize
		}
	}

	return results, nil
}

// extractEntries collects entries not older than cutoff. The second result is
// false once the page was short or an older entry was reached.
func extractEntries(doc *goquery.Document, cutoff time.Time, pageSize int, listURL string) ([]domain.RawItem, bool) {
	var (
		collected    []domain.RawItem
		continueScan = true
		processed    int
	)

	doc.Find("dl > dt").EachWithBreak(func(i int, dt *goquery.Selection) bool {
		dd := dt.Next()
		processed++

		item, ok := parseEntry(dt, dd, listURL)
		if !ok {
			return true
		}

		day := item.PublishedAt.UTC().Truncate(24 * time.Hour)
		if day.Before(cutoff) {
			continueScan = false
			return false
		}
		collected = append(collected, item)
		return true
	})

	if processed < pageSize {
		continueScan = false
	}

	return collected, continueScan
}

func parseEntry(dt, dd *goquery.Selection, listURL string) (domain.RawItem, bool) {
	link := dt.Find("a[href*=\"/abs/\"]").First()
	href, _ := link.Attr("href")

	id := strings.TrimSpace(link.Text())
	if id == "" && href != "" {
		id = strings.TrimPrefix(href, "/abs/")
	}
	if href == "" && id == "" {
		return domain.RawItem{}, false
	}

	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}
	if id == "" {
		id = href
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	summary := dd.Find("p.mathjax").First().Text()
	summary = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(summary), "Abstract:"))

	authors := make([]string, 0)
	dd.Find(".list-authors a").Each(func(_ int, a *goquery.Selection) {
		if name := strings.TrimSpace(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}

	var publishedAt time.Time
	if match := dateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			publishedAt = parsed
		}
	}
	if publishedAt.IsZero() {
		return domain.RawItem{}, false
	}

	return domain.RawItem{
		ExternalID:  id,
		Title:       title,
		Content:     summary,
		URL:         href,
		Author:      strings.Join(authors, ", "),
		PublishedAt: publishedAt,
		Metadata:    map[string]any{"listing": listURL},
	}, true
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
