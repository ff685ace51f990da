package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsRadar/internal/config"
)

// ProxyFunc selects the outbound proxy for a request; nil means direct.
type ProxyFunc func(*http.Request) (*url.URL, error)

// NewHTTPClient builds the client shared by page connectors.
func NewHTTPClient(cfg config.ConnectorsConfig, proxy ProxyFunc) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		transport.Proxy = proxy
	}
	return &http.Client{Timeout: cfg.Timeout, Transport: transport}
}

type pageFetcher struct {
	client    *http.Client
	userAgent string
}

func newPageFetcher(client *http.Client, userAgent string) pageFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = "NewsRadar/1.0"
	}
	return pageFetcher{client: client, userAgent: userAgent}
}

func (f pageFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", req.URL.Host, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func splitURLs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateURLs(raw string) (bool, string) {
	urls := splitURLs(raw)
	if len(urls) == 0 {
		return false, "url is required"
	}
	for _, u := range urls {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return false, fmt.Sprintf("invalid url %q", u)
		}
	}
	return true, ""
}

func positiveInt(config map[string]string, key string, fallback int) (int, error) {
	raw, ok := config[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}
