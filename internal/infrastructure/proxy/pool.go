package proxy

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"NewsRadar/internal/ports"
)

// Pool is a round-robin set of outbound HTTP proxies loaded from a plain-text
// list (one "host:port" or proxy URL per line, '#' comments allowed).
type Pool struct {
	listURL string
	client  *http.Client
	logger  *slog.Logger

	mu      sync.RWMutex
	proxies []*url.URL
	next    atomic.Uint64
}

var _ ports.PoolRefresher = (*Pool)(nil)

// NewPool creates an empty pool. With an empty listURL Refresh is a no-op and
// every request goes out directly.
func NewPool(listURL string, client *http.Client, logger *slog.Logger) *Pool {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{listURL: listURL, client: client, logger: logger}
}

// Refresh reloads the proxy list. On failure the previous list is kept.
func (p *Pool) Refresh(ctx context.Context) error {
	if p.listURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.listURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch proxy list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy list returned %s", resp.Status)
	}

	var proxies []*url.URL
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := parseProxy(line)
		if err != nil {
			p.logger.Debug("skip proxy entry", "entry", line, "error", err)
			continue
		}
		proxies = append(proxies, u)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}

	p.mu.Lock()
	p.proxies = proxies
	p.mu.Unlock()
	p.logger.Info("proxy pool refreshed", "proxies", len(proxies))
	return nil
}

// Len returns the number of loaded proxies.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.proxies)
}

// ProxyFunc is suitable for http.Transport.Proxy. It returns nil (direct
// connection) while the pool is empty.
func (p *Pool) ProxyFunc(*http.Request) (*url.URL, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.proxies) == 0 {
		return nil, nil
	}
	i := p.next.Add(1) - 1
	return p.proxies[i%uint64(len(p.proxies))], nil
}

func parseProxy(entry string) (*url.URL, error) {
	if !strings.Contains(entry, "://") {
		entry = "http://" + entry
	}
	u, err := url.Parse(entry)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}
