package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"NewsRadar/internal/ports"
)

// Client talks to the embedding classifier service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	breaker  circuitbreaker.CircuitBreaker[any]
}

var _ ports.Classifier = (*Client)(nil)

// NewClient creates a reusable HTTP client. Consecutive failures open a
// circuit so that an offline service is skipped quickly.
func NewClient(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.Warn("classifier circuit changed", "from", event.OldState, "to", event.NewState)
		}).
		Build()
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		breaker:  breaker,
	}
}

// Classify posts the item and returns a well-formed verdict. Every failure to
// obtain one wraps ports.ErrClassifierUnavailable.
func (c *Client) Classify(ctx context.Context, req ports.ClassifyRequest) (ports.ClassifyResult, error) {
	var result ports.ClassifyResult
	_, err := failsafe.With(c.breaker).Get(func() (any, error) {
		return nil, c.post(ctx, "/classify", req, &result)
	})
	if err != nil {
		return ports.ClassifyResult{}, fmt.Errorf("%w: %v", ports.ErrClassifierUnavailable, err)
	}
	if result.RelevanceConfidence < 0 || result.RelevanceConfidence > 1 {
		return ports.ClassifyResult{}, fmt.Errorf("%w: confidence %v out of range", ports.ErrClassifierUnavailable, result.RelevanceConfidence)
	}
	return result, nil
}

// Health reports whether the service answers GET /health with 200.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrClassifierUnavailable, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %s", ports.ErrClassifierUnavailable, resp.Status)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
