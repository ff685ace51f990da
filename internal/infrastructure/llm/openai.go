package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"NewsRadar/internal/config"
	"NewsRadar/internal/ports"
)

// OpenAIProvider implements ports.LLMProvider backed by OpenAI-compatible
// chat completion APIs (OpenAI itself, a local Ollama, vLLM, ...).
type OpenAIProvider struct {
	name       string
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.LLMProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider from configuration. The API key is
// optional so that unauthenticated local endpoints work.
func NewOpenAIProvider(cfg config.LLMProviderConfig, httpClient *http.Client) *OpenAIProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIProvider{
		name:       cfg.Name,
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete posts the prompt as a chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	if p.endpoint == "" || p.model == "" {
		return ports.Completion{}, fmt.Errorf("%s: provider misconfigured", p.name)
	}

	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := map[string]any{
		"model":       p.model,
		"messages":    messages,
		"temperature": req.Temperature,
		"stream":      false,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("marshal %s payload: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("%s request: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ports.Completion{}, fmt.Errorf("%s error %s: %s", p.name, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.Completion{}, fmt.Errorf("decode %s response: %w", p.name, err)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return ports.Completion{}, fmt.Errorf("%s returned no content", p.name)
	}

	out := ports.Completion{
		Text:     decoded.Choices[0].Message.Content,
		Model:    decoded.Model,
		Provider: p.name,
	}
	if out.Model == "" {
		out.Model = p.model
	}
	if decoded.Usage != nil {
		tokens := decoded.Usage.TotalTokens
		out.TokensUsed = &tokens
	}
	return out, nil
}
