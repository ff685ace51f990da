package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"NewsRadar/internal/config"
	"NewsRadar/internal/ports"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicProvider implements ports.LLMProvider on the Messages API.
type AnthropicProvider struct {
	name     string
	model    string
	messages *anthropic.MessageService
}

var _ ports.LLMProvider = (*AnthropicProvider)(nil)

// NewAnthropicProvider builds a provider; Endpoint overrides the API base URL.
// SDK retries are disabled so that a failure advances the chain immediately.
func NewAnthropicProvider(cfg config.LLMProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: anthropic api key is empty", cfg.Name)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{name: cfg.Name, model: cfg.Model, messages: &client.Messages}, nil
}

func (p *AnthropicProvider) Name() string { return p.name }

func (p *AnthropicProvider) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.messages.New(ctx, params)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("%s messages call: %w", p.name, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return ports.Completion{}, fmt.Errorf("%s returned no text content", p.name)
	}

	tokens := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	return ports.Completion{
		Text:       text.String(),
		Model:      string(resp.Model),
		Provider:   p.name,
		TokensUsed: &tokens,
	}, nil
}
