package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"NewsRadar/internal/config"
	"NewsRadar/internal/ports"
)

// NewProvider builds a single provider for its configured kind.
func NewProvider(ctx context.Context, cfg config.LLMProviderConfig, httpClient *http.Client) (ports.LLMProvider, error) {
	switch cfg.Kind {
	case "openai", "ollama":
		return NewOpenAIProvider(cfg, httpClient), nil
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "gemini":
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider kind %q", cfg.Kind)
	}
}

// NewChainFromConfig builds the ordered chain. Providers that cannot be
// constructed (missing keys) are logged and left out; an empty chain is nil.
func NewChainFromConfig(ctx context.Context, cfg config.LLMConfig, metrics ProviderRecorder, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	members := make([]Member, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		provider, err := NewProvider(ctx, pc, nil)
		if err != nil {
			logger.Warn("llm provider disabled", "provider", pc.Name, "error", err)
			continue
		}
		members = append(members, Member{Provider: provider, Timeout: pc.Timeout})
	}
	if len(members) == 0 {
		return nil
	}
	return NewChain(members, ChainOptions{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Metrics:           metrics,
		Logger:            logger,
	})
}
