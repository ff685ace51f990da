package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"NewsRadar/internal/config"
	"NewsRadar/internal/ports"
)

// GeminiProvider implements ports.LLMProvider on the Gemini API.
type GeminiProvider struct {
	name   string
	model  string
	client *genai.Client
}

var _ ports.LLMProvider = (*GeminiProvider)(nil)

// NewGeminiProvider builds a provider; Endpoint overrides the API base URL.
func NewGeminiProvider(ctx context.Context, cfg config.LLMProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: gemini api key is empty", cfg.Name)
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("%s: init genai client: %w", cfg.Name, err)
	}
	return &GeminiProvider{name: cfg.Name, model: cfg.Model, client: client}, nil
}

func (p *GeminiProvider) Name() string { return p.name }

func (p *GeminiProvider) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system := strings.TrimSpace(req.System); system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("%s generate content: %w", p.name, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return ports.Completion{}, fmt.Errorf("%s returned no text content", p.name)
	}

	out := ports.Completion{Text: text, Model: resp.ModelVersion, Provider: p.name}
	if out.Model == "" {
		out.Model = p.model
	}
	if resp.UsageMetadata != nil {
		tokens := int(resp.UsageMetadata.TotalTokenCount)
		out.TokensUsed = &tokens
	}
	return out, nil
}
