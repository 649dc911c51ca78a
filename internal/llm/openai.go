package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// OpenAIOptions configures one OpenAI-compatible endpoint.
type OpenAIOptions struct {
	ID          string
	BaseURL     string // e.g. https://api.openai.com/v1
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// OpenAI implements Provider for the Chat Completions API. Any server speaking
// that wire format works (OpenAI, OpenRouter, vLLM, Ollama, DeepSeek, ...).
type OpenAI struct {
	opt    OpenAIOptions
	client *http.Client
}

// NewOpenAI creates a provider. A nil client gets a default one honouring opt.Timeout.
func NewOpenAI(opt OpenAIOptions, client *http.Client) *OpenAI {
	if client == nil {
		client = &http.Client{Timeout: opt.Timeout}
	}
	return &OpenAI{opt: opt, client: client}
}

func (p *OpenAI) ID() string { return p.opt.ID }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// Invoke returns the raw chat completion body.
func (p *OpenAI) Invoke(ctx context.Context, prompt Prompt) ([]byte, error) {
	req := openaiRequest{Model: p.opt.Model, MaxTokens: p.opt.MaxTokens, Temperature: p.opt.Temperature}
	if prompt.MaxTokens > 0 {
		req.MaxTokens = prompt.MaxTokens
	}
	if prompt.Temperature != nil {
		req.Temperature = prompt.Temperature
	}
	if prompt.System != "" {
		req.Messages = append(req.Messages, openaiMessage{Role: "system", Content: prompt.System})
	}
	req.Messages = append(req.Messages, openaiMessage{Role: "user", Content: prompt.User})

	return doProviderRequest(ctx, p.client, p.endpoint(), p.opt.APIKey, req, "llm/openai")
}

func (p *OpenAI) endpoint() string {
	base := strings.TrimRight(p.opt.BaseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}
