// Package llm calls OpenAI-compatible chat completion endpoints and hands the
// raw response body back to the caller.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// ErrNoProvider is returned when no provider is configured or the selector is unknown.
var ErrNoProvider = errors.New("llm: no provider available")

// Prompt is one generation request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature *float64
}

// Provider produces a raw response body for a prompt. The body shape is
// provider specific; callers decode it.
type Provider interface {
	ID() string
	Invoke(ctx context.Context, p Prompt) ([]byte, error)
}

// ProviderError is returned when the API responds with a non-200 status.
type ProviderError struct {
	StatusCode int
	// Type is the provider-specific error type (e.g. "rate_limit_error").
	Type    string
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports an HTTP 429 response.
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// doProviderRequest POSTs wireRequest as JSON and returns the response body.
// Non-200 responses become *ProviderError.
func doProviderRequest(ctx context.Context, client *http.Client, endpoint, apiKey string, wireRequest any, prefix string) ([]byte, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readProviderError(resp)
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", prefix, err)
	}
	return out, nil
}

// readProviderError parses the common {"error":{"type":"...","message":"..."}}
// body used by OpenAI-compatible APIs, falling back to the raw body.
func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: resp.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
}
