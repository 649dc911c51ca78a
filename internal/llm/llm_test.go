package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIInvoke(t *testing.T) {
	t.Parallel()

	const body = `{"choices":[{"message":{"role":"assistant","content":"中秋快乐！"}}]}`
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req openaiRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		if !assert.Len(t, req.Messages, 2) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "写一句祝福", req.Messages[1].Content)
		_, _ = w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewOpenAI(OpenAIOptions{ID: "main", BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "test-model", MaxTokens: 100}, srv.Client())
	out, err := p.Invoke(context.Background(), Prompt{System: "你是助手", User: "写一句祝福", MaxTokens: 256})
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}

func TestOpenAIProviderError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
		typ     string
	}{
		{"structured", http.StatusTooManyRequests, `{"error":{"type":"rate_limit_error","message":"slow down"}}`, "slow down", "rate_limit_error"},
		{"raw", http.StatusBadGateway, `upstream exploded`, "upstream exploded", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)

			_, err := NewOpenAI(OpenAIOptions{BaseURL: srv.URL, Model: "m"}, srv.Client()).Invoke(context.Background(), Prompt{User: "x"})
			var perr *ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.status, perr.StatusCode)
			assert.Equal(t, tc.wantMsg, perr.Message)
			assert.Equal(t, tc.typ, perr.Type)
			assert.Equal(t, tc.status == http.StatusTooManyRequests, perr.IsRateLimited())
		})
	}
}

type stubProvider struct {
	id  string
	out string
}

func (s stubProvider) ID() string { return s.id }
func (s stubProvider) Invoke(context.Context, Prompt) ([]byte, error) {
	return []byte(s.out), nil
}

func TestRegistrySelect(t *testing.T) {
	t.Parallel()

	a, b := stubProvider{"a", "A"}, stubProvider{"b", "B"}

	r := NewRegistry("", a, b)
	out, err := r.Invoke(context.Background(), Prompt{}, "")
	require.NoError(t, err)
	assert.Equal(t, "A", string(out))

	out, err = r.Invoke(context.Background(), Prompt{}, "b")
	require.NoError(t, err)
	assert.Equal(t, "B", string(out))

	_, err = r.Invoke(context.Background(), Prompt{}, "zzz")
	assert.ErrorIs(t, err, ErrNoProvider)

	r.Replace("b", a, b)
	p, err := r.Select("")
	require.NoError(t, err)
	assert.Equal(t, "b", p.ID())

	r.Replace("")
	_, err = r.Select("")
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.Zero(t, r.Len())
}
