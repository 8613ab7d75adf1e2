package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	murshiderrors "github.com/haql-ai/murshid/internal/errors"
)

func fastRetry(attempts int) murshiderrors.RetryConfig {
	return murshiderrors.RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestCompleteSendsSystemAndJSONMode(t *testing.T) {
	var got chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello farmer"}}]}`))
	}))
	defer ts.Close()

	client := NewOpenAIClient(Config{
		BaseURL: ts.URL + "/v1",
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		Retry:   fastRetry(1),
	}, nil, nil)

	text, err := client.Complete(context.Background(), CompletionRequest{
		System:   "You are an agronomist.",
		Prompt:   "When do I harvest wheat?",
		JSONOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello farmer", text)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestCompleteRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer ts.Close()

	client := NewOpenAIClient(Config{BaseURL: ts.URL, Model: "m", Retry: fastRetry(3)}, nil, nil)
	text, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteDoesNotRetryPermanentStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`bad key`))
	}))
	defer ts.Close()

	client := NewOpenAIClient(Config{BaseURL: ts.URL, Model: "m", Retry: fastRetry(3)}, nil, nil)
	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.False(t, murshiderrors.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteProviderErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer ts.Close()

	client := NewOpenAIClient(Config{BaseURL: ts.URL, Model: "m", Retry: fastRetry(1)}, nil, nil)
	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestEmbed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"loamy soil"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer ts.Close()

	client := NewOpenAIClient(Config{BaseURL: ts.URL, Model: "m"}, nil, nil)
	vec, err := client.Embed(context.Background(), "loamy soil")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestNewOpenAIClientDefaults(t *testing.T) {
	client := NewOpenAIClient(Config{Model: "m", BaseURL: "  https://example.com/v1/  "}, nil, nil)
	assert.Equal(t, "https://example.com/v1", client.baseURL)
	assert.Equal(t, "text-embedding-3-small", client.embedModel)
	assert.Equal(t, "m", client.Model())
}
