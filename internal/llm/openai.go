package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	murshiderrors "github.com/haql-ai/murshid/internal/errors"
	"github.com/haql-ai/murshid/internal/observability"
)

const defaultTimeout = 120 * time.Second

// Config configures the OpenAI-compatible client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	EmbedModel string
	Timeout    time.Duration
	Retry      murshiderrors.RetryConfig
}

// OpenAIClient targets any OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	model      string
	embedModel string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      murshiderrors.RetryConfig
	logger     *observability.Logger
	metrics    *observability.MetricsCollector
}

// NewOpenAIClient builds a client from config. Metrics may be nil.
func NewOpenAIClient(config Config, logger *observability.Logger, metrics *observability.MetricsCollector) *OpenAIClient {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retry := config.Retry
	if retry.MaxAttempts == 0 {
		retry = murshiderrors.DefaultRetryConfig()
	}
	embedModel := config.EmbedModel
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &OpenAIClient{
		model:      config.Model,
		embedModel: embedModel,
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
		logger:     logger,
		metrics:    metrics,
	}
}

// Model reports the completion model name.
func (c *OpenAIClient) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature,omitempty"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat-completion request and returns the model text.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	started := time.Now()
	text, err := murshiderrors.RetryWithResult(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.complete(ctx, req)
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordLLMRequest(ctx, c.model, status, time.Since(started))
	}
	return text, err
}

func (c *OpenAIClient) complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONOnly {
		body.ResponseFormat = &respFormat{Type: "json_object"}
	}

	raw, err := c.doPost(ctx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", murshiderrors.NewPermanent(fmt.Errorf("provider error: %s", parsed.Error.Message), "")
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, err := c.doPost(ctx, c.baseURL+"/embeddings", embedRequest{
		Model: c.embedModel,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding returned no data")
	}
	return parsed.Data[0].Embedding, nil
}

// doPost sends a JSON POST with standard headers and returns the raw body.
func (c *OpenAIClient) doPost(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, murshiderrors.NewTransient(err, "")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, murshiderrors.NewTransient(err, "")
	}

	if resp.StatusCode != http.StatusOK {
		detail := fmt.Errorf("provider status %d: %s", resp.StatusCode, truncate(string(raw), 300))
		if murshiderrors.TransientHTTPStatus(resp.StatusCode) {
			return nil, &murshiderrors.TransientError{Err: detail, StatusCode: resp.StatusCode}
		}
		return nil, &murshiderrors.PermanentError{Err: detail, StatusCode: resp.StatusCode}
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
