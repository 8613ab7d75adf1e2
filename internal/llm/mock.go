package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient implements Client for testing. Responses are consumed in FIFO
// order; when the queue is empty the fallback response is returned. Errors
// scripted with FailNext take precedence over queued responses.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	fallback  string
	failures  int
	failErr   error
	calls     []CompletionRequest
}

// NewMockClient returns a mock whose fallback response is fallback.
func NewMockClient(fallback string) *MockClient {
	return &MockClient{fallback: fallback}
}

// Queue appends canned responses returned by subsequent Complete calls.
func (m *MockClient) Queue(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
	return m
}

// FailNext makes the next n Complete calls return err.
func (m *MockClient) FailNext(n int, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
	return m
}

// Calls returns a copy of every request seen so far.
func (m *MockClient) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// Complete returns the next scripted response or failure.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.failures > 0 {
		m.failures--
		if m.failErr != nil {
			return "", m.failErr
		}
		return "", fmt.Errorf("mock llm failure")
	}
	if len(m.responses) > 0 {
		next := m.responses[0]
		m.responses = m.responses[1:]
		return next, nil
	}
	return m.fallback, nil
}

// Embed returns a fixed small vector so retrieval code paths can run.
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// Model reports the mock model name.
func (m *MockClient) Model() string { return "mock" }
