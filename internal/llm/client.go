// Package llm adapts an external language-model provider behind a small
// text-in/text-out contract. Prompt construction belongs to callers; this
// package only moves requests over the wire.
package llm

import "context"

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	System      string  // optional system prompt
	Prompt      string  // user content
	MaxTokens   int     // 0 = provider default
	Temperature float64 // sampling temperature
	JSONOnly    bool    // ask the provider for a JSON object response
}

// Client is the language-model collaborator contract.
type Client interface {
	// Complete returns the model's text for the request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Embed returns an embedding vector for text. Implementations without
	// an embedding endpoint return an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model reports the model name used by this client.
	Model() string
}
