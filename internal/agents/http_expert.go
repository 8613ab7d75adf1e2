package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haql-ai/murshid/internal/advisory"
	murshiderrors "github.com/haql-ai/murshid/internal/errors"
)

// HTTPExpert invokes a remote expert agent at the endpoint advertised on its
// registry card.
type HTTPExpert struct {
	card       advisory.AgentCard
	apiKey     string
	httpClient *http.Client
}

// NewHTTPExpert builds a remote expert client. apiKey is sent only when the
// card's auth scheme asks for it.
func NewHTTPExpert(card advisory.AgentCard, apiKey string, timeout time.Duration) *HTTPExpert {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExpert{
		card:       card,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// invokeRequest is the wire shape of an expert call.
type invokeRequest struct {
	Query             advisory.Query     `json:"query"`
	AdditionalContext map[string]string  `json:"additional_context,omitempty"`
	PriorOpinions     []advisory.Opinion `json:"prior_opinions,omitempty"`
	MissingSteps      []string           `json:"missing_steps,omitempty"`
}

// Invoke posts the invocation to the expert and decodes its opinion.
func (e *HTTPExpert) Invoke(ctx context.Context, inv Invocation) (advisory.Opinion, error) {
	payload, err := json.Marshal(invokeRequest{
		Query:             inv.Query,
		AdditionalContext: inv.AdditionalContext,
		PriorOpinions:     inv.PriorOpinions,
		MissingSteps:      inv.MissingSteps,
	})
	if err != nil {
		return advisory.Opinion{}, fmt.Errorf("encode invocation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.card.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return advisory.Opinion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch e.card.AuthScheme {
	case "bearer":
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}
	case "api_key":
		if e.apiKey != "" {
			req.Header.Set("X-API-Key", e.apiKey)
		}
	}

	started := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return advisory.Opinion{}, murshiderrors.NewTransient(err, "")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return advisory.Opinion{}, murshiderrors.NewTransient(err, "")
	}
	if resp.StatusCode != http.StatusOK {
		detail := fmt.Errorf("expert %s status %d", e.card.AgentID, resp.StatusCode)
		if murshiderrors.TransientHTTPStatus(resp.StatusCode) {
			return advisory.Opinion{}, &murshiderrors.TransientError{Err: detail, StatusCode: resp.StatusCode}
		}
		return advisory.Opinion{}, &murshiderrors.PermanentError{Err: detail, StatusCode: resp.StatusCode}
	}

	var opinion advisory.Opinion
	if err := json.Unmarshal(raw, &opinion); err != nil {
		return advisory.Opinion{}, fmt.Errorf("decode opinion from %s: %w", e.card.AgentID, err)
	}
	if opinion.AgentID == "" {
		opinion.AgentID = e.card.AgentID
	}
	if opinion.AgentRole == "" {
		opinion.AgentRole = e.card.Name
	}
	if opinion.Recommendation == "" {
		return advisory.Opinion{}, fmt.Errorf("expert %s returned an empty recommendation", e.card.AgentID)
	}
	if opinion.Timestamp.IsZero() {
		opinion.Timestamp = time.Now()
	}
	opinion.DurationMS = time.Since(started).Milliseconds()
	return opinion, nil
}

// HealthCheck pings the expert's health endpoint.
func (e *HTTPExpert) HealthCheck(ctx context.Context) error {
	endpoint := e.card.HealthEndpoint
	if endpoint == "" {
		return fmt.Errorf("agent %s has no health endpoint", e.card.AgentID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return murshiderrors.NewTransient(err, "")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent %s health status %d", e.card.AgentID, resp.StatusCode)
	}
	return nil
}
