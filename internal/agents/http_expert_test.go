package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haql-ai/murshid/internal/advisory"
	murshiderrors "github.com/haql-ai/murshid/internal/errors"
)

func remoteCard(endpoint string) advisory.AgentCard {
	return advisory.AgentCard{
		AgentID:      "remote-1",
		Name:         "Remote Diagnostician",
		Version:      "1.0.0",
		Capabilities: []advisory.Capability{advisory.CapDiagnosis},
		Endpoint:     endpoint,
		AuthScheme:   "api_key",
	}
}

func TestHTTPExpertInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "sekrit", r.Header.Get("X-API-Key"))

		var req invokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "leaves are curling", req.Query.Text)

		_ = json.NewEncoder(w).Encode(advisory.Opinion{
			Recommendation: "Check for leaf curl virus",
			Confidence:     0.75,
		})
	}))
	defer srv.Close()

	expert := NewHTTPExpert(remoteCard(srv.URL), "sekrit", time.Second)
	opinion, err := expert.Invoke(context.Background(), Invocation{
		Query: advisory.Query{Text: "leaves are curling", Language: advisory.LanguageEnglish},
	})
	require.NoError(t, err)

	// Missing identity fields fall back to the card.
	assert.Equal(t, "remote-1", opinion.AgentID)
	assert.Equal(t, "Remote Diagnostician", opinion.AgentRole)
	assert.Equal(t, "Check for leaf curl virus", opinion.Recommendation)
	assert.False(t, opinion.Timestamp.IsZero())
}

func TestHTTPExpertStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		expert := NewHTTPExpert(remoteCard(srv.URL), "", time.Second)
		_, err := expert.Invoke(context.Background(), Invocation{
			Query: advisory.Query{Text: "q", Language: advisory.LanguageEnglish},
		})
		require.Error(t, err, tc.status)
		assert.Equal(t, tc.transient, murshiderrors.IsTransient(err), "status %d", tc.status)
		srv.Close()
	}
}

func TestHTTPExpertRejectsEmptyRecommendation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(advisory.Opinion{Confidence: 0.9})
	}))
	defer srv.Close()

	expert := NewHTTPExpert(remoteCard(srv.URL), "", time.Second)
	_, err := expert.Invoke(context.Background(), Invocation{
		Query: advisory.Query{Text: "q", Language: advisory.LanguageEnglish},
	})
	assert.Error(t, err)
}

func TestHTTPExpertHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	card := remoteCard(srv.URL)
	card.HealthEndpoint = srv.URL + "/health"
	expert := NewHTTPExpert(card, "", time.Second)
	assert.NoError(t, expert.HealthCheck(context.Background()))

	card.HealthEndpoint = ""
	assert.Error(t, NewHTTPExpert(card, "", time.Second).HealthCheck(context.Background()))
}

func TestRoutingDialer(t *testing.T) {
	local := map[string]Expert{"builtin": nil}
	dialer := NewRoutingDialer(local, func(card advisory.AgentCard) Expert {
		return NewHTTPExpert(card, "", time.Second)
	})

	_, err := dialer.Dial(advisory.AgentCard{Endpoint: "local:builtin"})
	assert.NoError(t, err)

	_, err = dialer.Dial(advisory.AgentCard{Endpoint: "local:missing"})
	assert.Error(t, err)

	expert, err := dialer.Dial(remoteCard("http://example.invalid"))
	require.NoError(t, err)
	assert.IsType(t, &HTTPExpert{}, expert)
}
