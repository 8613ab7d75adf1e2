// Package agents defines the expert agent invocation contract and its two
// implementations: remote HTTP experts addressed by their registry card, and
// in-process experts backed by the language model.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/haql-ai/murshid/internal/advisory"
)

// Invocation carries everything an expert receives for one call. Query and
// AdditionalContext are always populated by the caller; PriorOpinions is set
// only in sequential pipelines and council deliberation rounds.
type Invocation struct {
	Query             advisory.Query
	AdditionalContext map[string]string
	PriorOpinions     []advisory.Opinion
	// MissingSteps names pipeline steps that failed before this one.
	MissingSteps []string
}

// Expert is a polymorphic worker producing one opinion per invocation. On
// context cancellation an expert may return a truncated opinion with zero
// confidence instead of an error.
type Expert interface {
	Invoke(ctx context.Context, inv Invocation) (advisory.Opinion, error)
}

// Dialer turns a registry card into a callable expert.
type Dialer interface {
	Dial(card advisory.AgentCard) (Expert, error)
}

// LocalScheme prefixes endpoints of in-process experts.
const LocalScheme = "local:"

// RoutingDialer resolves local endpoints against a fixed expert table and
// everything else as a remote HTTP expert.
type RoutingDialer struct {
	local  map[string]Expert
	remote func(card advisory.AgentCard) Expert
}

// NewRoutingDialer builds a dialer over the given in-process experts, keyed
// by the name after the local: prefix.
func NewRoutingDialer(local map[string]Expert, remote func(card advisory.AgentCard) Expert) *RoutingDialer {
	return &RoutingDialer{local: local, remote: remote}
}

// Dial resolves card.Endpoint.
func (d *RoutingDialer) Dial(card advisory.AgentCard) (Expert, error) {
	if strings.HasPrefix(card.Endpoint, LocalScheme) {
		name := strings.TrimPrefix(card.Endpoint, LocalScheme)
		expert, ok := d.local[name]
		if !ok {
			return nil, fmt.Errorf("no local expert %q", name)
		}
		return expert, nil
	}
	if d.remote == nil {
		return nil, fmt.Errorf("no remote dialer configured for endpoint %q", card.Endpoint)
	}
	return d.remote(card), nil
}
