// Package registry maintains the directory of expert agents: capability
// discovery, TTL-bound liveness, and performance-ranked selection.
package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/haql-ai/murshid/internal/advisory"
	murshiderrors "github.com/haql-ai/murshid/internal/errors"
	"github.com/haql-ai/murshid/internal/observability"
)

// Store is the backing directory. Implementations must update the card map,
// membership set, capability index, and performance scores atomically per
// operation: a reader must never observe an agent in the capability index
// whose card is gone.
type Store interface {
	Register(ctx context.Context, card advisory.AgentCard) error
	Heartbeat(ctx context.Context, agentID string) error
	UpdatePerformance(ctx context.Context, agentID string, score float64) error
	UpdateStatus(ctx context.Context, agentID string, status advisory.AgentStatus) error
	Deregister(ctx context.Context, agentID string) error
	Get(ctx context.Context, agentID string) (advisory.AgentCard, error)
	// Discover returns active cards whose capability set is a superset of
	// caps, ordered by performance score descending. The empty set matches
	// all active agents.
	Discover(ctx context.Context, caps []advisory.Capability) ([]advisory.AgentCard, error)
	DiscoverByTags(ctx context.Context, tags []string) ([]advisory.AgentCard, error)
	Close() error
}

// Registry wraps a Store with a short-lived read-through cache and a
// last-known-good fallback for storage outages. Reads served from the
// fallback are flagged stale so the coordinator can downgrade confidence.
type Registry struct {
	store   Store
	cache   *readCache
	logger  *observability.Logger
	metrics *observability.MetricsCollector
}

// Options configures the registry facade.
type Options struct {
	CacheTTL  time.Duration // read cache TTL, clamped to 60s
	CacheSize int           // max cached discovery results
}

// New builds a Registry over store. logger and metrics may be nil.
func New(store Store, opts Options, logger *observability.Logger, metrics *observability.MetricsCollector) *Registry {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Registry{
		store:   store,
		cache:   newReadCache(opts.CacheSize, opts.CacheTTL),
		logger:  logger,
		metrics: metrics,
	}
}

// Register upserts card after validation.
func (r *Registry) Register(ctx context.Context, card advisory.AgentCard) error {
	if err := card.Validate(); err != nil {
		r.record(ctx, "register", "invalid")
		return errors.Join(murshiderrors.ErrInvalidCard, err)
	}
	if card.Status == "" {
		card.Status = advisory.StatusActive
	}
	if err := r.store.Register(ctx, card); err != nil {
		r.record(ctx, "register", "error")
		return err
	}
	r.cache.Invalidate()
	r.record(ctx, "register", "ok")
	r.logger.InfoContext(ctx, "agent registered", "agent_id", card.AgentID, "capabilities", card.Capabilities)
	return nil
}

// Heartbeat refreshes the agent's TTL.
func (r *Registry) Heartbeat(ctx context.Context, agentID string) error {
	if err := r.store.Heartbeat(ctx, agentID); err != nil {
		r.record(ctx, "heartbeat", "error")
		return err
	}
	r.cache.Invalidate()
	r.record(ctx, "heartbeat", "ok")
	return nil
}

// UpdatePerformance sets the agent's performance score.
func (r *Registry) UpdatePerformance(ctx context.Context, agentID string, score float64) error {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	if err := r.store.UpdatePerformance(ctx, agentID, score); err != nil {
		r.record(ctx, "update_performance", "error")
		return err
	}
	r.cache.Invalidate()
	r.record(ctx, "update_performance", "ok")
	return nil
}

// UpdateStatus sets the agent's lifecycle status.
func (r *Registry) UpdateStatus(ctx context.Context, agentID string, status advisory.AgentStatus) error {
	if !status.Valid() {
		return errors.Join(murshiderrors.ErrInvalidCard, errors.New("unknown status"))
	}
	if err := r.store.UpdateStatus(ctx, agentID, status); err != nil {
		r.record(ctx, "update_status", "error")
		return err
	}
	r.cache.Invalidate()
	r.record(ctx, "update_status", "ok")
	return nil
}

// Deregister removes the agent from the directory.
func (r *Registry) Deregister(ctx context.Context, agentID string) error {
	if err := r.store.Deregister(ctx, agentID); err != nil {
		r.record(ctx, "deregister", "error")
		return err
	}
	r.cache.Invalidate()
	r.record(ctx, "deregister", "ok")
	r.logger.InfoContext(ctx, "agent deregistered", "agent_id", agentID)
	return nil
}

// Get returns one card. The stale flag is set when the card was served from
// the last-known-good fallback during a storage outage.
func (r *Registry) Get(ctx context.Context, agentID string) (advisory.AgentCard, bool, error) {
	card, err := r.store.Get(ctx, agentID)
	if err == nil {
		r.cache.RememberCard(card)
		return card, false, nil
	}
	if errors.Is(err, murshiderrors.ErrStorageUnavailable) {
		if fallback, ok := r.cache.StaleCard(agentID); ok {
			r.logger.WarnContext(ctx, "serving stale card during storage outage", "agent_id", agentID)
			return fallback, true, nil
		}
	}
	return advisory.AgentCard{}, false, err
}

// Discover returns active cards covering every capability in caps, best
// performer first. The stale flag mirrors Get's semantics.
func (r *Registry) Discover(ctx context.Context, caps []advisory.Capability) ([]advisory.AgentCard, bool, error) {
	key := discoveryKey(caps)
	if cards, ok := r.cache.Lookup(key); ok {
		return cards, false, nil
	}

	cards, err := r.store.Discover(ctx, caps)
	if err == nil {
		sortCards(cards)
		r.cache.Store(key, cards)
		return cards, false, nil
	}
	if errors.Is(err, murshiderrors.ErrStorageUnavailable) {
		if cards, ok := r.cache.StaleLookup(key); ok {
			r.logger.WarnContext(ctx, "serving stale discovery during storage outage", "capabilities", caps)
			return cards, true, nil
		}
	}
	return nil, false, err
}

// DiscoverByTags returns active cards carrying every tag.
func (r *Registry) DiscoverByTags(ctx context.Context, tags []string) ([]advisory.AgentCard, error) {
	cards, err := r.store.DiscoverByTags(ctx, tags)
	if err != nil {
		return nil, err
	}
	sortCards(cards)
	return cards, nil
}

// BestFor returns the highest-scoring active agent for one capability, or
// ErrNoAgents when nothing qualifies.
func (r *Registry) BestFor(ctx context.Context, cap advisory.Capability) (advisory.AgentCard, bool, error) {
	cards, stale, err := r.Discover(ctx, []advisory.Capability{cap})
	if err != nil {
		return advisory.AgentCard{}, false, err
	}
	if len(cards) == 0 {
		return advisory.AgentCard{}, stale, murshiderrors.ErrNoAgents
	}
	return cards[0], stale, nil
}

// Close releases the backing store.
func (r *Registry) Close() error {
	return r.store.Close()
}

func (r *Registry) record(ctx context.Context, op, status string) {
	if r.metrics != nil {
		r.metrics.RecordRegistryOperation(ctx, op, status)
	}
}

// sortCards orders by performance score descending with agent ID as the
// deterministic tie-break.
func sortCards(cards []advisory.AgentCard) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].PerformanceScore != cards[j].PerformanceScore {
			return cards[i].PerformanceScore > cards[j].PerformanceScore
		}
		return cards[i].AgentID < cards[j].AgentID
	})
}

func discoveryKey(caps []advisory.Capability) string {
	if len(caps) == 0 {
		return "*"
	}
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
