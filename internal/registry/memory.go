package registry

import (
	"context"
	"sync"
	"time"

	"github.com/haql-ai/murshid/internal/advisory"
	murshiderrors "github.com/haql-ai/murshid/internal/errors"
)

const defaultSweepInterval = 30 * time.Second

// MemoryStore is the in-process Store. It holds the four directory maps under
// one lock so every operation is atomic with respect to readers, and runs a
// background sweep that evicts agents whose TTL lapsed without a heartbeat.
type MemoryStore struct {
	ttl time.Duration

	mu           sync.RWMutex
	cards        map[string]advisory.AgentCard
	agents       map[string]struct{}
	byCapability map[advisory.Capability]map[string]struct{}
	performance  map[string]float64
	expiry       map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store whose agents expire after ttl without a
// heartbeat. sweepInterval <= 0 uses the default.
func NewMemoryStore(ttl, sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	s := &MemoryStore{
		ttl:          ttl,
		cards:        make(map[string]advisory.AgentCard),
		agents:       make(map[string]struct{}),
		byCapability: make(map[advisory.Capability]map[string]struct{}),
		performance:  make(map[string]float64),
		expiry:       make(map[string]time.Time),
		stop:         make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

// sweep removes every agent whose TTL expired before now.
func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for agentID, deadline := range s.expiry {
		if now.After(deadline) {
			s.removeLocked(agentID)
		}
	}
}

// expired reports whether agentID's TTL has lapsed. Lazy expiry: reads treat
// an expired agent as absent even before the sweeper runs.
func (s *MemoryStore) expiredLocked(agentID string, now time.Time) bool {
	deadline, ok := s.expiry[agentID]
	return !ok || now.After(deadline)
}

func (s *MemoryStore) removeLocked(agentID string) {
	card, ok := s.cards[agentID]
	if ok {
		for _, cap := range card.Capabilities {
			if members := s.byCapability[cap]; members != nil {
				delete(members, agentID)
				if len(members) == 0 {
					delete(s.byCapability, cap)
				}
			}
		}
	}
	delete(s.cards, agentID)
	delete(s.agents, agentID)
	delete(s.performance, agentID)
	delete(s.expiry, agentID)
}

// Register upserts card and resets its TTL.
func (s *MemoryStore) Register(_ context.Context, card advisory.AgentCard) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-registration replaces the old capability index entries.
	s.removeLocked(card.AgentID)

	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now
	card.LastHeartbeat = now

	s.cards[card.AgentID] = card
	s.agents[card.AgentID] = struct{}{}
	for _, cap := range card.Capabilities {
		if s.byCapability[cap] == nil {
			s.byCapability[cap] = make(map[string]struct{})
		}
		s.byCapability[cap][card.AgentID] = struct{}{}
	}
	s.performance[card.AgentID] = card.PerformanceScore
	s.expiry[card.AgentID] = now.Add(s.ttl)
	return nil
}

// Heartbeat refreshes the agent's TTL.
func (s *MemoryStore) Heartbeat(_ context.Context, agentID string) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiredLocked(agentID, now) {
		s.removeLocked(agentID)
		return murshiderrors.ErrUnknownAgent
	}
	card := s.cards[agentID]
	card.LastHeartbeat = now
	card.UpdatedAt = now
	s.cards[agentID] = card
	s.expiry[agentID] = now.Add(s.ttl)
	return nil
}

// UpdatePerformance sets the agent's score in both the card and the
// denormalized score map.
func (s *MemoryStore) UpdatePerformance(_ context.Context, agentID string, score float64) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiredLocked(agentID, now) {
		return murshiderrors.ErrUnknownAgent
	}
	card := s.cards[agentID]
	card.PerformanceScore = score
	card.UpdatedAt = now
	s.cards[agentID] = card
	s.performance[agentID] = score
	return nil
}

// UpdateStatus sets the agent's lifecycle status.
func (s *MemoryStore) UpdateStatus(_ context.Context, agentID string, status advisory.AgentStatus) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiredLocked(agentID, now) {
		return murshiderrors.ErrUnknownAgent
	}
	card := s.cards[agentID]
	card.Status = status
	card.UpdatedAt = now
	s.cards[agentID] = card
	return nil
}

// Deregister removes the agent from all four maps.
func (s *MemoryStore) Deregister(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[agentID]; !ok {
		return murshiderrors.ErrUnknownAgent
	}
	s.removeLocked(agentID)
	return nil
}

// Get returns the card for agentID.
func (s *MemoryStore) Get(_ context.Context, agentID string) (advisory.AgentCard, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.expiredLocked(agentID, now) {
		return advisory.AgentCard{}, murshiderrors.ErrUnknownAgent
	}
	return s.cards[agentID], nil
}

// Discover returns live active cards covering every capability in caps.
func (s *MemoryStore) Discover(_ context.Context, caps []advisory.Capability) ([]advisory.AgentCard, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []advisory.AgentCard
	for agentID := range s.agents {
		if s.expiredLocked(agentID, now) {
			continue
		}
		card := s.cards[agentID]
		if card.Status != advisory.StatusActive {
			continue
		}
		if card.CoversAll(caps) {
			out = append(out, card)
		}
	}
	return out, nil
}

// DiscoverByTags returns live active cards carrying every tag.
func (s *MemoryStore) DiscoverByTags(_ context.Context, tags []string) ([]advisory.AgentCard, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []advisory.AgentCard
	for agentID := range s.agents {
		if s.expiredLocked(agentID, now) {
			continue
		}
		card := s.cards[agentID]
		if card.Status != advisory.StatusActive {
			continue
		}
		if hasAllTags(card.Tags, tags) {
			out = append(out, card)
		}
	}
	return out, nil
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
