package registry

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/haql-ai/murshid/internal/advisory"
)

const (
	defaultCacheSize = 128
	// maxCacheTTL caps the read cache so discovery results can never be
	// served meaningfully past the backing store's own state.
	maxCacheTTL = 60 * time.Second
)

// readCache is a read-through cache for discovery results plus a
// last-known-good snapshot consulted only during storage outages. The LRU
// layer is invalidated on every local write; the stale snapshot survives
// invalidation on purpose.
type readCache struct {
	lru *expirable.LRU[string, []advisory.AgentCard]

	mu         sync.RWMutex
	staleLists map[string][]advisory.AgentCard
	staleCards map[string]advisory.AgentCard
}

func newReadCache(size int, ttl time.Duration) *readCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 || ttl > maxCacheTTL {
		ttl = maxCacheTTL
	}
	return &readCache{
		lru:        expirable.NewLRU[string, []advisory.AgentCard](size, nil, ttl),
		staleLists: make(map[string][]advisory.AgentCard),
		staleCards: make(map[string]advisory.AgentCard),
	}
}

// Lookup returns a fresh cached discovery result.
func (c *readCache) Lookup(key string) ([]advisory.AgentCard, bool) {
	return c.lru.Get(key)
}

// Store caches a discovery result and records it as last-known-good.
func (c *readCache) Store(key string, cards []advisory.AgentCard) {
	copied := make([]advisory.AgentCard, len(cards))
	copy(copied, cards)
	c.lru.Add(key, copied)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.staleLists[key] = copied
	for _, card := range copied {
		c.staleCards[card.AgentID] = card
	}
}

// RememberCard records a single card as last-known-good.
func (c *readCache) RememberCard(card advisory.AgentCard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staleCards[card.AgentID] = card
}

// StaleLookup returns the last successful result for key, regardless of age.
func (c *readCache) StaleLookup(key string) ([]advisory.AgentCard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cards, ok := c.staleLists[key]
	return cards, ok
}

// StaleCard returns the last successfully read card for agentID.
func (c *readCache) StaleCard(agentID string) (advisory.AgentCard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.staleCards[agentID]
	return card, ok
}

// Invalidate drops every fresh entry. Called on any local write so readers
// never see pre-write state past the write.
func (c *readCache) Invalidate() {
	c.lru.Purge()
}
