package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haql-ai/murshid/internal/advisory"
	murshiderrors "github.com/haql-ai/murshid/internal/errors"
)

// RedisStore backs the directory with Redis. The card is a JSON value whose
// key carries the agent TTL, so liveness expiry is the store's native key
// expiry. Capability and tag indexes are sets without TTL; readers filter
// index members against live card keys, so an indexed-but-expired agent is
// never observable.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// ConnectRedis creates a Redis client from a URL.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewRedisStore builds a store over client with the given key prefix.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) cardKey(agentID string) string { return s.prefix + "agent:" + agentID }
func (s *RedisStore) capKey(cap advisory.Capability) string {
	return s.prefix + "cap:" + string(cap)
}
func (s *RedisStore) tagKey(tag string) string { return s.prefix + "tag:" + tag }
func (s *RedisStore) membersKey() string       { return s.prefix + "agents" }

func storageErr(op string, err error) error {
	return errors.Join(murshiderrors.ErrStorageUnavailable, fmt.Errorf("%s: %w", op, err))
}

// Register upserts the card and resets its TTL.
func (s *RedisStore) Register(ctx context.Context, card advisory.AgentCard) error {
	now := time.Now()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now
	card.LastHeartbeat = now

	// Replacing a card must also replace its index entries.
	old, err := s.loadCard(ctx, card.AgentID)
	if err != nil && !errors.Is(err, murshiderrors.ErrUnknownAgent) {
		return err
	}

	encoded, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("encode card: %w", err)
	}

	pipe := s.client.TxPipeline()
	if old != nil {
		for _, cap := range old.Capabilities {
			pipe.SRem(ctx, s.capKey(cap), card.AgentID)
		}
		for _, tag := range old.Tags {
			pipe.SRem(ctx, s.tagKey(tag), card.AgentID)
		}
	}
	pipe.Set(ctx, s.cardKey(card.AgentID), encoded, s.ttl)
	pipe.SAdd(ctx, s.membersKey(), card.AgentID)
	for _, cap := range card.Capabilities {
		pipe.SAdd(ctx, s.capKey(cap), card.AgentID)
	}
	for _, tag := range card.Tags {
		pipe.SAdd(ctx, s.tagKey(tag), card.AgentID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storageErr("register", err)
	}
	return nil
}

// loadCard reads and decodes one card, or ErrUnknownAgent if the key expired.
func (s *RedisStore) loadCard(ctx context.Context, agentID string) (*advisory.AgentCard, error) {
	raw, err := s.client.Get(ctx, s.cardKey(agentID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, murshiderrors.ErrUnknownAgent
	}
	if err != nil {
		return nil, storageErr("get card", err)
	}
	var card advisory.AgentCard
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return nil, fmt.Errorf("decode card %s: %w", agentID, err)
	}
	return &card, nil
}

// storeCard rewrites the card JSON, refreshing the TTL.
func (s *RedisStore) storeCard(ctx context.Context, card *advisory.AgentCard) error {
	encoded, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("encode card: %w", err)
	}
	if err := s.client.Set(ctx, s.cardKey(card.AgentID), encoded, s.ttl).Err(); err != nil {
		return storageErr("store card", err)
	}
	return nil
}

// Heartbeat refreshes the TTL; fails ErrUnknownAgent once the key expired.
func (s *RedisStore) Heartbeat(ctx context.Context, agentID string) error {
	card, err := s.loadCard(ctx, agentID)
	if err != nil {
		return err
	}
	now := time.Now()
	card.LastHeartbeat = now
	card.UpdatedAt = now
	return s.storeCard(ctx, card)
}

// UpdatePerformance rewrites the card with the new score.
func (s *RedisStore) UpdatePerformance(ctx context.Context, agentID string, score float64) error {
	card, err := s.loadCard(ctx, agentID)
	if err != nil {
		return err
	}
	card.PerformanceScore = score
	card.UpdatedAt = time.Now()
	return s.storeCard(ctx, card)
}

// UpdateStatus rewrites the card with the new status.
func (s *RedisStore) UpdateStatus(ctx context.Context, agentID string, status advisory.AgentStatus) error {
	card, err := s.loadCard(ctx, agentID)
	if err != nil {
		return err
	}
	card.Status = status
	card.UpdatedAt = time.Now()
	return s.storeCard(ctx, card)
}

// Deregister removes the card and every index entry.
func (s *RedisStore) Deregister(ctx context.Context, agentID string) error {
	card, err := s.loadCard(ctx, agentID)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.cardKey(agentID))
	pipe.SRem(ctx, s.membersKey(), agentID)
	for _, cap := range card.Capabilities {
		pipe.SRem(ctx, s.capKey(cap), agentID)
	}
	for _, tag := range card.Tags {
		pipe.SRem(ctx, s.tagKey(tag), agentID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storageErr("deregister", err)
	}
	return nil
}

// Get returns the card for agentID.
func (s *RedisStore) Get(ctx context.Context, agentID string) (advisory.AgentCard, error) {
	card, err := s.loadCard(ctx, agentID)
	if err != nil {
		return advisory.AgentCard{}, err
	}
	return *card, nil
}

// Discover resolves candidate IDs through the capability index, then filters
// against live cards. Dead index members are pruned opportunistically.
func (s *RedisStore) Discover(ctx context.Context, caps []advisory.Capability) ([]advisory.AgentCard, error) {
	var candidateIDs []string
	var err error
	if len(caps) == 0 {
		candidateIDs, err = s.client.SMembers(ctx, s.membersKey()).Result()
	} else {
		keys := make([]string, len(caps))
		for i, cap := range caps {
			keys[i] = s.capKey(cap)
		}
		candidateIDs, err = s.client.SInter(ctx, keys...).Result()
	}
	if err != nil {
		return nil, storageErr("discover", err)
	}
	return s.resolveCandidates(ctx, candidateIDs, caps)
}

// DiscoverByTags resolves candidates through the tag index.
func (s *RedisStore) DiscoverByTags(ctx context.Context, tags []string) ([]advisory.AgentCard, error) {
	if len(tags) == 0 {
		return s.Discover(ctx, nil)
	}
	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = s.tagKey(tag)
	}
	candidateIDs, err := s.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, storageErr("discover by tags", err)
	}
	return s.resolveCandidates(ctx, candidateIDs, nil)
}

func (s *RedisStore) resolveCandidates(ctx context.Context, candidateIDs []string, caps []advisory.Capability) ([]advisory.AgentCard, error) {
	var out []advisory.AgentCard
	for _, agentID := range candidateIDs {
		card, err := s.loadCard(ctx, agentID)
		if errors.Is(err, murshiderrors.ErrUnknownAgent) {
			// TTL expired after indexing; drop the dead index entries.
			s.pruneExpired(ctx, agentID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if card.Status != advisory.StatusActive {
			continue
		}
		if !card.CoversAll(caps) {
			continue
		}
		out = append(out, *card)
	}
	return out, nil
}

func (s *RedisStore) pruneExpired(ctx context.Context, agentID string) {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.membersKey(), agentID)
	for _, cap := range allCapabilities {
		pipe.SRem(ctx, s.capKey(cap), agentID)
	}
	_, _ = pipe.Exec(ctx)
}

var allCapabilities = []advisory.Capability{
	advisory.CapDiagnosis, advisory.CapTreatment, advisory.CapIrrigation,
	advisory.CapFertilization, advisory.CapPestManagement, advisory.CapSoilScience,
	advisory.CapYieldPrediction, advisory.CapMarketAnalysis, advisory.CapEcological,
	advisory.CapWeatherAnalysis, advisory.CapImageAnalysis, advisory.CapSatelliteAnalysis,
	advisory.CapGeneralAdvisory,
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
