// Package session keeps a short conversational memory per farmer session:
// the last few query/advisory exchanges, used as additional context on
// follow-up questions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/haql-ai/murshid/internal/advisory"
)

// HistoryLimit caps the exchanges retained per session.
const HistoryLimit = 10

// Exchange is one completed query/advisory pair.
type Exchange struct {
	QueryText  string             `json:"query_text"`
	Answer     string             `json:"answer"`
	Kind       advisory.QueryKind `json:"kind"`
	Confidence float64            `json:"confidence"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Store persists per-session exchange history. Appends for the same session
// are serialized by the implementation.
type Store interface {
	// Append records an exchange, evicting the oldest beyond HistoryLimit.
	Append(ctx context.Context, sessionID string, ex Exchange) error

	// History returns the retained exchanges, oldest first.
	History(ctx context.Context, sessionID string) ([]Exchange, error)

	// Clear drops a session's history.
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]Exchange
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Exchange)}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, ex Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.sessions[sessionID], ex)
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	s.sessions[sessionID] = history
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.sessions[sessionID]
	out := make([]Exchange, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
