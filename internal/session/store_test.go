package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haql-ai/murshid/internal/advisory"
)

func exchange(n int) Exchange {
	return Exchange{
		QueryText:  fmt.Sprintf("question %d", n),
		Answer:     fmt.Sprintf("answer %d", n),
		Kind:       advisory.KindIrrigation,
		Confidence: 0.8,
		Timestamp:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
	}
}

func TestMemoryStoreAppendAndHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "farmer-1", exchange(1)))
	require.NoError(t, store.Append(ctx, "farmer-1", exchange(2)))
	require.NoError(t, store.Append(ctx, "farmer-2", exchange(9)))

	history, err := store.History(ctx, "farmer-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "question 1", history[0].QueryText)
	assert.Equal(t, "question 2", history[1].QueryText)

	other, err := store.History(ctx, "farmer-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "question 9", other[0].QueryText)
}

func TestMemoryStoreTrimsToLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for n := 0; n < HistoryLimit+4; n++ {
		require.NoError(t, store.Append(ctx, "s", exchange(n)))
	}

	history, err := store.History(ctx, "s")
	require.NoError(t, err)
	require.Len(t, history, HistoryLimit)
	// Oldest entries were evicted.
	assert.Equal(t, "question 4", history[0].QueryText)
	assert.Equal(t, fmt.Sprintf("question %d", HistoryLimit+3), history[len(history)-1].QueryText)
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s", exchange(1)))
	require.NoError(t, store.Clear(ctx, "s"))

	history, err := store.History(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryStoreHistoryIsACopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s", exchange(1)))

	history, err := store.History(ctx, "s")
	require.NoError(t, err)
	history[0].Answer = "mutated"

	again, err := store.History(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "answer 1", again[0].Answer)
}
