package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topicEmbed maps any text onto one of three orthogonal unit vectors keyed by
// topic words, making similarity deterministic: 1.0 for the same topic and
// 0.0 across topics.
func topicEmbed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "irrigat") || strings.Contains(lower, "water"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(lower, "aphid") || strings.Contains(lower, "pest"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func seedRetriever(t *testing.T) *Retriever {
	t.Helper()
	r, err := NewRetriever(Config{}, topicEmbed)
	require.NoError(t, err)
	require.NoError(t, r.Add(context.Background(), []Document{
		{ID: "p1", Content: "Drip irrigation halves water use on sandy soils.",
			Metadata: map[string]string{"source": "FAO-56", "crop": "tomato"}},
		{ID: "p2", Content: "Aphid outbreaks follow over-fertilization with nitrogen.",
			Metadata: map[string]string{"source": "IPM handbook"}},
		{ID: "p3", Content: "Crop rotation restores soil structure.",
			Metadata: map[string]string{"source": "extension notes"}},
	}))
	return r
}

func TestRetrieveMatchesTopic(t *testing.T) {
	r := seedRetriever(t)
	passages, err := r.Retrieve(context.Background(), "how much water does drip irrigation need", 2)
	require.NoError(t, err)
	require.Len(t, passages, 1, "orthogonal topics fall below the similarity floor")
	assert.Equal(t, "p1", passages[0].ID)
	assert.Equal(t, "FAO-56", passages[0].Source)
	assert.Equal(t, "tomato", passages[0].Crop)
	assert.InDelta(t, 1.0, float64(passages[0].Similarity), 1e-5)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	r := seedRetriever(t)
	_, err := r.Retrieve(context.Background(), "   ", 3)
	require.Error(t, err)
}

func TestRetrieveEmptyCollection(t *testing.T) {
	r, err := NewRetriever(Config{}, topicEmbed)
	require.NoError(t, err)
	passages, err := r.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetrieveCapsKToCollectionSize(t *testing.T) {
	r := seedRetriever(t)
	// Asking for more than exists must not error.
	passages, err := r.Retrieve(context.Background(), "aphid damage on leaves", 50)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "p2", passages[0].ID)
}

func TestCount(t *testing.T) {
	r := seedRetriever(t)
	assert.Equal(t, 3, r.Count())
}

func TestFormatCompact(t *testing.T) {
	out := FormatCompact([]Passage{
		{Content: "First passage.", Source: "FAO-56"},
		{Content: "Second passage."},
	})
	assert.Contains(t, out, "[FAO-56] First passage.")
	assert.Contains(t, out, "\n---\n")
	assert.Contains(t, out, "Second passage.")

	assert.Empty(t, FormatCompact(nil))
}
