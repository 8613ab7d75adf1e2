package consensus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haql-ai/murshid/internal/advisory"
)

func opinion(agentID, role, rec string, confidence float64) advisory.Opinion {
	return advisory.Opinion{
		AgentID:        agentID,
		AgentRole:      role,
		Recommendation: rec,
		Confidence:     confidence,
	}
}

// splitOpinions is the canonical disagreement fixture: two experts back a
// fungicide, one backs irrigation changes.
func splitOpinions() []advisory.Opinion {
	return []advisory.Opinion{
		opinion("a", "diagnosis", "Apply fungicide X", 0.9),
		opinion("b", "treatment", "apply fungicide x.", 0.4),
		opinion("c", "irrigation", "Reduce irrigation frequency", 0.7),
	}
}

func TestMajorityVote(t *testing.T) {
	engine := New()
	result, err := engine.Aggregate(splitOpinions(), advisory.StrategyMajorityVote)
	require.NoError(t, err)

	assert.Equal(t, "Apply fungicide X", result.Decision)
	assert.InDelta(t, 0.66, result.Confidence, 1e-9)
	assert.InDelta(t, 2.0/3.0, result.ConsensusLevel, 1e-9)
	assert.Len(t, result.Supporting, 2)
	assert.Len(t, result.Dissenting, 1)
}

func TestWeightedConfidence(t *testing.T) {
	engine := New()
	result, err := engine.Aggregate(splitOpinions(), advisory.StrategyWeightedConfidence)
	require.NoError(t, err)

	// Fungicide mass 1.3 of 2.0 total.
	assert.Equal(t, "Apply fungicide X", result.Decision)
	assert.InDelta(t, 0.65, result.ConsensusLevel, 1e-9)
	assert.InDelta(t, 0.7*0.65+0.3*(2.0/3.0), result.Confidence, 1e-9)
}

func TestWeightedConfidenceZeroMassFallsBackToCounts(t *testing.T) {
	opinions := []advisory.Opinion{
		opinion("a", "diagnosis", "rest the field", 0),
		opinion("b", "treatment", "rest the field", 0),
		opinion("c", "irrigation", "flood it", 0),
	}
	result, err := New().Aggregate(opinions, advisory.StrategyWeightedConfidence)
	require.NoError(t, err)
	assert.Equal(t, "rest the field", result.Decision)
	assert.InDelta(t, 2.0/3.0, result.ConsensusLevel, 1e-9)
}

func TestUnanimousAgreement(t *testing.T) {
	opinions := []advisory.Opinion{
		opinion("a", "diagnosis", "Apply fungicide X", 0.9),
		opinion("b", "treatment", "Apply fungicide X", 0.7),
	}
	result, err := New().Aggregate(opinions, advisory.StrategyUnanimous)
	require.NoError(t, err)

	assert.Equal(t, "unanimous", result.CouncilKind)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
	assert.Equal(t, 1.0, result.ConsensusLevel)
	assert.Empty(t, result.Dissenting)
}

func TestUnanimousFallsBackDiscounted(t *testing.T) {
	result, err := New().Aggregate(splitOpinions(), advisory.StrategyUnanimous)
	require.NoError(t, err)

	assert.Equal(t, "majority_fallback", result.CouncilKind)
	assert.InDelta(t, 0.66*0.7, result.Confidence, 1e-9)
	assert.NotEmpty(t, result.Dissenting)
}

func TestSupermajorityQualifies(t *testing.T) {
	// 2 of 3 exactly meets the default 2/3 threshold.
	result, err := New().Aggregate(splitOpinions(), advisory.StrategySupermajority)
	require.NoError(t, err)

	assert.Equal(t, "Apply fungicide X", result.Decision)
	assert.InDelta(t, 0.66, result.Confidence, 1e-9)
	assert.InDelta(t, 2.0/3.0, result.ConsensusLevel, 1e-9)
	assert.Empty(t, result.CouncilKind)
}

func TestSupermajorityFallsBackToWeighted(t *testing.T) {
	engine := New(WithSupermajorityThreshold(0.75))
	result, err := engine.Aggregate(splitOpinions(), advisory.StrategySupermajority)
	require.NoError(t, err)

	assert.Equal(t, "weighted_fallback", result.CouncilKind)
	assert.Equal(t, "Apply fungicide X", result.Decision)
	// Consensus level reverts to the vote share of the winning group.
	assert.InDelta(t, 2.0/3.0, result.ConsensusLevel, 1e-9)
}

func TestBayesianRewardsConfidentMinority(t *testing.T) {
	// Fungicide posterior 0.5*0.9*0.4 = 0.18 loses to irrigation 0.5*0.7 = 0.35:
	// the low-confidence second vote drags its group down multiplicatively.
	result, err := New().Aggregate(splitOpinions(), advisory.StrategyBayesian)
	require.NoError(t, err)

	assert.Equal(t, "Reduce irrigation frequency", result.Decision)
	assert.InDelta(t, 0.35/0.53, result.ConsensusLevel, 1e-9)
}

func TestBayesianZeroConfidenceDoesNotAnnihilate(t *testing.T) {
	opinions := []advisory.Opinion{
		opinion("a", "diagnosis", "Apply fungicide X", 0.9),
		opinion("b", "treatment", "Apply fungicide X", 0),
		opinion("c", "irrigation", "Reduce irrigation frequency", 0),
	}
	result, err := New().Aggregate(opinions, advisory.StrategyBayesian)
	require.NoError(t, err)
	// The floor keeps posteriors finite, but a zero-confidence member still
	// penalizes its group multiplicatively: the singleton wins here.
	assert.False(t, math.IsNaN(result.Confidence))
	assert.Equal(t, "Reduce irrigation frequency", result.Decision)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestRankedChoicePrefersStrongConviction(t *testing.T) {
	result, err := New().Aggregate(splitOpinions(), advisory.StrategyRankedChoice)
	require.NoError(t, err)

	// 0.81+0.16 = 0.97 beats 0.49.
	assert.Equal(t, "Apply fungicide X", result.Decision)
	assert.InDelta(t, 0.97/1.46, result.ConsensusLevel, 1e-9)
}

func TestExpertiseWeighted(t *testing.T) {
	engine := New(WithExpertiseWeights(map[string]float64{
		"irrigation": 3.0,
	}))
	result, err := engine.Aggregate(splitOpinions(), advisory.StrategyExpertiseWeighted)
	require.NoError(t, err)

	// Irrigation mass 0.7*3 = 2.1 beats fungicide 1.3.
	assert.Equal(t, "Reduce irrigation frequency", result.Decision)
}

func TestAggregateOrderIndependent(t *testing.T) {
	forward := splitOpinions()
	reversed := []advisory.Opinion{forward[2], forward[1], forward[0]}

	for _, strategy := range advisory.Strategies {
		a, err := New().Aggregate(forward, strategy)
		require.NoError(t, err, strategy)
		b, err := New().Aggregate(reversed, strategy)
		require.NoError(t, err, strategy)

		assert.Equal(t, a.Decision, b.Decision, strategy)
		assert.InDelta(t, a.Confidence, b.Confidence, 1e-12, strategy)
		assert.InDelta(t, a.ConsensusLevel, b.ConsensusLevel, 1e-12, strategy)
	}
}

func TestPartitionLaw(t *testing.T) {
	for _, strategy := range advisory.Strategies {
		result, err := New().Aggregate(splitOpinions(), strategy)
		require.NoError(t, err, strategy)
		if len(result.Dissenting) == 0 {
			assert.Equal(t, 1.0, result.ConsensusLevel, strategy)
		} else {
			assert.Less(t, result.ConsensusLevel, 1.0, strategy)
		}
		assert.Len(t, result.Supporting, 3-len(result.Dissenting), strategy)
	}
}

func TestAggregateRejectsBadInput(t *testing.T) {
	engine := New()

	_, err := engine.Aggregate(nil, advisory.StrategyMajorityVote)
	assert.Error(t, err)

	_, err = engine.Aggregate([]advisory.Opinion{opinion("a", "r", "", 0.5)}, advisory.StrategyMajorityVote)
	assert.Error(t, err)

	_, err = engine.Aggregate([]advisory.Opinion{opinion("a", "r", "x", math.NaN())}, advisory.StrategyMajorityVote)
	assert.Error(t, err)

	_, err = engine.Aggregate(splitOpinions(), advisory.Strategy("VIBES"))
	assert.Error(t, err)
}

func TestCompareStrategiesCoversAll(t *testing.T) {
	all, err := New().CompareStrategies(splitOpinions())
	require.NoError(t, err)
	require.Len(t, all, len(advisory.Strategies))
	for _, strategy := range advisory.Strategies {
		assert.Equal(t, strategy, all[strategy].Strategy)
	}
}

func TestBestIsDeterministic(t *testing.T) {
	s1, c1, err := New().Best(splitOpinions(), CriterionConfidence)
	require.NoError(t, err)
	s2, c2, err := New().Best(splitOpinions(), CriterionConfidence)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, c1.Decision, c2.Decision)

	_, byLevel, err := New().Best(splitOpinions(), CriterionConsensusLevel)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, byLevel.ConsensusLevel, c1.ConsensusLevel-1e-12)
}

func TestRepresentativeTieBreak(t *testing.T) {
	// Same confidence in the winning group: the smaller agent ID speaks.
	opinions := []advisory.Opinion{
		opinion("zeta", "a", "Rotate crops", 0.8),
		opinion("alpha", "b", "rotate crops", 0.8),
	}
	result, err := New().Aggregate(opinions, advisory.StrategyMajorityVote)
	require.NoError(t, err)
	assert.Equal(t, "rotate crops", result.Decision)
}
