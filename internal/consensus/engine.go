// Package consensus aggregates expert opinions under named strategies and
// reports explicit conflicts. The engine is pure: no I/O, and deterministic
// for a given input regardless of opinion order.
package consensus

import (
	"fmt"
	"math"

	"github.com/haql-ai/murshid/internal/advisory"
)

// Criterion selects how Best ranks strategies.
type Criterion string

const (
	CriterionConfidence     Criterion = "confidence"
	CriterionConsensusLevel Criterion = "consensus_level"
)

// DefaultSupermajorityThreshold is the fraction of opinions a group needs to
// win SUPERMAJORITY outright.
const DefaultSupermajorityThreshold = 2.0 / 3.0

// Engine aggregates opinions. Expertise weights are policy injected at
// construction; a missing role weighs 1.0.
type Engine struct {
	weights            map[string]float64
	supermajority      float64
	evidenceNormalizer func(string) []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithExpertiseWeights sets the per-role weight table for EXPERTISE_WEIGHTED.
func WithExpertiseWeights(weights map[string]float64) Option {
	return func(e *Engine) {
		if weights != nil {
			e.weights = weights
		}
	}
}

// WithSupermajorityThreshold overrides the SUPERMAJORITY threshold.
func WithSupermajorityThreshold(theta float64) Option {
	return func(e *Engine) {
		if theta > 0 && theta <= 1 {
			e.supermajority = theta
		}
	}
}

// WithEvidenceNormalizer overrides evidence tokenization for conflict
// detection.
func WithEvidenceNormalizer(fn func(string) []string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.evidenceNormalizer = fn
		}
	}
}

// New creates an Engine with default policy.
func New(opts ...Option) *Engine {
	e := &Engine{
		weights:            map[string]float64{},
		supermajority:      DefaultSupermajorityThreshold,
		evidenceNormalizer: defaultEvidenceTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) roleWeight(role string) float64 {
	if w, ok := e.weights[role]; ok && w > 0 {
		return w
	}
	return 1.0
}

// Aggregate produces a Consensus for opinions under strategy. At least one
// opinion is required.
func (e *Engine) Aggregate(opinions []advisory.Opinion, strategy advisory.Strategy) (advisory.Consensus, error) {
	if len(opinions) == 0 {
		return advisory.Consensus{}, fmt.Errorf("aggregate requires at least one opinion")
	}
	for _, op := range opinions {
		if op.Recommendation == "" {
			return advisory.Consensus{}, fmt.Errorf("opinion from %s has empty recommendation", op.AgentID)
		}
		if math.IsNaN(op.Confidence) || math.IsInf(op.Confidence, 0) {
			return advisory.Consensus{}, fmt.Errorf("opinion from %s has non-finite confidence", op.AgentID)
		}
	}

	groups := groupOpinions(opinions)

	var result advisory.Consensus
	switch strategy {
	case advisory.StrategyMajorityVote:
		result = e.majorityVote(groups)
	case advisory.StrategyWeightedConfidence:
		result = e.weightedConfidence(groups)
	case advisory.StrategyExpertiseWeighted:
		result = e.expertiseWeighted(groups)
	case advisory.StrategyUnanimous:
		result = e.unanimous(groups)
	case advisory.StrategySupermajority:
		result = e.supermajorityVote(groups)
	case advisory.StrategyBayesian:
		result = e.bayesian(groups)
	case advisory.StrategyRankedChoice:
		result = e.rankedChoice(groups)
	default:
		return advisory.Consensus{}, fmt.Errorf("unknown strategy %q", strategy)
	}

	result.Strategy = strategy
	result.Conflicts = e.detectConflicts(groups)
	finalize(&result)
	return result, nil
}

// CompareStrategies runs every strategy over the same opinions.
func (e *Engine) CompareStrategies(opinions []advisory.Opinion) (map[advisory.Strategy]advisory.Consensus, error) {
	out := make(map[advisory.Strategy]advisory.Consensus, len(advisory.Strategies))
	for _, strategy := range advisory.Strategies {
		consensus, err := e.Aggregate(opinions, strategy)
		if err != nil {
			return nil, err
		}
		out[strategy] = consensus
	}
	return out, nil
}

// Best returns the strategy whose Consensus maximizes criterion, breaking
// ties by strategy enumeration order.
func (e *Engine) Best(opinions []advisory.Opinion, criterion Criterion) (advisory.Strategy, advisory.Consensus, error) {
	all, err := e.CompareStrategies(opinions)
	if err != nil {
		return "", advisory.Consensus{}, err
	}

	var bestStrategy advisory.Strategy
	var best advisory.Consensus
	bestScore := math.Inf(-1)
	for _, strategy := range advisory.Strategies {
		consensus := all[strategy]
		score := consensus.Confidence
		if criterion == CriterionConsensusLevel {
			score = consensus.ConsensusLevel
		}
		if score > bestScore {
			bestScore = score
			bestStrategy = strategy
			best = consensus
		}
	}
	return bestStrategy, best, nil
}

// assemble builds the common consensus shape from a winner index.
func assemble(groups []group, winner int, confidence, level float64) advisory.Consensus {
	var supporting, dissenting []advisory.Opinion
	for i, g := range groups {
		if i == winner {
			supporting = append(supporting, g.opinions...)
		} else {
			dissenting = append(dissenting, g.opinions...)
		}
	}
	return advisory.Consensus{
		Decision:       groups[winner].representative().Recommendation,
		Confidence:     confidence,
		ConsensusLevel: level,
		Supporting:     supporting,
		Dissenting:     dissenting,
	}
}

// finalize clamps scores and enforces the partition law: consensus level is
// exactly 1 iff nobody dissents.
func finalize(c *advisory.Consensus) {
	c.Confidence = clamp01(c.Confidence)
	c.ConsensusLevel = clamp01(c.ConsensusLevel)
	if len(c.Dissenting) == 0 {
		c.ConsensusLevel = 1.0
	} else if c.ConsensusLevel >= 1.0 {
		c.ConsensusLevel = 0.99
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
