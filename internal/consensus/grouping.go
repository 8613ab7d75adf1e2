package consensus

import (
	"sort"
	"strings"

	"github.com/haql-ai/murshid/internal/advisory"
)

// group is a set of opinions whose recommendations are equal under
// normalization.
type group struct {
	key      string
	opinions []advisory.Opinion
}

// normalizeRecommendation maps a recommendation to its grouping key:
// lowercase, trimmed, inner whitespace collapsed, terminal punctuation
// stripped. Covers both Latin and Arabic sentence punctuation.
func normalizeRecommendation(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".!?؟۔,،;؛ ")
	return s
}

// groupOpinions partitions opinions into recommendation groups. The returned
// slice is ordered by group key so downstream math is independent of the
// input permutation; within a group, opinions keep their input order.
func groupOpinions(opinions []advisory.Opinion) []group {
	byKey := make(map[string]*group)
	var keys []string
	for _, op := range opinions {
		key := normalizeRecommendation(op.Recommendation)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			keys = append(keys, key)
		}
		g.opinions = append(g.opinions, op)
	}
	sort.Strings(keys)
	out := make([]group, 0, len(keys))
	for _, key := range keys {
		out = append(out, *byKey[key])
	}
	return out
}

// count returns the number of opinions in the group.
func (g group) count() int { return len(g.opinions) }

// sumConfidence returns the total confidence mass of the group.
func (g group) sumConfidence() float64 {
	var sum float64
	for _, op := range g.opinions {
		sum += op.Confidence
	}
	return sum
}

// meanConfidence returns the group's average confidence.
func (g group) meanConfidence() float64 {
	if len(g.opinions) == 0 {
		return 0
	}
	return g.sumConfidence() / float64(len(g.opinions))
}

// representative picks the opinion whose recommendation becomes the decision:
// highest confidence, with agent ID as the deterministic tie-break.
func (g group) representative() advisory.Opinion {
	best := g.opinions[0]
	for _, op := range g.opinions[1:] {
		if op.Confidence > best.Confidence ||
			(op.Confidence == best.Confidence && op.AgentID < best.AgentID) {
			best = op
		}
	}
	return best
}

// agentIDs lists the group's agents in input order.
func (g group) agentIDs() []string {
	ids := make([]string, 0, len(g.opinions))
	for _, op := range g.opinions {
		ids = append(ids, op.AgentID)
	}
	return ids
}
