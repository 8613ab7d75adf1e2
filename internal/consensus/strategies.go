package consensus

import (
	"math"

	"github.com/haql-ai/murshid/internal/advisory"
)

// total opinion count across groups.
func totalCount(groups []group) int {
	var n int
	for _, g := range groups {
		n += g.count()
	}
	return n
}

// pickWinner chooses argmax of score over groups. Ties fall to the higher
// mean confidence, then the lexicographically smaller group key (groups are
// already key-sorted, so the first of equals wins).
func pickWinner(groups []group, score func(group) float64) int {
	winner := 0
	for i := 1; i < len(groups); i++ {
		si, sw := score(groups[i]), score(groups[winner])
		switch {
		case si > sw:
			winner = i
		case si == sw && groups[i].meanConfidence() > groups[winner].meanConfidence():
			winner = i
		}
	}
	return winner
}

// majorityVote: largest group wins; confidence blends vote share with the
// winning group's mean confidence.
func (e *Engine) majorityVote(groups []group) advisory.Consensus {
	total := float64(totalCount(groups))
	winner := pickWinner(groups, func(g group) float64 { return float64(g.count()) })
	win := groups[winner]
	ratio := float64(win.count()) / total
	confidence := 0.6*ratio + 0.4*win.meanConfidence()
	return assemble(groups, winner, confidence, ratio)
}

// weightedConfidence: the group with the largest confidence mass wins.
func (e *Engine) weightedConfidence(groups []group) advisory.Consensus {
	return e.confidenceMass(groups, func(op advisory.Opinion) float64 {
		return op.Confidence
	})
}

// expertiseWeighted: like weightedConfidence with each opinion scaled by its
// agent role's expertise weight.
func (e *Engine) expertiseWeighted(groups []group) advisory.Consensus {
	return e.confidenceMass(groups, func(op advisory.Opinion) float64 {
		return op.Confidence * e.roleWeight(op.AgentRole)
	})
}

// confidenceMass implements the shared shape of the two weighted strategies.
// When every opinion carries zero mass the vote count decides instead.
func (e *Engine) confidenceMass(groups []group, mass func(advisory.Opinion) float64) advisory.Consensus {
	total := float64(totalCount(groups))
	groupMass := make([]float64, len(groups))
	var allMass float64
	for i, g := range groups {
		for _, op := range g.opinions {
			groupMass[i] += mass(op)
		}
		allMass += groupMass[i]
	}

	if allMass == 0 {
		// Degenerate input: fall back to vote counting.
		winner := pickWinner(groups, func(g group) float64 { return float64(g.count()) })
		ratio := float64(groups[winner].count()) / total
		return assemble(groups, winner, ratio, ratio)
	}

	winner := 0
	for i := 1; i < len(groups); i++ {
		if groupMass[i] > groupMass[winner] ||
			(groupMass[i] == groupMass[winner] && groups[i].meanConfidence() > groups[winner].meanConfidence()) {
			winner = i
		}
	}
	win := groups[winner]
	share := groupMass[winner] / allMass
	countRatio := float64(win.count()) / total
	confidence := 0.7*share + 0.3*countRatio
	return assemble(groups, winner, confidence, share)
}

// unanimous: one group means full agreement; otherwise majority vote with a
// 0.7 confidence discount.
func (e *Engine) unanimous(groups []group) advisory.Consensus {
	if len(groups) == 1 {
		result := assemble(groups, 0, groups[0].meanConfidence(), 1.0)
		result.CouncilKind = "unanimous"
		return result
	}
	fallback := e.majorityVote(groups)
	fallback.Confidence *= 0.7
	fallback.CouncilKind = "majority_fallback"
	return fallback
}

// supermajorityVote: a group holding at least the threshold share of votes
// wins outright; otherwise defer to weighted confidence, keeping the vote
// share as the consensus level.
func (e *Engine) supermajorityVote(groups []group) advisory.Consensus {
	total := float64(totalCount(groups))

	qualified := -1
	for i, g := range groups {
		if float64(g.count())/total >= e.supermajority {
			if qualified < 0 || g.count() > groups[qualified].count() {
				qualified = i
			}
		}
	}

	if qualified >= 0 {
		win := groups[qualified]
		ratio := float64(win.count()) / total
		confidence := 0.6*ratio + 0.4*win.meanConfidence()
		return assemble(groups, qualified, confidence, ratio)
	}

	fallback := e.weightedConfidence(groups)
	winCount := len(fallback.Supporting)
	fallback.ConsensusLevel = float64(winCount) / total
	fallback.CouncilKind = "weighted_fallback"
	return fallback
}

// bayesian: per-group posterior proportional to the product of member
// confidences times a uniform prior. Zero confidences are floored at a small
// epsilon so a single uncertain voice cannot annihilate its group.
func (e *Engine) bayesian(groups []group) advisory.Consensus {
	const epsilon = 1e-6
	prior := 1.0 / float64(len(groups))

	posteriors := make([]float64, len(groups))
	var sum float64
	for i, g := range groups {
		posterior := prior
		for _, op := range g.opinions {
			posterior *= math.Max(op.Confidence, epsilon)
		}
		posteriors[i] = posterior
		sum += posterior
	}

	winner := 0
	for i := 1; i < len(groups); i++ {
		if posteriors[i] > posteriors[winner] {
			winner = i
		}
	}
	share := posteriors[winner] / sum
	return assemble(groups, winner, share, share)
}

// rankedChoice: winner maximizes the sum of squared confidences, rewarding
// strong convictions over broad lukewarm support.
func (e *Engine) rankedChoice(groups []group) advisory.Consensus {
	sq := make([]float64, len(groups))
	var all float64
	for i, g := range groups {
		for _, op := range g.opinions {
			sq[i] += op.Confidence * op.Confidence
		}
		all += sq[i]
	}

	if all == 0 {
		winner := pickWinner(groups, func(g group) float64 { return float64(g.count()) })
		ratio := float64(groups[winner].count()) / float64(totalCount(groups))
		return assemble(groups, winner, ratio, ratio)
	}

	winner := 0
	for i := 1; i < len(groups); i++ {
		if sq[i] > sq[winner] {
			winner = i
		}
	}
	share := sq[winner] / all
	return assemble(groups, winner, share, share)
}
