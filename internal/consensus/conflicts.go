package consensus

import (
	"fmt"
	"strings"

	"github.com/haql-ai/murshid/internal/advisory"
)

// confidentThreshold is the confidence an opinion needs before its group
// counts toward a recommendation divergence.
const confidentThreshold = 0.6

// detectConflicts computes conflicts independently of the chosen strategy.
func (e *Engine) detectConflicts(groups []group) []advisory.Conflict {
	var conflicts []advisory.Conflict
	conflicts = append(conflicts, e.recommendationDivergence(groups)...)
	conflicts = append(conflicts, e.evidenceDivergence(groups)...)
	conflicts = append(conflicts, e.severityDivergence(groups)...)
	return conflicts
}

// recommendationDivergence fires for every pair of groups that each hold at
// least one confident opinion. Severity grows as the groups' mean confidences
// approach each other: an even match is the hardest conflict to resolve.
func (e *Engine) recommendationDivergence(groups []group) []advisory.Conflict {
	var confident []group
	for _, g := range groups {
		for _, op := range g.opinions {
			if op.Confidence >= confidentThreshold {
				confident = append(confident, g)
				break
			}
		}
	}

	var conflicts []advisory.Conflict
	for i := 0; i < len(confident); i++ {
		for j := i + 1; j < len(confident); j++ {
			a, b := confident[i], confident[j]
			severity := clamp01(1 - abs(a.meanConfidence()-b.meanConfidence()))
			conflicts = append(conflicts, advisory.Conflict{
				Parties:  append(a.agentIDs(), b.agentIDs()...),
				Kind:     advisory.ConflictRecommendation,
				Severity: severity,
				Description: fmt.Sprintf("confident experts recommend %q versus %q",
					a.representative().Recommendation, b.representative().Recommendation),
				SuggestedResolution: "weigh both recommendations against local field conditions",
			})
		}
	}
	return conflicts
}

// evidenceDivergence fires when opinions in different groups cite overlapping
// evidence yet reach different recommendations. Severity is the Jaccard
// overlap of the evidence token sets.
func (e *Engine) evidenceDivergence(groups []group) []advisory.Conflict {
	var conflicts []advisory.Conflict
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			for _, a := range groups[i].opinions {
				for _, b := range groups[j].opinions {
					overlap := jaccard(e.evidenceTokenSet(a), e.evidenceTokenSet(b))
					if overlap <= 0 {
						continue
					}
					conflicts = append(conflicts, advisory.Conflict{
						Parties:  []string{a.AgentID, b.AgentID},
						Kind:     advisory.ConflictEvidence,
						Severity: overlap,
						Description: fmt.Sprintf("%s and %s cite overlapping evidence but draw opposite conclusions",
							a.AgentID, b.AgentID),
						SuggestedResolution: "re-examine the shared evidence with both interpretations in mind",
					})
				}
			}
		}
	}
	return conflicts
}

// severityLevels maps the severity vocabulary experts put in opinion metadata
// onto an ordinal scale.
var severityLevels = map[string]int{
	"low":      1,
	"medium":   2,
	"moderate": 2,
	"high":     3,
	"critical": 4,
}

// severityDivergence fires when opinions carry severity assessments spanning
// more than one level of the scale.
func (e *Engine) severityDivergence(groups []group) []advisory.Conflict {
	minLevel, maxLevel := 0, 0
	var parties []string
	for _, g := range groups {
		for _, op := range g.opinions {
			raw, ok := op.Metadata["severity"]
			if !ok {
				continue
			}
			level, ok := severityLevels[strings.ToLower(strings.TrimSpace(raw))]
			if !ok {
				continue
			}
			if minLevel == 0 || level < minLevel {
				minLevel = level
			}
			if level > maxLevel {
				maxLevel = level
			}
			parties = append(parties, op.AgentID)
		}
	}

	span := maxLevel - minLevel
	if span <= 1 {
		return nil
	}
	return []advisory.Conflict{{
		Parties:             parties,
		Kind:                advisory.ConflictSeverity,
		Severity:            clamp01(float64(span) / 3.0),
		Description:         fmt.Sprintf("expert severity assessments span %d levels of the scale", span),
		SuggestedResolution: "treat the situation at the higher assessed severity until verified",
	}}
}

// evidenceTokenSet tokenizes an opinion's evidence entries.
func (e *Engine) evidenceTokenSet(op advisory.Opinion) map[string]struct{} {
	set := make(map[string]struct{})
	for _, evidence := range op.Evidence {
		for _, token := range e.evidenceNormalizer(evidence) {
			set[token] = struct{}{}
		}
	}
	return set
}

// defaultEvidenceTokens lowercases and splits on non-letter boundaries,
// dropping short fragments.
func defaultEvidenceTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isLetterOrDigit(r)
	})
	var out []string
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

func isLetterOrDigit(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r >= 0x0600 && r <= 0x06FF
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var intersection int
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
