package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/haql-ai/murshid/internal/advisory"
	"github.com/haql-ai/murshid/internal/llm"
	"github.com/haql-ai/murshid/internal/locale"
	"github.com/haql-ai/murshid/internal/observability"
)

// failurePenalty scales confidence down by the fraction of experts that
// failed to answer.
const failurePenalty = 0.15

// synthesize folds the collected opinions into the final advisory. It never
// fails: when the model is unreachable the deterministic fallback joins the
// opinions verbatim.
func (c *Coordinator) synthesize(ctx context.Context, query advisory.Query, analysis advisory.Analysis, sel selection, result runResult) advisory.Advisory {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanSynthesize)
	defer span.End()

	adv := advisory.Advisory{
		Kind:     analysis.Kind,
		Mode:     sel.mode,
		Language: query.Language,
		Warnings: append([]string(nil), sel.warnings...),
		Metadata: map[string]string{},
	}
	// Opinion order is part of the contract: dispatch order for pipelines,
	// completion order for fan-out.
	for _, op := range result.opinions {
		adv.AgentsConsulted = append(adv.AgentsConsulted, op.AgentID)
		adv.Recommendations = append(adv.Recommendations, op.Recommendation)
	}

	if len(result.failed) > 0 {
		adv.Metadata[advisory.MetaPartial] = "true"
		adv.Warnings = append(adv.Warnings, locale.T(query.Language, locale.KeyPartialResults))
	}
	if result.degraded {
		adv.Metadata[advisory.MetaDegraded] = "true"
	}
	if sel.stale {
		adv.Metadata[advisory.MetaStaleRegistry] = "true"
	}
	if result.deliberationRounds > 0 {
		adv.Metadata[advisory.MetaDeliberationRounds] = fmt.Sprintf("%d", result.deliberationRounds)
	}

	adv.Confidence = c.overallConfidence(result)

	if result.consensus != nil {
		cons := result.consensus
		if len(cons.Conflicts) > 0 {
			adv.Warnings = append(adv.Warnings, locale.T(query.Language, locale.KeyConflictingAdvice))
			for _, conflict := range cons.Conflicts {
				adv.Warnings = append(adv.Warnings, conflictWarning(conflict))
			}
		}
		for _, dissent := range cons.Dissenting {
			adv.NextSteps = append(adv.NextSteps, dissent.Recommendation)
		}
	}

	adv.Answer = c.composeAnswer(ctx, query, result)
	return adv
}

// conflictWarning renders one residual council conflict for the farmer.
func conflictWarning(c advisory.Conflict) string {
	if c.SuggestedResolution == "" {
		return c.Description
	}
	return c.Description + ": " + c.SuggestedResolution
}

// overallConfidence is the mean opinion confidence damped by the failed
// fraction. A council answer inherits the consensus confidence instead of
// the raw mean.
func (c *Coordinator) overallConfidence(result runResult) float64 {
	total := len(result.opinions) + len(result.failed)
	if total == 0 || len(result.opinions) == 0 {
		return 0
	}

	base := 0.0
	if result.consensus != nil {
		base = result.consensus.Confidence
	} else {
		sum := 0.0
		for _, op := range result.opinions {
			sum += op.Confidence
		}
		base = sum / float64(len(result.opinions))
	}

	failedFraction := float64(len(result.failed)) / float64(total)
	confidence := base * (1 - failurePenalty*failedFraction)
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// composeAnswer produces the answer text. One opinion passes through
// unchanged; a council leads with the consensus decision; anything else is
// merged by the model, with plain concatenation as the fallback.
func (c *Coordinator) composeAnswer(ctx context.Context, query advisory.Query, result runResult) string {
	if len(result.opinions) == 0 {
		return locale.T(query.Language, locale.KeyAllAgentsFailed)
	}
	if len(result.opinions) == 1 && result.consensus == nil {
		return result.opinions[0].Recommendation
	}

	if c.llm != nil && ctx.Err() == nil {
		if merged, err := c.synthesizeLLM(ctx, query, result); err == nil {
			return merged
		} else {
			c.logger.WarnContext(ctx, "model synthesis failed, concatenating opinions", "error", err)
		}
	}
	return fallbackAnswer(query.Language, result)
}

func (c *Coordinator) synthesizeLLM(ctx context.Context, query advisory.Query, result runResult) (string, error) {
	language := "English"
	if query.Language == advisory.LanguageArabic {
		language = "Arabic"
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Farmer's question: %s\n\n", query.Text)
	if result.consensus != nil {
		fmt.Fprintf(&prompt, "Council decision (confidence %.2f): %s\n\n", result.consensus.Confidence, result.consensus.Decision)
	}
	prompt.WriteString("Expert opinions:\n")
	for _, op := range result.opinions {
		fmt.Fprintf(&prompt, "- %s (confidence %.2f): %s\n", op.AgentRole, op.Confidence, op.Recommendation)
		if op.Reasoning != "" {
			fmt.Fprintf(&prompt, "  reasoning: %s\n", op.Reasoning)
		}
	}
	fmt.Fprintf(&prompt, "\nMerge these into one clear, practical answer in %s for a farmer. Keep every actionable step. Do not invent advice beyond the opinions.", language)

	answer, err := c.llm.Complete(ctx, llm.CompletionRequest{
		System:      "You are an agricultural advisor writing the final answer to a farmer.",
		Prompt:      prompt.String(),
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("empty synthesis")
	}
	return answer, nil
}

// fallbackAnswer concatenates opinions deterministically: the strongest
// recommendation first, the rest under an "additional advice" header.
func fallbackAnswer(lang advisory.Language, result runResult) string {
	opinions := append([]advisory.Opinion(nil), result.opinions...)
	sort.SliceStable(opinions, func(i, j int) bool {
		return opinions[i].Confidence > opinions[j].Confidence
	})

	var b strings.Builder
	if result.consensus != nil {
		b.WriteString(result.consensus.Decision)
	} else {
		b.WriteString(opinions[0].Recommendation)
		opinions = opinions[1:]
	}
	rest := make([]string, 0, len(opinions))
	for _, op := range opinions {
		if result.consensus != nil && op.Recommendation == result.consensus.Decision {
			continue
		}
		rest = append(rest, op.Recommendation)
	}
	if len(rest) > 0 {
		fmt.Fprintf(&b, "\n\n%s:\n", locale.T(lang, locale.KeyAdditionalAdvice))
		for _, r := range rest {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return strings.TrimSpace(b.String())
}
