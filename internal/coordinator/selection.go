package coordinator

import (
	"context"
	"errors"

	"github.com/haql-ai/murshid/internal/advisory"
	murshiderrors "github.com/haql-ai/murshid/internal/errors"
	"github.com/haql-ai/murshid/internal/locale"
)

// maxCouncilSize caps the experts seated in a council round.
const maxCouncilSize = 5

// selection is the outcome of matching required capabilities against the
// registry.
type selection struct {
	// agents are the chosen cards, one per covered capability worth of
	// work, deduplicated by agent ID.
	agents []advisory.AgentCard

	// covered maps each satisfied capability to the chosen agent's ID.
	covered map[advisory.Capability]string

	// missing lists capabilities no active agent advertises.
	missing []advisory.Capability

	// mode carries the (possibly downgraded) execution mode.
	mode advisory.ExecutionMode

	// warnings are localized notes about missing specialists.
	warnings []string

	// stale is set when the registry served last-known-good data.
	stale bool
}

// selectAgents resolves each required capability to the best active agent.
// More than half the capabilities missing downgrades the mode one notch;
// fewer missing only adds warnings. A fully uncovered requirement set falls
// back to a general advisor before giving up with ErrNoAgents.
func (c *Coordinator) selectAgents(ctx context.Context, analysis advisory.Analysis, lang advisory.Language) (selection, error) {
	sel := selection{
		covered: make(map[advisory.Capability]string),
		mode:    analysis.Mode,
	}
	seen := make(map[string]bool)

	for _, cap := range analysis.RequiredCapabilities {
		cards, stale, err := c.registry.Discover(ctx, []advisory.Capability{cap})
		if stale {
			sel.stale = true
		}
		if err != nil && !errors.Is(err, murshiderrors.ErrNoAgents) {
			return selection{}, err
		}
		if len(cards) == 0 {
			sel.missing = append(sel.missing, cap)
			sel.warnings = append(sel.warnings, locale.NoSpecialistWarning(lang, cap))
			continue
		}
		best := cards[0]
		sel.covered[cap] = best.AgentID
		if !seen[best.AgentID] {
			seen[best.AgentID] = true
			sel.agents = append(sel.agents, best)
		}
	}

	if len(sel.agents) == 0 {
		// Nothing specific matched; a generalist beats no answer.
		card, stale, err := c.registry.BestFor(ctx, advisory.CapGeneralAdvisory)
		if stale {
			sel.stale = true
		}
		if err != nil {
			return selection{}, murshiderrors.ErrNoAgents
		}
		sel.agents = append(sel.agents, card)
		sel.covered[advisory.CapGeneralAdvisory] = card.AgentID
		sel.mode = advisory.ModeSingle
		return sel, nil
	}

	if n := len(analysis.RequiredCapabilities); n > 0 && len(sel.missing)*2 > n {
		sel.mode = sel.mode.Downgrade()
	}

	if sel.mode == advisory.ModeCouncil {
		// A council needs at least two distinct perspectives; a single
		// required capability gets one expert, not a same-specialty panel.
		if distinctCapabilities(analysis.RequiredCapabilities) < 2 {
			sel.mode = advisory.ModeSingle
			sel.agents = sel.agents[:1]
			return sel, nil
		}
		sel.agents = c.expandCouncil(ctx, sel.agents, seen, &sel, analysis.RequiredCapabilities)
		if len(sel.agents) > maxCouncilSize {
			sel.agents = sel.agents[:maxCouncilSize]
		}
		// A council of one is just a single expert.
		if len(sel.agents) < 2 {
			sel.mode = advisory.ModeSingle
		}
	}
	return sel, nil
}

func distinctCapabilities(caps []advisory.Capability) int {
	set := make(map[advisory.Capability]bool, len(caps))
	for _, cap := range caps {
		set[cap] = true
	}
	return len(set)
}

// expandCouncil pads a council with further qualified agents beyond the
// per-capability best, so dissent has somewhere to come from. Capabilities
// are revisited in their required order to keep seating deterministic.
func (c *Coordinator) expandCouncil(ctx context.Context, agents []advisory.AgentCard, seen map[string]bool, sel *selection, caps []advisory.Capability) []advisory.AgentCard {
	if len(agents) >= maxCouncilSize {
		return agents
	}
	for _, cap := range caps {
		if _, ok := sel.covered[cap]; !ok {
			continue
		}
		cards, stale, err := c.registry.Discover(ctx, []advisory.Capability{cap})
		if stale {
			sel.stale = true
		}
		if err != nil {
			continue
		}
		for _, card := range cards {
			if seen[card.AgentID] {
				continue
			}
			seen[card.AgentID] = true
			agents = append(agents, card)
			if len(agents) >= maxCouncilSize {
				return agents
			}
		}
	}
	return agents
}
