package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haql-ai/murshid/internal/advisory"
	"github.com/haql-ai/murshid/internal/agents"
	"github.com/haql-ai/murshid/internal/observability"
)

// deliberationThreshold is the consensus level below which a council runs
// one extra deliberation round.
const deliberationThreshold = 0.8

// criticalConflictSeverity marks a conflict severe enough to force a
// deliberation round even when the consensus level clears the threshold.
const criticalConflictSeverity = 0.9

// runResult is what an execution mode hands to synthesis.
type runResult struct {
	opinions []advisory.Opinion
	failed   []string
	degraded bool

	// council only
	consensus          *advisory.Consensus
	deliberationRounds int
}

// invokeOne calls a single expert under the process-wide limiter and the
// per-agent deadline.
func (c *Coordinator) invokeOne(ctx context.Context, card advisory.AgentCard, inv agents.Invocation) (advisory.Opinion, error) {
	emergency := inv.Query.Priority == advisory.PriorityEmergency
	if err := c.limiter.Acquire(ctx, emergency); err != nil {
		return advisory.Opinion{}, err
	}
	defer c.limiter.Release()

	expert, err := c.dialer.Dial(card)
	if err != nil {
		return advisory.Opinion{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.agentDeadline)
	defer cancel()

	callCtx, span := c.tracer.StartSpan(callCtx, observability.SpanExpertInvoke)
	defer span.End()

	c.metrics.ExpertCallStarted(ctx)
	started := time.Now()
	opinion, err := expert.Invoke(callCtx, inv)
	c.metrics.ExpertCallFinished(ctx)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordExpertInvocation(ctx, card.AgentID, status, time.Since(started))
	if err != nil {
		return advisory.Opinion{}, err
	}
	return opinion, nil
}

// runSingle consults one expert.
func (c *Coordinator) runSingle(ctx context.Context, sel selection, inv agents.Invocation) runResult {
	card := sel.agents[0]
	opinion, err := c.invokeOne(ctx, card, inv)
	if err != nil {
		c.logger.WarnContext(ctx, "expert failed", "agent_id", card.AgentID, "error", err)
		return runResult{failed: []string{card.AgentID}, degraded: true}
	}
	return runResult{opinions: []advisory.Opinion{opinion}}
}

// runParallel consults all selected experts concurrently, at most
// maxParallel at a time, and keeps whatever succeeded.
func (c *Coordinator) runParallel(ctx context.Context, sel selection, inv agents.Invocation) runResult {
	var (
		mu     sync.Mutex
		result runResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for _, card := range sel.agents {
		card := card
		g.Go(func() error {
			opinion, err := c.invokeOne(gctx, card, inv)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.WarnContext(gctx, "expert failed", "agent_id", card.AgentID, "error", err)
				result.failed = append(result.failed, card.AgentID)
				result.degraded = true
				return nil
			}
			result.opinions = append(result.opinions, opinion)
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// runSequential consults experts in capability order, feeding each one the
// transcript of earlier opinions. A failed step is skipped and named to the
// next expert rather than aborting the pipeline.
func (c *Coordinator) runSequential(ctx context.Context, sel selection, inv agents.Invocation) runResult {
	var result runResult
	var missingSteps []string
	for _, card := range sel.agents {
		if ctx.Err() != nil {
			result.failed = append(result.failed, card.AgentID)
			result.degraded = true
			continue
		}
		stepInv := inv
		stepInv.PriorOpinions = result.opinions
		stepInv.MissingSteps = missingSteps

		opinion, err := c.invokeOne(ctx, card, stepInv)
		if err != nil {
			c.logger.WarnContext(ctx, "pipeline step failed", "agent_id", card.AgentID, "error", err)
			result.failed = append(result.failed, card.AgentID)
			result.degraded = true
			missingSteps = append(missingSteps, card.Name)
			continue
		}
		result.opinions = append(result.opinions, opinion)
	}
	return result
}

// runCouncil runs one parallel round, aggregates, and deliberates at most
// one further round when the council is split below the threshold or a
// critical conflict remains.
func (c *Coordinator) runCouncil(ctx context.Context, sel selection, inv agents.Invocation) runResult {
	result := c.runParallel(ctx, sel, inv)
	if len(result.opinions) == 0 {
		return result
	}

	ctx, span := c.tracer.StartSpan(ctx, observability.SpanConsensus)
	defer span.End()

	consensus, err := c.consensus.Aggregate(result.opinions, c.strategy)
	if err != nil {
		c.logger.WarnContext(ctx, "consensus aggregation failed", "error", err)
		return result
	}

	split := consensus.ConsensusLevel < deliberationThreshold || hasCriticalConflict(consensus.Conflicts)
	if split && len(result.opinions) > 1 && ctx.Err() == nil {
		result.deliberationRounds = 1
		second := c.deliberate(ctx, sel, inv, result.opinions)
		if len(second.opinions) > 0 {
			if revised, err := c.consensus.Aggregate(second.opinions, c.strategy); err == nil {
				result.opinions = second.opinions
				result.failed = append(result.failed, second.failed...)
				result.degraded = result.degraded || second.degraded
				consensus = revised
			}
		}
	}

	c.metrics.RecordConsensus(ctx, string(consensus.Strategy), len(consensus.Conflicts))
	result.consensus = &consensus
	return result
}

func hasCriticalConflict(conflicts []advisory.Conflict) bool {
	for _, conflict := range conflicts {
		if conflict.Severity >= criticalConflictSeverity {
			return true
		}
	}
	return false
}

// deliberate re-invokes the round-one participants, showing each the full
// set of first-round opinions.
func (c *Coordinator) deliberate(ctx context.Context, sel selection, inv agents.Invocation, priors []advisory.Opinion) runResult {
	spoke := make(map[string]bool, len(priors))
	for _, op := range priors {
		spoke[op.AgentID] = true
	}
	var roundTwo selection
	roundTwo.mode = sel.mode
	for _, card := range sel.agents {
		if spoke[card.AgentID] {
			roundTwo.agents = append(roundTwo.agents, card)
		}
	}
	if len(roundTwo.agents) == 0 {
		return runResult{}
	}
	inv.PriorOpinions = priors
	return c.runParallel(ctx, roundTwo, inv)
}

// orderForPipeline reorders selected agents to follow the required
// capability order so sequential steps build on the right predecessors.
func orderForPipeline(sel selection, caps []advisory.Capability) selection {
	index := make(map[string]int, len(sel.agents))
	for i, card := range sel.agents {
		index[card.AgentID] = i
	}
	ordered := make([]advisory.AgentCard, 0, len(sel.agents))
	taken := make(map[string]bool, len(sel.agents))
	for _, cap := range caps {
		id, ok := sel.covered[cap]
		if !ok || taken[id] {
			continue
		}
		taken[id] = true
		ordered = append(ordered, sel.agents[index[id]])
	}
	for _, card := range sel.agents {
		if !taken[card.AgentID] {
			taken[card.AgentID] = true
			ordered = append(ordered, card)
		}
	}
	sel.agents = ordered
	return sel
}

// describeAgents renders the consulted agent list for logs.
func describeAgents(cards []advisory.AgentCard) string {
	ids := make([]string, len(cards))
	for i, card := range cards {
		ids[i] = card.AgentID
	}
	return strings.Join(ids, ",")
}
