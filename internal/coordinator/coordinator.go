// Package coordinator runs a farmer query through the advisory pipeline:
// analyze, select experts, dispatch under an execution mode, reach consensus
// when required, and synthesize the final bilingual answer.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/haql-ai/murshid/internal/advisory"
	"github.com/haql-ai/murshid/internal/agents"
	"github.com/haql-ai/murshid/internal/consensus"
	murshiderrors "github.com/haql-ai/murshid/internal/errors"
	"github.com/haql-ai/murshid/internal/llm"
	"github.com/haql-ai/murshid/internal/locale"
	"github.com/haql-ai/murshid/internal/observability"
	"github.com/haql-ai/murshid/internal/registry"
	"github.com/haql-ai/murshid/internal/session"
)

// Options configures a Coordinator.
type Options struct {
	// AgentDeadline bounds each expert invocation. Defaults to 30s.
	AgentDeadline time.Duration

	// OverallDeadline bounds a whole query. Defaults to 60s.
	OverallDeadline time.Duration

	// MaxParallel bounds concurrent experts within one query. Defaults to 8.
	MaxParallel int

	// MaxInflight bounds concurrent expert calls process-wide. Defaults to 64.
	MaxInflight int

	// Strategy is the consensus strategy for council queries.
	// Defaults to WEIGHTED_CONFIDENCE.
	Strategy advisory.Strategy
}

// Coordinator is the single entry point for query processing.
type Coordinator struct {
	registry  *registry.Registry
	dialer    agents.Dialer
	llm       llm.Client
	consensus *consensus.Engine
	sessions  session.Store
	strategy  advisory.Strategy

	limiter         *agentLimiter
	analyzer        *analyzer
	agentDeadline   time.Duration
	overallDeadline time.Duration
	maxParallel     int

	logger  *observability.Logger
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider
}

// New wires a Coordinator. sessions may be nil to disable conversational
// memory; llm may be nil to force keyword analysis and fallback synthesis.
func New(reg *registry.Registry, dialer agents.Dialer, client llm.Client, engine *consensus.Engine, sessions session.Store, opts Options, logger *observability.Logger, metrics *observability.MetricsCollector, tracer *observability.TracerProvider) *Coordinator {
	if opts.AgentDeadline <= 0 {
		opts.AgentDeadline = 30 * time.Second
	}
	if opts.OverallDeadline <= 0 {
		opts.OverallDeadline = 60 * time.Second
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 64
	}
	if opts.Strategy == "" {
		opts.Strategy = advisory.StrategyWeightedConfidence
	}
	if logger == nil {
		logger = observability.Nop()
	}
	if engine == nil {
		engine = consensus.New()
	}
	if tracer == nil {
		tracer, _ = observability.NewTracerProvider(observability.TracingConfig{})
	}
	return &Coordinator{
		registry:        reg,
		dialer:          dialer,
		llm:             client,
		consensus:       engine,
		sessions:        sessions,
		strategy:        opts.Strategy,
		limiter:         newAgentLimiter(opts.MaxInflight),
		analyzer:        newAnalyzer(client, logger),
		agentDeadline:   opts.AgentDeadline,
		overallDeadline: opts.OverallDeadline,
		maxParallel:     opts.MaxParallel,
		logger:          logger,
		metrics:         metrics,
		tracer:          tracer,
	}
}

// Process answers a query. It never returns an error: every failure path
// yields a well-formed advisory with zero confidence and a localized
// explanation.
func (c *Coordinator) Process(ctx context.Context, query advisory.Query) advisory.Advisory {
	started := time.Now()
	normalizeQuery(&query)

	ctx, cancel := context.WithTimeout(ctx, c.overallDeadline)
	defer cancel()

	queryRef := uuid.NewString()
	if query.FarmerID != "" {
		ctx = observability.ContextWithSessionID(ctx, query.FarmerID)
	}
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanProcessQuery)
	defer span.End()

	if query.Text == "" {
		return c.finish(ctx, started, c.errorAdvisory(query, queryRef, locale.KeyAnalysisUnavailable, "empty query"))
	}

	analysis := c.analyze(ctx, query)
	c.logger.InfoContext(ctx, "query analyzed",
		"query_ref", queryRef,
		"kind", analysis.Kind,
		"mode", analysis.Mode,
		"capabilities", len(analysis.RequiredCapabilities))

	sel, err := c.selectAgents(ctx, analysis, query.Language)
	if err != nil {
		key := locale.KeyProcessingFailed
		if errors.Is(err, murshiderrors.ErrNoAgents) {
			key = locale.KeyNoAgentsAvailable
		}
		adv := c.errorAdvisory(query, queryRef, key, err.Error())
		adv.Kind = analysis.Kind
		adv.Mode = analysis.Mode
		return c.finish(ctx, started, adv)
	}
	if sel.mode != analysis.Mode {
		c.logger.InfoContext(ctx, "execution mode downgraded",
			"query_ref", queryRef, "from", analysis.Mode, "to", sel.mode)
	}

	inv := agents.Invocation{
		Query:             query,
		AdditionalContext: c.buildContext(ctx, query),
	}

	c.logger.InfoContext(ctx, "dispatching experts",
		"query_ref", queryRef, "mode", sel.mode, "agents", describeAgents(sel.agents))

	var result runResult
	switch sel.mode {
	case advisory.ModeParallel:
		result = c.runParallel(ctx, sel, inv)
	case advisory.ModeSequential:
		result = c.runSequential(ctx, orderForPipeline(sel, analysis.RequiredCapabilities), inv)
	case advisory.ModeCouncil:
		result = c.runCouncil(ctx, sel, inv)
	default:
		result = c.runSingle(ctx, sel, inv)
	}

	if len(result.opinions) == 0 {
		adv := c.errorAdvisory(query, queryRef, locale.KeyAllAgentsFailed, "no expert produced an opinion")
		adv.Kind = analysis.Kind
		adv.Mode = sel.mode
		return c.finish(ctx, started, adv)
	}

	adv := c.synthesize(ctx, query, analysis, sel, result)
	adv.QueryRef = queryRef
	adv.Timestamp = time.Now()
	if sel.mode != analysis.Mode {
		adv.Metadata[advisory.MetaDowngradedFrom] = string(analysis.Mode)
	}

	c.remember(ctx, query, adv)
	return c.finish(ctx, started, adv)
}

func (c *Coordinator) analyze(ctx context.Context, query advisory.Query) advisory.Analysis {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanAnalyzeQuery)
	defer span.End()
	return c.analyzer.Analyze(ctx, query)
}

// buildContext assembles the per-invocation context shared by all experts:
// structured query fields plus recent session history.
func (c *Coordinator) buildContext(ctx context.Context, query advisory.Query) map[string]string {
	extra := make(map[string]string, len(query.ExtraContext)+4)
	for k, v := range query.ExtraContext {
		extra[k] = v
	}
	if query.FieldID != "" {
		extra["field_id"] = query.FieldID
	}

	if c.sessions != nil && query.FarmerID != "" {
		history, err := c.sessions.History(ctx, query.FarmerID)
		if err != nil {
			c.logger.WarnContext(ctx, "session history unavailable", "farmer_id", query.FarmerID, "error", err)
		} else if len(history) > 0 {
			var summary string
			for _, ex := range history {
				summary += fmt.Sprintf("Q: %s\nA: %s\n", ex.QueryText, ex.Answer)
			}
			extra["conversation_history"] = summary
		}
	}
	return extra
}

func (c *Coordinator) remember(ctx context.Context, query advisory.Query, adv advisory.Advisory) {
	if c.sessions == nil || query.FarmerID == "" {
		return
	}
	err := c.sessions.Append(ctx, query.FarmerID, session.Exchange{
		QueryText:  query.Text,
		Answer:     adv.Answer,
		Kind:       adv.Kind,
		Confidence: adv.Confidence,
		Timestamp:  adv.Timestamp,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "session append failed", "farmer_id", query.FarmerID, "error", err)
	}
}

// errorAdvisory is the uniform failure shape: zero confidence, localized
// message, machine-readable cause in metadata.
func (c *Coordinator) errorAdvisory(query advisory.Query, queryRef, messageKey, cause string) advisory.Advisory {
	return advisory.Advisory{
		QueryRef:   queryRef,
		Answer:     locale.T(query.Language, messageKey),
		Kind:       advisory.KindGeneral,
		Mode:       advisory.ModeSingle,
		Confidence: 0,
		Language:   query.Language,
		Timestamp:  time.Now(),
		Metadata:   map[string]string{advisory.MetaError: cause},
	}
}

func (c *Coordinator) finish(ctx context.Context, started time.Time, adv advisory.Advisory) advisory.Advisory {
	status := "ok"
	if _, failed := adv.Metadata[advisory.MetaError]; failed {
		status = "error"
	}
	c.metrics.RecordAdvisory(ctx, string(adv.Mode), status, time.Since(started))
	c.logger.InfoContext(ctx, "advisory emitted",
		"query_ref", adv.QueryRef,
		"kind", adv.Kind,
		"mode", adv.Mode,
		"confidence", adv.Confidence,
		"agents", len(adv.AgentsConsulted),
		"status", status)
	return adv
}

// normalizeQuery fills language and priority defaults. An unset language is
// inferred from the script of the question text.
func normalizeQuery(query *advisory.Query) {
	if !query.Language.Valid() {
		query.Language = detectLanguage(query.Text)
	}
	switch query.Priority {
	case advisory.PriorityNormal, advisory.PriorityHigh, advisory.PriorityEmergency:
	default:
		query.Priority = advisory.PriorityNormal
	}
}

func detectLanguage(text string) advisory.Language {
	for _, r := range text {
		if unicode.Is(unicode.Arabic, r) {
			return advisory.LanguageArabic
		}
	}
	return advisory.LanguageEnglish
}
