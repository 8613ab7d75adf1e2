package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics of the advisory core.
type MetricsCollector struct {
	meter metric.Meter

	// Advisory pipeline metrics
	advisories      metric.Int64Counter
	advisoryLatency metric.Float64Histogram
	consensusRounds metric.Int64Counter
	conflictsFound  metric.Int64Counter

	// Expert agent metrics
	expertInvocations metric.Int64Counter
	expertLatency     metric.Float64Histogram
	expertsInFlight   metric.Int64UpDownCounter

	// Language-model metrics
	llmRequests metric.Int64Counter
	llmLatency  metric.Float64Histogram

	// Registry metrics
	registryOps metric.Int64Counter

	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a metrics collector. When disabled it returns a
// collector whose record methods are no-ops.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("murshid")

	advisories, err := meter.Int64Counter(
		"murshid.advisories.total",
		metric.WithDescription("Total advisories produced"),
		metric.WithUnit("{advisory}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create advisories counter: %w", err)
	}

	advisoryLatency, err := meter.Float64Histogram(
		"murshid.advisory.latency",
		metric.WithDescription("End-to-end advisory latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create advisory latency histogram: %w", err)
	}

	consensusRounds, err := meter.Int64Counter(
		"murshid.consensus.rounds.total",
		metric.WithDescription("Consensus aggregation rounds, including deliberation re-runs"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create consensus rounds counter: %w", err)
	}

	conflictsFound, err := meter.Int64Counter(
		"murshid.consensus.conflicts.total",
		metric.WithDescription("Conflicts detected among expert opinions"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create conflicts counter: %w", err)
	}

	expertInvocations, err := meter.Int64Counter(
		"murshid.expert.invocations.total",
		metric.WithDescription("Expert agent invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create expert invocations counter: %w", err)
	}

	expertLatency, err := meter.Float64Histogram(
		"murshid.expert.latency",
		metric.WithDescription("Expert agent invocation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create expert latency histogram: %w", err)
	}

	expertsInFlight, err := meter.Int64UpDownCounter(
		"murshid.expert.inflight",
		metric.WithDescription("Expert agent calls currently in flight"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create experts in-flight gauge: %w", err)
	}

	llmRequests, err := meter.Int64Counter(
		"murshid.llm.requests.total",
		metric.WithDescription("Language-model requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm requests counter: %w", err)
	}

	llmLatency, err := meter.Float64Histogram(
		"murshid.llm.latency",
		metric.WithDescription("Language-model request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm latency histogram: %w", err)
	}

	registryOps, err := meter.Int64Counter(
		"murshid.registry.operations.total",
		metric.WithDescription("Registry operations by kind and status"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create registry operations counter: %w", err)
	}

	collector := &MetricsCollector{
		meter:             meter,
		advisories:        advisories,
		advisoryLatency:   advisoryLatency,
		consensusRounds:   consensusRounds,
		conflictsFound:    conflictsFound,
		expertInvocations: expertInvocations,
		expertLatency:     expertLatency,
		expertsInFlight:   expertsInFlight,
		llmRequests:       llmRequests,
		llmLatency:        llmLatency,
		registryOps:       registryOps,
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// StartPrometheusServer starts the Prometheus scrape endpoint.
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The scrape server is best-effort; losing it must not take
			// the advisory pipeline down.
			fmt.Printf("prometheus server error: %v\n", err)
		}
	}()

	return nil
}

// Handler returns the Prometheus scrape handler for mounting on an existing
// HTTP mux instead of the standalone scrape server.
func (m *MetricsCollector) Handler() http.Handler {
	return promclient.Handler()
}

// Shutdown gracefully shuts down the metrics collector.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m != nil && m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordAdvisory records a completed advisory with its execution mode.
func (m *MetricsCollector) RecordAdvisory(ctx context.Context, mode, status string, latency time.Duration) {
	if m == nil || m.advisories == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
		attribute.String("status", status),
	}
	m.advisories.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.advisoryLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordConsensus records a consensus aggregation round and its conflicts.
func (m *MetricsCollector) RecordConsensus(ctx context.Context, strategy string, conflicts int) {
	if m == nil || m.consensusRounds == nil {
		return
	}
	m.consensusRounds.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
	if conflicts > 0 {
		m.conflictsFound.Add(ctx, int64(conflicts), metric.WithAttributes(attribute.String("strategy", strategy)))
	}
}

// RecordExpertInvocation records an expert call.
func (m *MetricsCollector) RecordExpertInvocation(ctx context.Context, agentID, status string, latency time.Duration) {
	if m == nil || m.expertInvocations == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("agent_id", agentID),
		attribute.String("status", status),
	}
	m.expertInvocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.expertLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// ExpertCallStarted increments the in-flight expert call gauge.
func (m *MetricsCollector) ExpertCallStarted(ctx context.Context) {
	if m == nil || m.expertsInFlight == nil {
		return
	}
	m.expertsInFlight.Add(ctx, 1)
}

// ExpertCallFinished decrements the in-flight expert call gauge.
func (m *MetricsCollector) ExpertCallFinished(ctx context.Context) {
	if m == nil || m.expertsInFlight == nil {
		return
	}
	m.expertsInFlight.Add(ctx, -1)
}

// RecordLLMRequest records a language-model request.
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration) {
	if m == nil || m.llmRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}
	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRegistryOperation records a registry operation outcome.
func (m *MetricsCollector) RecordRegistryOperation(ctx context.Context, op, status string) {
	if m == nil || m.registryOps == nil {
		return
	}
	m.registryOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}
