package ygggo_graph

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricsInstrumentationName = "github.com/yggai/ygggo_graph"

// Metrics holds all the metric instruments.
type Metrics struct {
	connectionsActive metric.Int64UpDownCounter
	acquiresTotal     metric.Int64Counter
	evictionsTotal    metric.Int64Counter

	queriesTotal  metric.Int64Counter
	queryDuration metric.Float64Histogram

	transactionsTotal   metric.Int64Counter
	transactionDuration metric.Float64Histogram
}

var defaultMeter = otel.Meter(metricsInstrumentationName)

// EnableMetrics enables or disables metrics collection for this pool.
func (p *Pool) EnableMetrics(enabled bool) {
	if p == nil {
		return
	}
	p.metricsEnabled = enabled
	if enabled && p.metrics == nil {
		p.initMetrics()
	}
}

// SetMeterProvider sets a custom meter provider for metrics.
func (p *Pool) SetMeterProvider(provider metric.MeterProvider) {
	if p == nil {
		return
	}
	p.meterProvider = provider
	if p.metricsEnabled {
		p.initMetrics()
	}
}

func (p *Pool) initMetrics() {
	var meter metric.Meter
	if p.meterProvider != nil {
		meter = p.meterProvider.Meter(metricsInstrumentationName)
	} else {
		meter = defaultMeter
	}

	p.metrics = &Metrics{}

	p.metrics.connectionsActive, _ = meter.Int64UpDownCounter(
		"ygggo_graph_connections_active",
		metric.WithDescription("Number of connections currently held by callers"),
	)
	p.metrics.acquiresTotal, _ = meter.Int64Counter(
		"ygggo_graph_acquires_total",
		metric.WithDescription("Total number of pool acquisitions"),
	)
	p.metrics.evictionsTotal, _ = meter.Int64Counter(
		"ygggo_graph_evictions_total",
		metric.WithDescription("Connections destroyed by idle cleanup or health checks"),
	)
	p.metrics.queriesTotal, _ = meter.Int64Counter(
		"ygggo_graph_queries_total",
		metric.WithDescription("Total number of queries"),
	)
	p.metrics.queryDuration, _ = meter.Float64Histogram(
		"ygggo_graph_query_duration_seconds",
		metric.WithDescription("Duration of queries"),
		metric.WithUnit("s"),
	)
	p.metrics.transactionsTotal, _ = meter.Int64Counter(
		"ygggo_graph_transactions_total",
		metric.WithDescription("Total number of transactions"),
	)
	p.metrics.transactionDuration, _ = meter.Float64Histogram(
		"ygggo_graph_transaction_duration_seconds",
		metric.WithDescription("Duration of transactions"),
		metric.WithUnit("s"),
	)
}

func (p *Pool) recordAcquire(ctx context.Context, fresh bool) {
	if p == nil || !p.metricsEnabled || p.metrics == nil {
		return
	}
	p.metrics.connectionsActive.Add(ctx, 1)
	p.metrics.acquiresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("fresh", fresh),
	))
}

func (p *Pool) recordRelease(ctx context.Context) {
	if p == nil || !p.metricsEnabled || p.metrics == nil {
		return
	}
	p.metrics.connectionsActive.Add(ctx, -1)
}

func (p *Pool) recordEviction(ctx context.Context, reason string) {
	if p == nil || !p.metricsEnabled || p.metrics == nil {
		return
	}
	p.metrics.evictionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (p *Pool) recordQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	if p == nil || !p.metricsEnabled || p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("status", status),
	}
	p.metrics.queriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.metrics.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (p *Pool) recordTransaction(ctx context.Context, duration time.Duration, err error) {
	if p == nil || !p.metricsEnabled || p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("status", status),
	}
	p.metrics.transactionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.metrics.transactionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
