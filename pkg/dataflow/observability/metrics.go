package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records runtime metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a finished node run with its terminal status.
	RecordNodeExecution(ctx context.Context, nodeID, nodeType, status string, duration time.Duration)

	// RecordTick records one engine tick and how many runs it started.
	RecordTick(ctx context.Context, started int, duration time.Duration)

	// RecordDocumentSave records a document save attempt.
	RecordDocumentSave(ctx context.Context, key string, sizeBytes int64, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	ticks          metric.Int64Counter
	tickLatency    metric.Float64Histogram
	documentSize   metric.Int64Histogram
	documentErrors metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("dataflow")

	nodeExecutions, err := meter.Int64Counter("dataflow.node.executions",
		metric.WithDescription("Number of finished node runs"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("dataflow.node.latency_ms",
		metric.WithDescription("Node run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("dataflow.node.errors",
		metric.WithDescription("Number of node runs that ended in error"),
	)
	if err != nil {
		return nil, err
	}

	ticks, err := meter.Int64Counter("dataflow.engine.ticks",
		metric.WithDescription("Number of engine ticks"),
	)
	if err != nil {
		return nil, err
	}

	tickLatency, err := meter.Float64Histogram("dataflow.engine.tick_latency_ms",
		metric.WithDescription("Time spent propagating and scheduling per tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	documentSize, err := meter.Int64Histogram("dataflow.document.size_bytes",
		metric.WithDescription("Encoded document size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	documentErrors, err := meter.Int64Counter("dataflow.document.save_errors",
		metric.WithDescription("Number of failed document saves"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		ticks:          ticks,
		tickLatency:    tickLatency,
		documentSize:   documentSize,
		documentErrors: documentErrors,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a finished node run.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID, nodeType, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("node_type", nodeType),
		attribute.String("status", status),
	)

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if status == "error" {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordTick records an engine tick.
func (m *otelMetrics) RecordTick(ctx context.Context, started int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.Bool("idle", started == 0),
	)
	m.ticks.Add(ctx, 1, attrs)
	m.tickLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordDocumentSave records a document save.
func (m *otelMetrics) RecordDocumentSave(ctx context.Context, key string, sizeBytes int64, err error) {
	attrs := metric.WithAttributes(
		attribute.String("key", key),
	)
	if err != nil {
		m.documentErrors.Add(ctx, 1, attrs)
		return
	}
	m.documentSize.Record(ctx, sizeBytes, attrs)
}
