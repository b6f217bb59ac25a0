package dataflow

import (
	"log/slog"

	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
)

// engineConfig holds engine configuration.
type engineConfig struct {
	logger    *slog.Logger
	tickSpeed TickSpeed

	metricsEnabled bool
	tracingEnabled bool
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		logger:    slog.Default(),
		tickSpeed: TickNormal,
	}
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

// WithLogger sets the engine logger. Node executions receive a child of
// it enriched with run and node attributes.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTickSpeed sets the initial tick speed.
// Default: TickNormal
func WithTickSpeed(ts TickSpeed) EngineOption {
	return func(c *engineConfig) {
		c.tickSpeed = ts
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter
// provider.
//
// Example:
//
//	engine := dataflow.NewEngine(store, dataflow.WithMetrics(true))
func WithMetrics(enabled bool) EngineOption {
	return func(c *engineConfig) {
		c.metricsEnabled = enabled
	}
}

// WithTracing enables OpenTelemetry spans for ticks and node runs using
// the global tracer provider.
func WithTracing(enabled bool) EngineOption {
	return func(c *engineConfig) {
		c.tracingEnabled = enabled
	}
}

// WithMetricsRecorder sets a specific recorder. It takes precedence over
// WithMetrics.
func WithMetricsRecorder(rec observability.MetricsRecorder) EngineOption {
	return func(c *engineConfig) {
		c.metrics = rec
	}
}

// WithSpanManager sets a specific span manager. It takes precedence over
// WithTracing.
func WithSpanManager(sm observability.SpanManager) EngineOption {
	return func(c *engineConfig) {
		c.spans = sm
	}
}

func (c *engineConfig) resolve() {
	if c.metrics == nil {
		if c.metricsEnabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
	if c.spans == nil {
		if c.tracingEnabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}
