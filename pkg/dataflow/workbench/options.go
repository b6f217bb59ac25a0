package workbench

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
)

type runtimeConfig struct {
	logger         *slog.Logger
	tickSpeed      dataflow.TickSpeed
	autostart      bool
	repo           *document.Repository
	autosaveWindow time.Duration
	metrics        bool
	tracing        bool
}

// Option configures a Runtime.
type Option func(*runtimeConfig)

// WithLogger sets the logger shared by the store, engine and autosaver.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runtimeConfig) { c.logger = logger }
}

// WithTickSpeed sets the engine's initial tick speed.
func WithTickSpeed(ts dataflow.TickSpeed) Option {
	return func(c *runtimeConfig) { c.tickSpeed = ts }
}

// WithAutostart starts the engine as soon as the document is loaded.
func WithAutostart(enabled bool) Option {
	return func(c *runtimeConfig) { c.autostart = enabled }
}

// WithRepository saves the document to repo after edits settle for
// window. A window of zero uses document.DefaultAutosaveWindow.
func WithRepository(repo *document.Repository, window time.Duration) Option {
	return func(c *runtimeConfig) {
		c.repo = repo
		c.autosaveWindow = window
	}
}

// WithMetrics enables OpenTelemetry metrics for the engine.
func WithMetrics(enabled bool) Option {
	return func(c *runtimeConfig) { c.metrics = enabled }
}

// WithTracing enables OpenTelemetry tracing for the engine.
func WithTracing(enabled bool) Option {
	return func(c *runtimeConfig) { c.tracing = enabled }
}
