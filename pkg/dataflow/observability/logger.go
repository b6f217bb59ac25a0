// Package observability provides the runtime's structured logging helpers,
// metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds execution context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "n1", "string")
//	enriched.Info("doing work") // includes run_id, node_id, node_type
func EnrichLogger(logger *slog.Logger, runID, nodeID, nodeType string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogEngineStart logs the engine entering the running state.
func LogEngineStart(logger *slog.Logger, tickSpeed string) {
	if logger == nil {
		return
	}
	logger.Info("engine starting",
		slog.String("tick_speed", tickSpeed),
	)
}

// LogEngineStop logs the engine leaving the running state.
func LogEngineStop(logger *slog.Logger, aborted bool) {
	if logger == nil {
		return
	}
	logger.Info("engine stopped",
		slog.Bool("aborted", aborted),
	)
}

// LogTick logs a tick that did work. Idle ticks are not logged.
func LogTick(logger *slog.Logger, propagated, started int, durationMs float64) {
	if logger == nil || (propagated == 0 && started == 0) {
		return
	}
	logger.Debug("tick",
		slog.Int("propagated", propagated),
		slog.Int("started", started),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogNodeAborted logs a run that observed cancellation.
func LogNodeAborted(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Info("node aborted",
		slog.String("node_id", nodeID),
	)
}

// LogNodeSkipped logs an execution request that was dropped.
func LogNodeSkipped(logger *slog.Logger, nodeID, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("node skipped",
		slog.String("node_id", nodeID),
		slog.String("reason", reason),
	)
}

// LogMutationRejected logs a store action that was refused and left the
// graph unchanged.
func LogMutationRejected(logger *slog.Logger, op, subject string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("mutation rejected",
		slog.String("op", op),
		slog.String("subject", subject),
		slog.String("error", err.Error()),
	)
}

// LogDocumentSaved logs a persisted document snapshot.
func LogDocumentSaved(logger *slog.Logger, key string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("document saved",
		slog.String("key", key),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogDocumentSaveError logs a failed save (non-fatal).
func LogDocumentSaveError(logger *slog.Logger, key string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("document save failed",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
