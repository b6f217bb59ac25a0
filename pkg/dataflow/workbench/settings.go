package workbench

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/config"
	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
	"github.com/randalmurphal/dataflow/pkg/dataflow/storage"
)

// FromSettings opens the configured storage, loads the document stored
// under the configured key (an absent document starts an empty graph) and
// builds a runtime that autosaves back to it. opts are applied after the
// settings and override them.
func FromSettings(ctx context.Context, s config.Settings, types []dataflow.NodeType, opts ...Option) (*Runtime, error) {
	backend, err := storage.Open(ctx, storage.Options{
		Driver: s.Storage.Driver,
		DSN:    s.Storage.DSN,
		Path:   s.Storage.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	rt, err := fromBackend(ctx, backend, s, types, opts)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	rt.backend = backend
	return rt, nil
}

func fromBackend(ctx context.Context, backend storage.Store, s config.Settings, types []dataflow.NodeType, opts []Option) (*Runtime, error) {
	codec, err := document.CodecFor(s.Document.Format, s.Document.Compress)
	if err != nil {
		return nil, err
	}

	logger := s.Log.NewLogger(os.Stderr)
	var cfg runtimeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger != nil {
		logger = cfg.logger
	}

	var metrics observability.MetricsRecorder = observability.NoopMetrics{}
	if s.Metrics {
		metrics = observability.NewMetricsRecorder()
	}
	repo := document.NewRepository(backend,
		document.WithKey(s.Document.Key),
		document.WithCodec(codec),
		document.WithRepositoryLogger(logger),
		document.WithRepositoryMetrics(metrics),
		document.WithRetry(storage.RetryPolicy{
			MaxAttempts:    s.Storage.Retries,
			InitialBackoff: s.Storage.RetryBackoff,
			MaxBackoff:     storage.DefaultRetry.MaxBackoff,
			BackoffFactor:  storage.DefaultRetry.BackoffFactor,
			Jitter:         storage.DefaultRetry.Jitter,
		}),
	)

	doc, err := repo.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		doc = nil
	case err != nil:
		return nil, err
	}

	base := []Option{
		WithLogger(logger),
		WithTickSpeed(s.Engine.TickSpeed),
		WithAutostart(s.Engine.Autostart),
		WithRepository(repo, s.Document.AutosaveWindow),
		WithMetrics(s.Metrics),
		WithTracing(s.Tracing),
	}
	return New(doc, types, append(base, opts...)...)
}
