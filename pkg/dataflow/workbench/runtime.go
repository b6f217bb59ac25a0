// Package workbench bundles a store, an engine and document persistence
// into one workflow runtime.
package workbench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
	"github.com/randalmurphal/dataflow/pkg/dataflow/nodetypes"
	"github.com/randalmurphal/dataflow/pkg/dataflow/storage"
)

// ErrDisposed is returned by operations on a disposed runtime.
var ErrDisposed = errors.New("runtime disposed")

// Runtime is one live workflow: its graph, its engine and, optionally, an
// autosaver writing the graph back to storage.
type Runtime struct {
	store     *dataflow.Store
	engine    *dataflow.Engine
	repo      *document.Repository
	autosaver *document.Autosaver
	logger    *slog.Logger

	// backend is closed on Dispose when the runtime opened it.
	backend storage.Store

	mu       sync.Mutex
	loadErr  error
	disposed bool
}

// New builds a runtime: it registers types, loads doc (which may be nil),
// creates the engine and starts autosaving when a repository is set.
//
// Rejected document entries do not fail New; they are logged and reported
// by LoadError. A type that cannot be registered does.
func New(doc *document.Document, types []dataflow.NodeType, opts ...Option) (*Runtime, error) {
	cfg := runtimeConfig{tickSpeed: dataflow.TickNormal}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	store := dataflow.NewStore(dataflow.WithStoreLogger(cfg.logger))
	if err := nodetypes.Register(store, types...); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("register node types: %w", err)
	}

	rt := &Runtime{store: store, repo: cfg.repo, logger: cfg.logger}
	if doc != nil {
		rt.loadErr = document.Load(store, doc)
	}

	rt.engine = dataflow.NewEngine(store,
		dataflow.WithLogger(cfg.logger),
		dataflow.WithTickSpeed(cfg.tickSpeed),
		dataflow.WithMetrics(cfg.metrics),
		dataflow.WithTracing(cfg.tracing),
	)
	if cfg.repo != nil {
		rt.autosaver = document.NewAutosaver(store, cfg.repo, cfg.autosaveWindow)
	}
	if cfg.autostart {
		rt.engine.Start()
	}
	return rt, nil
}

// Store returns the graph store.
func (r *Runtime) Store() *dataflow.Store { return r.store }

// Engine returns the execution engine.
func (r *Runtime) Engine() *dataflow.Engine { return r.engine }

// Repository returns the document repository, or nil.
func (r *Runtime) Repository() *document.Repository { return r.repo }

// Logger returns the runtime logger.
func (r *Runtime) Logger() *slog.Logger { return r.logger }

// LoadError returns the rejections of the most recent document load.
func (r *Runtime) LoadError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErr
}

// Document returns the current graph as a document.
func (r *Runtime) Document() *document.Document {
	return document.FromStore(r.store)
}

// ReplaceDocument swaps the whole graph for doc. The engine must be
// stopped; registered types are kept.
func (r *Runtime) ReplaceDocument(doc *document.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return ErrDisposed
	}
	if r.engine.Running() {
		return dataflow.ErrEngineRunning
	}
	if err := r.store.Reset(); err != nil {
		return err
	}
	r.loadErr = document.Load(r.store, doc)
	return r.loadErr
}

// Save writes the current document to the repository now.
func (r *Runtime) Save(ctx context.Context) error {
	if r.repo == nil {
		return errors.New("no repository configured")
	}
	if r.autosaver != nil {
		return r.autosaver.Save(ctx)
	}
	return r.repo.Save(ctx, r.Document())
}

// Dispose stops the engine with abort, waits for in-flight executions,
// saves pending edits and releases the store. It is safe to call more
// than once.
func (r *Runtime) Dispose(ctx context.Context) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.disposed = true
	r.mu.Unlock()

	var result *multierror.Error
	r.engine.Stop(dataflow.StopOptions{ShouldAbort: true})
	if err := r.engine.WaitIdle(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("wait for executions: %w", err))
	}
	if r.autosaver != nil {
		if err := r.autosaver.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("final save: %w", err))
		}
	}
	r.engine.Close()
	if err := r.store.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if r.backend != nil {
		if err := r.backend.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close storage: %w", err))
		}
	}
	return result.ErrorOrNil()
}
