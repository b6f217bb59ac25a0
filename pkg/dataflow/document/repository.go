package document

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
	"github.com/randalmurphal/dataflow/pkg/dataflow/storage"
)

// Repository reads and writes one document key through a codec.
type Repository struct {
	store   storage.Store
	codec   Codec
	key     string
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	retry   storage.RetryPolicy
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithKey sets the storage key. Defaults to DefaultKey.
func WithKey(key string) RepositoryOption {
	return func(r *Repository) { r.key = key }
}

// WithCodec sets the codec. Defaults to JSONCodec.
func WithCodec(c Codec) RepositoryOption {
	return func(r *Repository) { r.codec = c }
}

// WithRepositoryLogger sets the logger for save reports.
func WithRepositoryLogger(logger *slog.Logger) RepositoryOption {
	return func(r *Repository) { r.logger = logger }
}

// WithRepositoryMetrics records document sizes and save errors.
func WithRepositoryMetrics(m observability.MetricsRecorder) RepositoryOption {
	return func(r *Repository) { r.metrics = m }
}

// WithRetry retries failed reads and writes. Defaults to storage.NoRetry.
func WithRetry(p storage.RetryPolicy) RepositoryOption {
	return func(r *Repository) { r.retry = p }
}

// NewRepository returns a repository over store.
func NewRepository(store storage.Store, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store:   store,
		codec:   JSONCodec{},
		key:     DefaultKey,
		metrics: observability.NoopMetrics{},
		retry:   storage.NoRetry,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the storage key.
func (r *Repository) Key() string { return r.key }

// Codec returns the codec.
func (r *Repository) Codec() Codec { return r.codec }

// Load reads and decodes the document. A missing key returns an error
// wrapping storage.ErrNotFound.
func (r *Repository) Load(ctx context.Context) (*Document, error) {
	var data []byte
	err := storage.Retry(ctx, r.retry, func(ctx context.Context) error {
		var err error
		data, err = r.store.Get(ctx, r.key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", r.key, err)
	}
	doc, err := r.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode document %s (%s): %w", r.key, r.codec.Name(), err)
	}
	return doc, nil
}

// Save encodes and writes the document.
func (r *Repository) Save(ctx context.Context, doc *Document) error {
	data, err := r.codec.Encode(doc)
	if err == nil {
		err = storage.Retry(ctx, r.retry, func(ctx context.Context) error {
			return r.store.Put(ctx, r.key, data)
		})
	}
	r.metrics.RecordDocumentSave(ctx, r.key, int64(len(data)), err)
	if err != nil {
		observability.LogDocumentSaveError(r.logger, r.key, err)
		return fmt.Errorf("save document %s: %w", r.key, err)
	}
	observability.LogDocumentSaved(r.logger, r.key, len(data))
	return nil
}
