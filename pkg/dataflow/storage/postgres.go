package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS dataflow_documents (
    key        TEXT PRIMARY KEY,
    revision   BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    data       BYTEA NOT NULL
);
`

// PostgresStore persists documents to PostgreSQL via a pgx pool.
type PostgresStore struct {
	db     *pgxpool.Pool
	owned  bool
	mu     sync.RWMutex
	closed bool
}

// NewPostgresStore connects to dsn and creates the documents table if it
// doesn't exist. The pool is closed by Close.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s := &PostgresStore{db: pool, owned: true}
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool. The caller keeps
// ownership of the pool and must call CreateSchema before first use.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

// CreateSchema creates the documents table if it doesn't exist.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// DropSchema drops the documents table.
func (s *PostgresStore) DropSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS dataflow_documents`); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO dataflow_documents (key, revision, data)
		VALUES ($1, 1, $2)
		ON CONFLICT (key) DO UPDATE SET
			revision = dataflow_documents.revision + 1,
			updated_at = NOW(),
			data = EXCLUDED.data
	`, key, data)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM dataflow_documents WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(ctx, `
		SELECT key, revision, updated_at, OCTET_LENGTH(data)
		FROM dataflow_documents
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.Key, &info.Revision, &info.UpdatedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan document info: %w", err)
		}
		info.UpdatedAt = info.UpdatedAt.UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM dataflow_documents WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Close implements Store. A pool passed to NewPostgresStoreFromPool is
// left open.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.owned {
		s.db.Close()
	}
	return nil
}
