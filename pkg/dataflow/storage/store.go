// Package storage persists encoded workflow documents by key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store persists opaque document blobs under string keys.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores data under key, overwriting any previous value and
	// bumping its revision.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves the data stored under key.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns metadata for every stored key, ordered by key.
	// Returns an empty slice (not error) if nothing is stored.
	List(ctx context.Context) ([]Info, error)

	// Delete removes a key.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading the document.
type Info struct {
	Key string
	// Revision counts the puts of Key, starting at 1. Backends that cannot
	// track it report 0.
	Revision  int64
	UpdatedAt time.Time
	Size      int64
}

// Sentinel errors for storage operations.
var (
	// ErrNotFound indicates a key doesn't exist.
	ErrNotFound = errors.New("document not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("document store closed")

	// ErrInvalidKey indicates a key that cannot be stored.
	ErrInvalidKey = errors.New("invalid document key")
)

// ValidateKey checks that key is usable by every backend: non-empty, a
// relative slash-separated path without "." or ".." segments.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.ContainsRune(key, '\\') {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
