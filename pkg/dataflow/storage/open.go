package storage

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// Storage drivers understood by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

// Options selects and configures a backend for Open.
type Options struct {
	Driver string
	// DSN is the postgres connection string.
	DSN string
	// Path is the sqlite database file or the file store directory.
	Path string
	// FS overrides the filesystem of the file driver.
	FS afero.Fs
}

// Open returns the backend named by opts.Driver. An empty driver selects
// the memory store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(opts.Path)
	case DriverPostgres:
		return NewPostgresStore(ctx, opts.DSN)
	case DriverFile:
		if opts.FS != nil {
			return NewFileStoreFS(opts.FS, opts.Path)
		}
		return NewFileStore(opts.Path)
	}
	return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
}
