package benchmarks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
	"github.com/randalmurphal/dataflow/pkg/dataflow/storage"
)

// BenchmarkFromStore_100 projects a 100-node graph into a document.
func BenchmarkFromStore_100(b *testing.B) {
	s := newStore(b)
	defer s.Close()
	_ = s.Load(linearSpec(100))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = document.FromStore(s)
	}
}

// BenchmarkCodec_Encode measures encoding a 100-node document per codec.
func BenchmarkCodec_Encode(b *testing.B) {
	doc := largeDocument(b)
	for _, name := range []string{"json", "yaml", "msgpack", "json+zstd", "msgpack+zstd"} {
		codec, err := document.CodecFor(name, false)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = codec.Encode(doc)
			}
		})
	}
}

// BenchmarkCodec_Decode measures decoding a 100-node document per codec.
func BenchmarkCodec_Decode(b *testing.B) {
	doc := largeDocument(b)
	for _, name := range []string{"json", "yaml", "msgpack", "json+zstd", "msgpack+zstd"} {
		codec, err := document.CodecFor(name, false)
		if err != nil {
			b.Fatal(err)
		}
		data, err := codec.Encode(doc)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(name, func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				_, _ = codec.Decode(data)
			}
		})
	}
}

// BenchmarkMemoryStore_Save measures saving a document to memory.
func BenchmarkMemoryStore_Save(b *testing.B) {
	benchmarkSave(b, storage.NewMemoryStore())
}

// BenchmarkSQLiteStore_Save measures saving a document to SQLite.
func BenchmarkSQLiteStore_Save(b *testing.B) {
	st, err := storage.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	benchmarkSave(b, st)
}

// BenchmarkFileStore_Save measures saving a document to a directory.
func BenchmarkFileStore_Save(b *testing.B) {
	st, err := storage.NewFileStore(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	benchmarkSave(b, st)
}

func benchmarkSave(b *testing.B, st storage.Store) {
	defer st.Close()
	repo := document.NewRepository(st, document.WithRepositoryLogger(quiet))
	doc := largeDocument(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := repo.Save(ctx, doc); err != nil {
			b.Fatal(err)
		}
	}
}

func largeDocument(b *testing.B) *document.Document {
	b.Helper()
	s := newStore(b)
	defer s.Close()
	if err := s.Load(linearSpec(100)); err != nil {
		b.Fatal(err)
	}
	return document.FromStore(s)
}
