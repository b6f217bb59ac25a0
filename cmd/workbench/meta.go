package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
)

// Meta holds what every command shares.
type Meta struct {
	Ui cli.Ui
	FS afero.Fs

	// ShutdownCh is closed when the process is asked to stop.
	ShutdownCh <-chan struct{}

	// Logger overrides the logger built from configuration.
	Logger *slog.Logger
}

// flagSet returns a flag set that reports usage errors through the UI.
func (m *Meta) flagSet(name string, help func() string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() { m.Ui.Error(help()) }
	return fs
}

// readDocument decodes the file at path with the codec its extension names.
func (m *Meta) readDocument(path string) (*document.Document, error) {
	codec, err := document.CodecForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(m.FS, path)
	if err != nil {
		return nil, err
	}
	doc, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s (%s): %w", path, codec.Name(), err)
	}
	return doc, nil
}

// writeDocument encodes doc with codec and writes it to path.
func (m *Meta) writeDocument(path string, codec document.Codec, doc *document.Document) (int, error) {
	data, err := codec.Encode(doc)
	if err != nil {
		return 0, err
	}
	if err := afero.WriteFile(m.FS, path, data, 0o644); err != nil {
		return 0, err
	}
	return len(data), nil
}

// logger returns the configured logger, or one that discards everything.
func (m *Meta) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
