package main

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
)

// ConvertCommand re-encodes a document file.
type ConvertCommand struct {
	Meta
}

func (c *ConvertCommand) Run(args []string) int {
	var (
		format   string
		compress bool
	)
	fs := c.flagSet("convert", c.Help)
	fs.StringVar(&format, "format", "", "")
	fs.BoolVar(&compress, "zstd", false, "")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		c.Ui.Error("convert takes exactly two arguments: IN OUT")
		c.Ui.Error(c.Help())
		return 1
	}
	in, out := fs.Arg(0), fs.Arg(1)

	doc, err := c.readDocument(in)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	var codec document.Codec
	if format != "" {
		codec, err = document.CodecFor(format, compress)
	} else {
		codec, err = document.CodecForPath(out)
		if err == nil && compress {
			if _, ok := codec.(document.Compressed); !ok {
				codec = document.Compressed{Codec: codec}
			}
		}
	}
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	n, err := c.writeDocument(out, codec, doc)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("write %s: %s", out, err))
		return 1
	}
	c.Ui.Output(fmt.Sprintf("wrote %s (%s, %d bytes, %d nodes)", out, codec.Name(), n, len(doc.Nodes)))
	return 0
}

func (c *ConvertCommand) Help() string {
	helpText := `
Usage: workbench convert [options] IN OUT

  Re-encodes the document IN and writes it to OUT. Both formats are
  inferred from the file extensions unless -format is given.

Options:

  -format=name   json, yaml or msgpack. A "+zstd" suffix compresses.

  -zstd          Compress the output with zstd.
`
	return strings.TrimSpace(helpText)
}

func (c *ConvertCommand) Synopsis() string {
	return "Convert a document between encodings"
}
