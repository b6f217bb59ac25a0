package document

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Codec encodes documents to bytes and back.
type Codec interface {
	Encode(doc *Document) ([]byte, error)
	Decode(data []byte) (*Document, error)
	Name() string
}

// Supported encodings.
const (
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
)

// JSONCodec encodes documents as indented JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

func (JSONCodec) Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (JSONCodec) Name() string { return FormatJSON }

// YAMLCodec encodes documents as YAML.
type YAMLCodec struct{}

func (YAMLCodec) Encode(doc *Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

func (YAMLCodec) Decode(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (YAMLCodec) Name() string { return FormatYAML }

// MsgpackCodec encodes documents as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(doc *Document) ([]byte, error) {
	return msgpack.Marshal(doc)
}

func (MsgpackCodec) Decode(data []byte) (*Document, error) {
	var doc Document
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (MsgpackCodec) Name() string { return FormatMsgpack }

// Compressed wraps a codec with zstd compression.
type Compressed struct {
	Codec Codec
}

func (c Compressed) Encode(doc *Document) ([]byte, error) {
	data, err := c.Codec.Encode(doc)
	if err != nil {
		return nil, err
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func (c Compressed) Decode(data []byte) (*Document, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return c.Codec.Decode(raw)
}

func (c Compressed) Name() string { return c.Codec.Name() + "+zstd" }

// CodecFor returns the codec for a format name, optionally compressed.
// A "+zstd" suffix on the name also selects compression.
func CodecFor(format string, compress bool) (Codec, error) {
	format = strings.ToLower(format)
	if base, ok := strings.CutSuffix(format, "+zstd"); ok {
		format, compress = base, true
	}

	var c Codec
	switch format {
	case FormatJSON, "":
		c = JSONCodec{}
	case FormatYAML, "yml":
		c = YAMLCodec{}
	case FormatMsgpack:
		c = MsgpackCodec{}
	default:
		return nil, fmt.Errorf("unknown document format %q", format)
	}
	if compress {
		c = Compressed{Codec: c}
	}
	return c, nil
}

// CodecForPath picks a codec from a file name: .json, .yaml, .yml or
// .msgpack, each optionally followed by .zst.
func CodecForPath(path string) (Codec, error) {
	lower := strings.ToLower(path)
	compress := false
	if base, ok := strings.CutSuffix(lower, ".zst"); ok {
		lower, compress = base, true
	}
	i := strings.LastIndexByte(lower, '.')
	if i < 0 {
		return nil, fmt.Errorf("cannot infer document format from %q", path)
	}
	return CodecFor(lower[i+1:], compress)
}
