package storage

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// Serialization formats for persisted entries.
const (
	FormatJSON     = "json"
	FormatJSONGzip = "json+gzip"
)

// Serializer defines the interface for serialization.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer implements Serializer using JSON.
type JSONSerializer struct{}

// Marshal serializes a value to JSON.
func (js *JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes a value from JSON.
func (js *JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// GzipSerializer compresses the output of another serializer. Large list
// results shrink considerably in Redis.
type GzipSerializer struct {
	inner Serializer
	level int
}

// NewGzipSerializer wraps inner with gzip compression at the default level.
func NewGzipSerializer(inner Serializer) *GzipSerializer {
	return &GzipSerializer{inner: inner, level: gzip.DefaultCompression}
}

// Marshal serializes and compresses v.
func (gs *GzipSerializer) Marshal(v any) ([]byte, error) {
	raw, err := gs.inner.Marshal(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gs.level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, pkgerrors.Wrap(err, "gzip write")
	}
	if err := zw.Close(); err != nil {
		return nil, pkgerrors.Wrap(err, "gzip close")
	}
	return buf.Bytes(), nil
}

// Unmarshal decompresses and deserializes data.
func (gs *GzipSerializer) Unmarshal(data []byte, v any) error {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return pkgerrors.Wrap(err, "gzip reader")
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return pkgerrors.Wrap(err, "gzip read")
	}
	return gs.inner.Unmarshal(raw, v)
}

// GetSerializer returns a serializer for the given format.
func GetSerializer(format string) (Serializer, error) {
	switch format {
	case FormatJSON, "":
		return NewJSONSerializer(), nil
	case FormatJSONGzip:
		return NewGzipSerializer(NewJSONSerializer()), nil
	default:
		return nil, pkgerrors.Errorf("unsupported serialization format: %s", format)
	}
}
