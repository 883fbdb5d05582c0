package edgeblock

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Gzip wraps the raw columnar layout in a gzip stream.
//
// Decode probes for a gzip member first and falls back to the raw layout on
// failure, so a store can switch to Gzip and keep reading blocks written
// before compression was enabled. Compact rewrites such blocks compressed.
type Gzip struct{}

// Name returns the stable codec name ("gzip").
func (Gzip) Name() string { return "gzip" }

// Encode serializes the block and compresses the whole byte sequence.
func (Gzip) Encode(b *Block) ([]byte, error) {
	raw, err := Raw{}.Encode(b)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decompresses and deserializes a block, treating data that is not a
// gzip stream as an uncompressed raw block.
func (Gzip) Decode(data []byte) (*Block, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return Raw{}.Decode(data)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return Raw{}.Decode(data)
	}
	return Raw{}.Decode(raw)
}
