// Package codec provides the vault's byte codecs: raw DEFLATE for blob
// and chain payloads (compression happens before encryption) and ZIP
// pack/unpack for the vault interchange format.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// CompressionLevel is the DEFLATE level used for blobs, chains and ZIP
// entries. Level 6 is the interchange-format constant; changing it does
// not break decoding (inflate is level-agnostic) but would change
// compressed sizes recorded in metadata.
const CompressionLevel = 6

// Compress deflates data at CompressionLevel.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("new deflate writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("deflate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}
	return buf.Bytes(), nil
}

// Inflate decompresses a raw DEFLATE stream produced by Compress.
func Inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}
