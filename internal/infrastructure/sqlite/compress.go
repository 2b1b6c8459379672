package sqlite

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Artifact content is stored zstd-compressed. The encoder and decoder are
// safe for concurrent EncodeAll/DecodeAll calls.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

func compress(data []byte) []byte {
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func decompress(data []byte, size int64) ([]byte, error) {
	out, err := decoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	if int64(len(out)) != size {
		return nil, fmt.Errorf("zstd decode: got %d bytes, want %d", len(out), size)
	}
	return out, nil
}
