package store

import "github.com/klauspost/compress/zstd"

// A single encoder/decoder pair is shared by all snapshot writes and reads.
// EncodeAll/DecodeAll are safe for concurrent use and avoid per-blob
// allocation of compression state. Construction with default options
// cannot fail.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compress returns the zstd frame for data.
func compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// decompress expands a zstd frame produced by compress.
func decompress(data []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(data, nil)
}
