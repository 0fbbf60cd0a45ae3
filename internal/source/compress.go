package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// DefaultMaxPayloadSize bounds decompressed payloads unless configured otherwise.
const DefaultMaxPayloadSize = 512 * 1024 * 1024 // 512MB

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Codec names a payload compression.
type Codec string

const (
	CodecNone Codec = "none"
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
)

// DetectCodec inspects the magic bytes at the start of data.
func DetectCodec(data []byte) Codec {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return CodecGzip
	case bytes.HasPrefix(data, zstdMagic):
		return CodecZstd
	default:
		return CodecNone
	}
}

// Decompress returns data expanded according to its magic bytes. Plain
// payloads are returned as is. limit caps the decompressed size; a
// non-positive limit means DefaultMaxPayloadSize.
func Decompress(data []byte, limit int64) ([]byte, Codec, error) {
	if limit <= 0 {
		limit = DefaultMaxPayloadSize
	}
	codec := DetectCodec(data)
	switch codec {
	case CodecGzip:
		out, err := decompressGzip(data, limit)
		return out, codec, err
	case CodecZstd:
		out, err := decompressZstd(data, limit)
		return out, codec, err
	default:
		return data, codec, nil
	}
}

func decompressGzip(data []byte, limit int64) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gzip reader: %w", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress gzip: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, ErrPayloadTooLarge
	}
	return out, nil
}

func decompressZstd(data []byte, limit int64) ([]byte, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize zstd decoder: %w", err)
	}
	defer decoder.Close()

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
		}
		return nil, fmt.Errorf("failed to decompress zstd: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, ErrPayloadTooLarge
	}
	return out, nil
}
