// Package compression compresses cached component blobs with zstd.
package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Blobs smaller than this are stored as-is.
const minSize = 128

// Every encoded blob starts with one of these tags.
const (
	tagRaw  byte = 0
	tagZstd byte = 1
)

var errEmpty = errors.New("empty object")

// Level selects the zstd encoder speed.
type Level int

const (
	LevelFastest Level = iota + 1
	LevelDefault
	LevelBest
)

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// NewCompressor returns a compressor. A disabled compressor passes data through.
func NewCompressor(level Level, enabled bool) (*Compressor, error) {
	if !enabled {
		return &Compressor{}, nil
	}

	encoderLevel := zstd.SpeedDefault
	switch level {
	case LevelFastest:
		encoderLevel = zstd.SpeedFastest
	case LevelBest:
		encoderLevel = zstd.SpeedBetterCompression
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
		enabled: true,
	}, nil
}

// Compress encodes data, compressed when that shrinks it and raw otherwise.
func (c *Compressor) Compress(data []byte) []byte {
	if c.enabled && len(data) >= minSize {
		compressed := c.encoder.EncodeAll(data, []byte{tagZstd})
		if len(compressed) < len(data)+1 {
			return compressed
		}
	}
	return append([]byte{tagRaw}, data...)
}

// Decompress decodes the output of Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errEmpty
	}
	switch data[0] {
	case tagRaw:
		return data[1:], nil
	case tagZstd:
		if !c.enabled {
			return nil, fmt.Errorf("compressed object but compression disabled")
		}
		decompressed, err := c.decoder.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return decompressed, nil
	default:
		return nil, fmt.Errorf("unknown object encoding %#x", data[0])
	}
}

// Close releases the encoder and decoder. It is safe to call more than once.
func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
	c.enabled = false
	return nil
}
