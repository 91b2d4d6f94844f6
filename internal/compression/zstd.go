package compression

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

// MagicSize is the length of the zstd frame magic number.
const MagicSize = 4

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// IsZstd reports whether data starts with a zstd frame.
func IsZstd(data []byte) bool {
	return len(data) >= MagicSize && bytes.Equal(data[:MagicSize], zstdMagic)
}

// NewReader returns a streaming decompressor over r.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

type Compressor struct {
	encoder *zstd.Encoder
}

// NewCompressor returns a compressor at the given level: 1 fastest,
// 2 default, 3 better compression. Other values use the default.
func NewCompressor(level int) (*Compressor, error) {
	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 2:
		encoderLevel = zstd.SpeedDefault
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	return &Compressor{encoder: encoder}, nil
}

// Compress encodes data as a single zstd frame. Empty input yields empty output.
func (c *Compressor) Compress(data []byte) []byte {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	return nil
}
