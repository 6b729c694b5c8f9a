package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/ulikunitz/xz"
)

// Codec compresses serialized cache entries on disk.
type Codec string

// Supported entry codecs.
const (
	CodecNone   Codec = "none"
	CodecBrotli Codec = "brotli"
	CodecXZ     Codec = "xz"
)

// ParseCodec validates a codec name from configuration.
func ParseCodec(name string) (Codec, error) {
	switch Codec(name) {
	case "", CodecNone:
		return CodecNone, nil
	case CodecBrotli:
		return CodecBrotli, nil
	case CodecXZ:
		return CodecXZ, nil
	default:
		return "", fmt.Errorf("unknown cache codec %q", name)
	}
}

// Ext returns the file extension appended to entry files.
func (c Codec) Ext() string {
	switch c {
	case CodecBrotli:
		return ".br"
	case CodecXZ:
		return ".xz"
	default:
		return ""
	}
}

// Encode compresses data with the codec.
func (c Codec) Encode(data []byte) ([]byte, error) {
	switch c {
	case CodecBrotli:
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("brotli compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("brotli compress: %w", err)
		}
		return buf.Bytes(), nil
	case CodecXZ:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("xz compress: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("xz compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("xz compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return data, nil
	}
}

// Decode decompresses data with the codec.
func (c Codec) Decode(data []byte) ([]byte, error) {
	switch c {
	case CodecBrotli:
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("brotli decompress: %w", err)
		}
		return out, nil
	case CodecXZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("xz decompress: %w", err)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("xz decompress: %w", err)
		}
		return out, nil
	default:
		return data, nil
	}
}
