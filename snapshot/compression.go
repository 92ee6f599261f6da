package snapshot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the algorithm applied to the snapshot body.
type Compression uint8

const (
	// CompressionNone stores the body as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio, slower).
	CompressionZSTD Compression = 2
)

// String returns the lower-case algorithm name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps "none", "lz4" or "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("snapshot: unknown compression %q", s)
	}
}

// A compressed body larger than this share of the input is stored raw.
const maxCompressedRatio = 0.9

// Upper bounds on how far each codec can expand its input. An LZ4 block
// expands at most ~255x, a ZSTD RLE block turns 4 bytes into 128KiB.
const (
	lz4MaxRatio  = 255
	zstdMaxRatio = 128 << 10 / 4
)

var (
	errSizeMismatch = errors.New("decompressed size mismatch")
	errSizeBound    = errors.New("declared size exceeds what the body can hold")
)

// checkSize reports whether n compressed bytes can decode to size bytes
// under c. It runs before anything is allocated from size.
func checkSize(c Compression, n int, size uint64) error {
	var bound uint64
	switch c {
	case CompressionNone:
		if uint64(n) != size {
			return errSizeMismatch
		}
		return nil
	case CompressionLZ4:
		bound = uint64(n) * lz4MaxRatio
	case CompressionZSTD:
		bound = uint64(n) * zstdMaxRatio
	default:
		return fmt.Errorf("unknown compression %d", c)
	}
	if size > bound {
		return errSizeBound
	}
	return nil
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecodeAllCapLimit(true))
	return dec
}

// compress returns the compressed body and the algorithm actually used,
// which is CompressionNone when compression does not pay off.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	if c == CompressionNone || len(data) == 0 {
		return data, CompressionNone, nil
	}

	var out []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, 0, err
		}
		out = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, 0, fmt.Errorf("snapshot: unknown compression %d", c)
	}

	// lz4 reports incompressible input with n == 0.
	if len(out) == 0 || float64(len(out)) > float64(len(data))*maxCompressedRatio {
		return data, CompressionNone, nil
	}
	return out, c, nil
}

func decompress(data []byte, c Compression, size int) ([]byte, error) {
	if err := checkSize(c, len(data), uint64(size)); err != nil {
		return nil, err
	}

	switch c {
	case CompressionNone:
		if len(data) != size {
			return nil, errSizeMismatch
		}
		return data, nil

	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}
		if n != size {
			return nil, errSizeMismatch
		}
		return out, nil

	case CompressionZSTD:
		// DecodeAll preallocates from the frame header, so a forged
		// content size has to be caught here.
		var fh zstd.Header
		if err := fh.Decode(data); err != nil {
			return nil, err
		}
		if fh.HasFCS && fh.FrameContentSize != uint64(size) {
			return nil, errSizeMismatch
		}

		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, err
		}
		if len(out) != size {
			return nil, errSizeMismatch
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
}
