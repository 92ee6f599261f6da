package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/hupe1980/crtree/internal/geom"
)

// Format constants.
const (
	Magic   = "RTS1"
	Version = 1

	// HeaderSize is the fixed size of the snapshot header.
	HeaderSize = 32

	// EntrySize is the encoded size of one entry: Min, Max and payload.
	EntrySize = 2*geom.Dims*8 + 8
)

var (
	// ErrInvalidMagic is returned when the data does not start with Magic.
	ErrInvalidMagic = errors.New("snapshot: invalid magic")
	// ErrInvalidVersion is returned for snapshots written by a newer format.
	ErrInvalidVersion = errors.New("snapshot: unsupported version")
	// ErrCorrupt is returned when the header and body disagree.
	ErrCorrupt = errors.New("snapshot: corrupt data")
)

// ErrDimensionMismatch is returned when a snapshot was written for a
// different number of dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("snapshot: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Entry is one leaf record.
type Entry struct {
	Rect    geom.Rect
	Payload uint64
}

// Header describes an encoded snapshot.
//
// Layout (little endian):
//
//	0  magic       [4]byte
//	4  version     uint16
//	6  dims        uint16
//	8  compression uint8
//	9  reserved    [3]byte
//	12 crc32       uint32   (IEEE, uncompressed body)
//	16 count       uint64
//	24 size        uint64   (uncompressed body bytes)
type Header struct {
	Version     uint16
	Dims        uint16
	Compression Compression
	Checksum    uint32
	Count       uint64
	Size        uint64
}

// Options configures Encode.
type Options struct {
	Compression Compression
}

// DefaultOptions compresses with LZ4.
var DefaultOptions = Options{
	Compression: CompressionLZ4,
}

// Encode serializes entries into a self-describing snapshot.
func Encode(entries []Entry, optFns ...func(o *Options)) ([]byte, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	body := make([]byte, len(entries)*EntrySize)
	off := 0
	for _, e := range entries {
		for i := 0; i < geom.Dims; i++ {
			binary.LittleEndian.PutUint64(body[off:], math.Float64bits(e.Rect.Min[i]))
			off += 8
		}
		for i := 0; i < geom.Dims; i++ {
			binary.LittleEndian.PutUint64(body[off:], math.Float64bits(e.Rect.Max[i]))
			off += 8
		}
		binary.LittleEndian.PutUint64(body[off:], e.Payload)
		off += 8
	}

	packed, used, err := compress(body, opts.Compression)
	if err != nil {
		return nil, err
	}

	h := Header{
		Version:     Version,
		Dims:        geom.Dims,
		Compression: used,
		Checksum:    crc32.ChecksumIEEE(body),
		Count:       uint64(len(entries)),
		Size:        uint64(len(body)),
	}

	out := make([]byte, HeaderSize+len(packed))
	h.put(out)
	copy(out[HeaderSize:], packed)
	return out, nil
}

func (h Header) put(buf []byte) {
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	binary.LittleEndian.PutUint16(buf[6:], h.Dims)
	buf[8] = byte(h.Compression)
	binary.LittleEndian.PutUint32(buf[12:], h.Checksum)
	binary.LittleEndian.PutUint64(buf[16:], h.Count)
	binary.LittleEndian.PutUint64(buf[24:], h.Size)
}

// ReadHeader parses and validates the header at the start of data.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if string(data[0:4]) != Magic {
		return Header{}, ErrInvalidMagic
	}

	h := Header{
		Version:     binary.LittleEndian.Uint16(data[4:]),
		Dims:        binary.LittleEndian.Uint16(data[6:]),
		Compression: Compression(data[8]),
		Checksum:    binary.LittleEndian.Uint32(data[12:]),
		Count:       binary.LittleEndian.Uint64(data[16:]),
		Size:        binary.LittleEndian.Uint64(data[24:]),
	}

	if h.Version == 0 || h.Version > Version {
		return Header{}, fmt.Errorf("%w: %d", ErrInvalidVersion, h.Version)
	}
	if int(h.Dims) != geom.Dims {
		return Header{}, &ErrDimensionMismatch{Expected: geom.Dims, Actual: int(h.Dims)}
	}
	if h.Count > math.MaxInt/EntrySize || h.Size != h.Count*EntrySize {
		return Header{}, fmt.Errorf("%w: %d entries do not fit %d body bytes", ErrCorrupt, h.Count, h.Size)
	}
	return h, nil
}

// Decode parses a snapshot produced by Encode. The returned entries do not
// alias data.
func Decode(data []byte) ([]Entry, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}

	body, err := decompress(data[HeaderSize:], h.Compression, int(h.Size))
	if err != nil {
		return nil, fmt.Errorf("%w: %s body: %w", ErrCorrupt, h.Compression, err)
	}
	if sum := crc32.ChecksumIEEE(body); sum != h.Checksum {
		return nil, fmt.Errorf("%w: checksum %08x, expected %08x", ErrCorrupt, sum, h.Checksum)
	}

	entries := make([]Entry, h.Count)
	off := 0
	for k := range entries {
		e := &entries[k]
		for i := 0; i < geom.Dims; i++ {
			e.Rect.Min[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[off:]))
			off += 8
		}
		for i := 0; i < geom.Dims; i++ {
			e.Rect.Max[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[off:]))
			off += 8
		}
		e.Payload = binary.LittleEndian.Uint64(body[off:])
		off += 8

		if err := e.Rect.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrCorrupt, k, err)
		}
		if !e.Rect.Finite() {
			return nil, fmt.Errorf("%w: entry %d: unbounded rectangle %s", ErrCorrupt, k, e.Rect)
		}
	}
	return entries, nil
}
