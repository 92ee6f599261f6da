package nodestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/hupe1980/crtree/internal/geom"
)

// Page layout (little endian):
//
//	[0:4]   CRC32 (IEEE) of bytes [4:PageSize]
//	[4:8]   magic
//	[8:12]  level
//	[12:16] record count
//	[16:24] node version
//	[24]    flags (bit 0: root)
//	[25:32] reserved
//	[32:]   records, recordSize bytes each, zero padded to PageSize
//
// Record layout: min[Dims] float64, max[Dims] float64, offset int64,
// version uint64, payload uint64.
const (
	pageMagic  uint32 = 0x52544e50 // "RTNP"
	headerSize        = 32
	recordSize        = 2*geom.Dims*8 + 3*8

	flagRoot byte = 1 << 0
)

var (
	// ErrInvalidPage is returned for a page whose header cannot be decoded.
	ErrInvalidPage = errors.New("nodestore: invalid page")

	// ErrInvalidOffset is returned for offsets that do not address a page.
	ErrInvalidOffset = errors.New("nodestore: invalid offset")
)

// ChecksumMismatchError reports a page whose stored checksum does not match
// its contents.
type ChecksumMismatchError struct {
	Offset   int64
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("nodestore: checksum mismatch at offset %d: expected %08x, got %08x", e.Offset, e.Expected, e.Actual)
}

// Page is the on-disk image of one tree node. Pages returned by Load are
// shared through the cache and must be treated as read-only.
type Page struct {
	// Offset is the page's position in the store; -1 if never saved.
	Offset  int64
	Level   int
	Version uint64
	Root    bool
	Records []PageRecord
}

// PageRecord is one node slot. Offset and Version describe the child of an
// internal node; Payload is the leaf payload.
type PageRecord struct {
	Rect    geom.Rect
	Offset  int64
	Version uint64
	Payload uint64
}

// PageSize returns the encoded size of a page holding up to maxRecords.
func PageSize(maxRecords int) int {
	return headerSize + maxRecords*recordSize
}

// Encode writes p into buf, which must be PageSize(maxRecords) long.
func (p *Page) Encode(buf []byte) error {
	maxRecords := (len(buf) - headerSize) / recordSize
	if len(p.Records) > maxRecords {
		return fmt.Errorf("%w: %d records exceed page capacity %d", ErrInvalidPage, len(p.Records), maxRecords)
	}

	clear(buf)
	le := binary.LittleEndian
	le.PutUint32(buf[4:], pageMagic)
	le.PutUint32(buf[8:], uint32(p.Level))
	le.PutUint32(buf[12:], uint32(len(p.Records)))
	le.PutUint64(buf[16:], p.Version)
	if p.Root {
		buf[24] = flagRoot
	}

	off := headerSize
	for i := range p.Records {
		encodeRecord(buf[off:off+recordSize], &p.Records[i])
		off += recordSize
	}

	le.PutUint32(buf[0:], crc32.ChecksumIEEE(buf[4:]))
	return nil
}

// DecodePage parses a page read from offset.
func DecodePage(buf []byte, offset int64) (*Page, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: short page of %d bytes", ErrInvalidPage, len(buf))
	}

	le := binary.LittleEndian
	want := le.Uint32(buf[0:])
	if got := crc32.ChecksumIEEE(buf[4:]); got != want {
		return nil, &ChecksumMismatchError{Offset: offset, Expected: want, Actual: got}
	}
	if magic := le.Uint32(buf[4:]); magic != pageMagic {
		return nil, fmt.Errorf("%w: bad magic %08x at offset %d", ErrInvalidPage, magic, offset)
	}

	count := int(le.Uint32(buf[12:]))
	if headerSize+count*recordSize > len(buf) {
		return nil, fmt.Errorf("%w: %d records do not fit the page", ErrInvalidPage, count)
	}

	p := &Page{
		Offset:  offset,
		Level:   int(int32(le.Uint32(buf[8:]))),
		Version: le.Uint64(buf[16:]),
		Root:    buf[24]&flagRoot != 0,
		Records: make([]PageRecord, count),
	}

	off := headerSize
	for i := range p.Records {
		decodeRecord(buf[off:off+recordSize], &p.Records[i])
		off += recordSize
	}

	return p, nil
}

func encodeRecord(b []byte, r *PageRecord) {
	le := binary.LittleEndian
	o := 0
	for i := 0; i < geom.Dims; i++ {
		le.PutUint64(b[o:], math.Float64bits(r.Rect.Min[i]))
		o += 8
	}
	for i := 0; i < geom.Dims; i++ {
		le.PutUint64(b[o:], math.Float64bits(r.Rect.Max[i]))
		o += 8
	}
	le.PutUint64(b[o:], uint64(r.Offset))
	le.PutUint64(b[o+8:], r.Version)
	le.PutUint64(b[o+16:], r.Payload)
}

func decodeRecord(b []byte, r *PageRecord) {
	le := binary.LittleEndian
	o := 0
	for i := 0; i < geom.Dims; i++ {
		r.Rect.Min[i] = math.Float64frombits(le.Uint64(b[o:]))
		o += 8
	}
	for i := 0; i < geom.Dims; i++ {
		r.Rect.Max[i] = math.Float64frombits(le.Uint64(b[o:]))
		o += 8
	}
	r.Offset = int64(le.Uint64(b[o:]))
	r.Version = le.Uint64(b[o+8:])
	r.Payload = le.Uint64(b[o+16:])
}
