// Package pager implements the on-disk page format, the buffer pool, and
// the clustered B+Tree that maps primary keys to records. Everything above
// this package — schema, values, the storage engine's catalog — is thin
// glue over what lives here.
package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// PageSize is the fixed size, in bytes, of every page on disk and in the
// buffer pool. It is part of the on-disk format and is not configurable.
const PageSize = 8192

// InvalidPageIndex marks an absent page reference (no parent, no sibling).
const InvalidPageIndex int32 = -1

// PageID identifies a page within a database: the table it belongs to and
// its zero-based index within that table's file.
type PageID struct {
	TableID   int32
	PageIndex int32
}

// Invalid reports whether this is the sentinel "no page" id (PageIndex == -1).
func (id PageID) Invalid() bool { return id.PageIndex == InvalidPageIndex }

func (id PageID) String() string { return fmt.Sprintf("(%d,%d)", id.TableID, id.PageIndex) }

// Sentinel errors for this package; callers distinguish kinds with errors.Is.
var (
	ErrInvalidOffset     = errors.New("pager: invalid offset")
	ErrInvalidPageType   = errors.New("pager: invalid page type")
	ErrIndexOutOfRange   = errors.New("pager: index out of range")
	ErrInsufficientSpace = errors.New("pager: insufficient space")
	ErrDuplicateKey      = errors.New("pager: duplicate key")
	ErrBufferPoolFull    = errors.New("pager: buffer pool full")
	ErrIoError           = errors.New("pager: io error")
)

// Page owns one fixed-size byte buffer plus its identity. All multi-byte
// integers are little-endian on disk.
type Page struct {
	ID  PageID
	buf []byte
}

// NewPage allocates a zeroed page buffer for the given id.
func NewPage(id PageID) *Page {
	return &Page{ID: id, buf: make([]byte, PageSize)}
}

// WrapPage wraps an existing PageSize-length buffer without copying it.
func WrapPage(id PageID, buf []byte) (*Page, error) {
	if len(buf) != PageSize {
		return nil, fmt.Errorf("pager: wrap page: buffer length %d != %d", len(buf), PageSize)
	}
	return &Page{ID: id, buf: buf}, nil
}

func (p *Page) checkBounds(offset, width int) error {
	if offset < 0 || offset+width > PageSize {
		return fmt.Errorf("%w: offset=%d width=%d page_size=%d", ErrInvalidOffset, offset, width, PageSize)
	}
	return nil
}

// ReadI32 reads a little-endian int32 at offset.
func (p *Page) ReadI32(offset int) (int32, error) {
	if err := p.checkBounds(offset, 4); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(p.buf[offset:])), nil
}

// WriteI32 writes a little-endian int32 at offset.
func (p *Page) WriteI32(offset int, v int32) error {
	if err := p.checkBounds(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(p.buf[offset:], uint32(v))
	return nil
}

// ReadI64 reads a little-endian int64 at offset.
func (p *Page) ReadI64(offset int) (int64, error) {
	if err := p.checkBounds(offset, 8); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(p.buf[offset:])), nil
}

// WriteI64 writes a little-endian int64 at offset.
func (p *Page) WriteI64(offset int, v int64) error {
	if err := p.checkBounds(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(p.buf[offset:], uint64(v))
	return nil
}

// WriteDateTime encodes t as its UnixNano i64 form at offset.
func (p *Page) WriteDateTime(offset int, t time.Time) error {
	return p.WriteI64(offset, t.UnixNano())
}

// ReadDateTime decodes the i64 UnixNano form written by WriteDateTime.
func (p *Page) ReadDateTime(offset int) (time.Time, error) {
	ns, err := p.ReadI64(offset)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ns).UTC(), nil
}

// GetSpan returns a mutable slice of the page's bytes in [offset, offset+length).
func (p *Page) GetSpan(offset, length int) ([]byte, error) {
	if err := p.checkBounds(offset, length); err != nil {
		return nil, err
	}
	return p.buf[offset : offset+length], nil
}

// GetReadonlySpan returns a copy of the page's bytes in [offset, offset+length).
func (p *Page) GetReadonlySpan(offset, length int) ([]byte, error) {
	span, err := p.GetSpan(offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, span)
	return out, nil
}

// Bytes returns the full underlying buffer. Callers above the buffer pool
// should treat it as borrowed for the duration of their pin.
func (p *Page) Bytes() []byte { return p.buf }

// Reset zeroes the entire buffer in place, keeping the same identity.
func (p *Page) Reset() {
	for i := range p.buf {
		p.buf[i] = 0
	}
}
