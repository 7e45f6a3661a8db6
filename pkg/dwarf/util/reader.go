package util

import (
	"encoding/binary"
)

// Reader is a cursor over a byte slice. Every read advances the cursor by
// the number of bytes consumed and fails with ErrOutOfBounds instead of
// panicking when the data is truncated.
type Reader struct {
	data  []byte
	order binary.ByteOrder
	pos   int
}

// NewReader returns a Reader positioned at off.
func NewReader(data []byte, order binary.ByteOrder, off int) *Reader {
	return &Reader{data: data, order: order, pos: off}
}

// Pos returns the current offset.
func (r *Reader) Pos() int { return r.pos }

// Seek moves the cursor to off.
func (r *Reader) Seek(off int) { r.pos = off }

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	if r.pos >= len(r.data) {
		return 0
	}
	return len(r.data) - r.pos
}

// Order returns the byte order used for fixed width reads.
func (r *Reader) Order() binary.ByteOrder { return r.order }

func (r *Reader) U8() (uint8, error) {
	v, err := ReadU8(r.data, r.pos)
	if err == nil {
		r.pos++
	}
	return v, err
}

func (r *Reader) I8() (int8, error) {
	v, err := ReadI8(r.data, r.pos)
	if err == nil {
		r.pos++
	}
	return v, err
}

func (r *Reader) U16() (uint16, error) {
	v, err := ReadU16(r.data, r.pos, r.order)
	if err == nil {
		r.pos += 2
	}
	return v, err
}

func (r *Reader) U32() (uint32, error) {
	v, err := ReadU32(r.data, r.pos, r.order)
	if err == nil {
		r.pos += 4
	}
	return v, err
}

func (r *Reader) U64() (uint64, error) {
	v, err := ReadU64(r.data, r.pos, r.order)
	if err == nil {
		r.pos += 8
	}
	return v, err
}

// Uint reads an unsigned integer of the given width.
func (r *Reader) Uint(size int) (uint64, error) {
	v, err := ReadUint(r.data, r.pos, size, r.order)
	if err == nil {
		r.pos += size
	}
	return v, err
}

func (r *Reader) ULEB128() (uint64, error) {
	v, n, err := DecodeULEB128(r.data, r.pos)
	if err == nil {
		r.pos += n
	}
	return v, err
}

func (r *Reader) SLEB128() (int64, error) {
	v, n, err := DecodeSLEB128(r.data, r.pos)
	if err == nil {
		r.pos += n
	}
	return v, err
}

// String reads a NUL terminated string.
func (r *Reader) String() (string, error) {
	s, n, err := ParseString(r.data, r.pos)
	if err == nil {
		r.pos += n
	}
	return s, err
}

// Bytes returns the next n bytes without copying them.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := checkRange(r.data, r.pos, n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if err := checkRange(r.data, r.pos, n); err != nil {
		return err
	}
	r.pos += n
	return nil
}
