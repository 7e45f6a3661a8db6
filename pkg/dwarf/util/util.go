// Package util contains the bounds checked primitive decoders shared by the
// ELF and DWARF readers: fixed width integers, LEB128 and C strings.
package util

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned whenever a read runs past the end of its buffer.
var ErrOutOfBounds = errors.New("read out of bounds")

func outOfBounds(off, size, length int) error {
	return errors.Wrapf(ErrOutOfBounds, "read %d bytes at offset %#x, buffer length %#x", size, off, length)
}

// checkRange returns an error unless data[off:off+size] is addressable.
func checkRange(data []byte, off, size int) error {
	if off < 0 || size < 0 || off > len(data) || len(data)-off < size {
		return outOfBounds(off, size, len(data))
	}
	return nil
}

// ReadU8 reads one byte at off.
func ReadU8(data []byte, off int) (uint8, error) {
	if err := checkRange(data, off, 1); err != nil {
		return 0, err
	}
	return data[off], nil
}

// ReadI8 reads one signed byte at off.
func ReadI8(data []byte, off int) (int8, error) {
	v, err := ReadU8(data, off)
	return int8(v), err
}

// ReadU16 reads a 2-byte unsigned integer at off.
func ReadU16(data []byte, off int, order binary.ByteOrder) (uint16, error) {
	if err := checkRange(data, off, 2); err != nil {
		return 0, err
	}
	return order.Uint16(data[off:]), nil
}

// ReadU32 reads a 4-byte unsigned integer at off.
func ReadU32(data []byte, off int, order binary.ByteOrder) (uint32, error) {
	if err := checkRange(data, off, 4); err != nil {
		return 0, err
	}
	return order.Uint32(data[off:]), nil
}

// ReadU64 reads an 8-byte unsigned integer at off.
func ReadU64(data []byte, off int, order binary.ByteOrder) (uint64, error) {
	if err := checkRange(data, off, 8); err != nil {
		return 0, err
	}
	return order.Uint64(data[off:]), nil
}

// ReadUint reads an unsigned integer of 1, 2, 4 or 8 bytes, e.g. a target
// address whose width depends on the compilation unit.
func ReadUint(data []byte, off, size int, order binary.ByteOrder) (uint64, error) {
	switch size {
	case 1:
		v, err := ReadU8(data, off)
		return uint64(v), err
	case 2:
		v, err := ReadU16(data, off, order)
		return uint64(v), err
	case 4:
		v, err := ReadU32(data, off, order)
		return uint64(v), err
	case 8:
		return ReadU64(data, off, order)
	}
	return 0, errors.Errorf("unsupported integer size %d", size)
}

// DecodeULEB128 decodes an unsigned LEB128 value at off, returning the value
// and the number of bytes consumed.
func DecodeULEB128(data []byte, off int) (uint64, int, error) {
	var (
		result uint64
		shift  uint
		n      int
	)
	for {
		if err := checkRange(data, off+n, 1); err != nil {
			return 0, 0, err
		}
		b := data[off+n]
		n++
		if shift < 64 {
			result |= uint64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	return result, n, nil
}

// DecodeSLEB128 decodes a signed LEB128 value at off, returning the value and
// the number of bytes consumed.
func DecodeSLEB128(data []byte, off int) (int64, int, error) {
	var (
		result int64
		shift  uint
		n      int
		b      byte
	)
	for {
		if err := checkRange(data, off+n, 1); err != nil {
			return 0, 0, err
		}
		b = data[off+n]
		n++
		if shift < 64 {
			result |= int64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	// sign bit of the last byte
	if shift < 64 && b&0x40 != 0 {
		result |= -(int64(1) << shift)
	}
	return result, n, nil
}

// ParseString reads a NUL terminated string at off. The consumed count always
// includes the terminator, even when the string runs to the end of the buffer.
func ParseString(data []byte, off int) (string, int, error) {
	if off < 0 || off > len(data) {
		return "", 0, outOfBounds(off, 1, len(data))
	}
	end := off
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[off:end]), end - off + 1, nil
}
