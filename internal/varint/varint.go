// Package varint implements the standard Bitcoin-style CompactSize
// variable-length integer encoding used throughout the store's on-disk
// record formats. There is no third-party library for this — it is a
// handful of branches over encoding/binary, not a pluggable concern —
// so it stays on the standard library.
package varint

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Size returns the number of bytes Put will write for n.
func Size(n uint64) int {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// Put writes n's CompactSize encoding to buf and returns the number of
// bytes written. buf must have at least Size(n) bytes available.
func Put(buf []byte, n uint64) int {
	switch {
	case n < 0xfd:
		buf[0] = byte(n)
		return 1
	case n <= 0xffff:
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(n))
		return 3
	case n <= 0xffffffff:
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(n))
		return 5
	default:
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], n)
		return 9
	}
}

// Append appends n's CompactSize encoding to buf and returns the result.
func Append(buf []byte, n uint64) []byte {
	var tmp [9]byte
	k := Put(tmp[:], n)
	return append(buf, tmp[:k]...)
}

// Get decodes a CompactSize integer from the start of buf and returns the
// value plus the number of bytes consumed.
func Get(buf []byte) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, errors.WithStack(io.ErrUnexpectedEOF)
	}
	switch prefix := buf[0]; {
	case prefix < 0xfd:
		return uint64(prefix), 1, nil
	case prefix == 0xfd:
		if len(buf) < 3 {
			return 0, 0, errors.WithStack(io.ErrUnexpectedEOF)
		}
		return uint64(binary.LittleEndian.Uint16(buf[1:3])), 3, nil
	case prefix == 0xfe:
		if len(buf) < 5 {
			return 0, 0, errors.WithStack(io.ErrUnexpectedEOF)
		}
		return uint64(binary.LittleEndian.Uint32(buf[1:5])), 5, nil
	default:
		if len(buf) < 9 {
			return 0, 0, errors.WithStack(io.ErrUnexpectedEOF)
		}
		return binary.LittleEndian.Uint64(buf[1:9]), 9, nil
	}
}
