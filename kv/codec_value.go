package kv

import (
	"encoding/binary"
	"fmt"
)

// Column is one (name, value) pair in a row's column list (spec §4.2).
type Column struct {
	Name  string
	Value []byte
}

// EncodeValue serializes an ordered column list. Wire shape:
//
//	count(u32) || (name_len(u32) || name_bytes || value_len(u32) || value_bytes) × count
//
// Endianness is fixed to little-endian across this build (spec §4.2:
// "implementation-defined but fixed"). Empty input encodes to a zero count.
func EncodeValue(cols []Column) []byte {
	size := 4
	for _, c := range cols {
		size += 4 + len(c.Name) + 4 + len(c.Value)
	}
	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(cols)))
	off := 4
	for _, c := range cols {
		binary.LittleEndian.PutUint32(out[off:off+4], uint32(len(c.Name)))
		off += 4
		off += copy(out[off:], c.Name)
		binary.LittleEndian.PutUint32(out[off:off+4], uint32(len(c.Value)))
		off += 4
		off += copy(out[off:], c.Value)
	}
	return out
}

// DecodeValue inverts EncodeValue. Fails with ErrMalformedValue on
// truncation or on a length field that would read past the buffer. Empty
// input decodes to zero columns.
func DecodeValue(b []byte) ([]Column, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) < 4 {
		return nil, Wrap(ErrMalformedValue, "DecodeValue", fmt.Errorf("truncated count header"))
	}
	count := binary.LittleEndian.Uint32(b[0:4])
	off := 4
	cols := make([]Column, 0, count)
	for i := uint32(0); i < count; i++ {
		name, next, err := readChunk(b, off)
		if err != nil {
			return nil, Wrap(ErrMalformedValue, "DecodeValue", err)
		}
		off = next
		val, next, err := readChunk(b, off)
		if err != nil {
			return nil, Wrap(ErrMalformedValue, "DecodeValue", err)
		}
		off = next
		cols = append(cols, Column{Name: string(name), Value: val})
	}
	return cols, nil
}

// readChunk reads a len(u32)-prefixed byte slice starting at off, returning
// the slice and the offset immediately following it.
func readChunk(b []byte, off int) ([]byte, int, error) {
	if off+4 > len(b) {
		return nil, 0, fmt.Errorf("truncated length field at offset %d", off)
	}
	n := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	if n > uint32(len(b)-off) {
		return nil, 0, fmt.Errorf("length %d at offset %d exceeds buffer", n, off)
	}
	end := off + int(n)
	return b[off:end], end, nil
}
