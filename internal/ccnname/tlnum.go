// Package ccnname implements the flat-name byte encoding spec.md §3
// describes: a concatenation of (type, length, bytes) components whose
// lexicographic order on the flat byte string equals canonical CCN name
// order. It is trimmed from std/encoding/{component,primitives}.go's shape
// (TLNum varint, Component{Typ,Val}) to the subset the forwarding core
// needs; the full TLV codegen machinery is out of scope (spec.md §1 puts
// the wire-format codec outside the forwarding core).
package ccnname

import "encoding/binary"

// TLNum is a variable-length non-negative integer, encoded as 1, 3, 5, or 9
// bytes depending on magnitude (matching the CCN/NDN TLV varint convention).
type TLNum uint64

// EncodingLength returns the number of bytes TLNum.EncodeInto will write.
func (v TLNum) EncodingLength() int {
	switch {
	case v <= 0xfc:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// EncodeInto writes v into buf and returns the number of bytes written.
func (v TLNum) EncodeInto(buf []byte) int {
	switch {
	case v <= 0xfc:
		buf[0] = byte(v)
		return 1
	case v <= 0xffff:
		buf[0] = 0xfd
		binary.BigEndian.PutUint16(buf[1:], uint16(v))
		return 3
	case v <= 0xffffffff:
		buf[0] = 0xfe
		binary.BigEndian.PutUint32(buf[1:], uint32(v))
		return 5
	default:
		buf[0] = 0xff
		binary.BigEndian.PutUint64(buf[1:], uint64(v))
		return 9
	}
}

// Bytes encodes v standalone.
func (v TLNum) Bytes() []byte {
	buf := make([]byte, v.EncodingLength())
	v.EncodeInto(buf)
	return buf
}

// ParseTLNum reads a TLNum from the front of buf, returning its value and
// the number of bytes consumed, or ok=false if buf is too short.
func ParseTLNum(buf []byte) (v TLNum, n int, ok bool) {
	if len(buf) == 0 {
		return 0, 0, false
	}
	switch {
	case buf[0] <= 0xfc:
		return TLNum(buf[0]), 1, true
	case buf[0] == 0xfd:
		if len(buf) < 3 {
			return 0, 0, false
		}
		return TLNum(binary.BigEndian.Uint16(buf[1:3])), 3, true
	case buf[0] == 0xfe:
		if len(buf) < 5 {
			return 0, 0, false
		}
		return TLNum(binary.BigEndian.Uint32(buf[1:5])), 5, true
	default:
		if len(buf) < 9 {
			return 0, 0, false
		}
		return TLNum(binary.BigEndian.Uint64(buf[1:9])), 9, true
	}
}
