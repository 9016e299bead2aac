package ccnname

import (
	"fmt"
	"slices"
	"strings"
)

// Component types the forwarding core names: generic, implicit digest and
// parameters digest, plus keyword, version and timestamp; any other type
// round-trips as TypeGenericNameComponent-shaped bytes from the codec's
// point of view.
const (
	TypeInvalidComponent                TLNum = 0x00
	TypeImplicitSha256DigestComponent   TLNum = 0x01
	TypeParametersSha256DigestComponent TLNum = 0x02
	TypeGenericNameComponent            TLNum = 0x08
	TypeKeywordNameComponent            TLNum = 0x20
	TypeVersionNameComponent            TLNum = 0x36
	TypeTimestampNameComponent          TLNum = 0x38
)

// Component is a single (type, value) pair of a flat name.
type Component struct {
	Typ TLNum
	Val []byte
}

// NewGenericComponent builds a generic name component from a UTF-8 string.
func NewGenericComponent(s string) Component {
	return Component{Typ: TypeGenericNameComponent, Val: []byte(s)}
}

// NewBytesComponent builds a component of the given type from raw bytes.
func NewBytesComponent(typ TLNum, val []byte) Component {
	return Component{Typ: typ, Val: val}
}

// NewImplicitDigestComponent wraps a SHA-256 digest as the implicit digest
// component CS entries and Interests address by exact name (spec.md §3:
// "full name + implicit digest component").
func NewImplicitDigestComponent(digest [32]byte) Component {
	return Component{Typ: TypeImplicitSha256DigestComponent, Val: digest[:]}
}

func (c Component) Clone() Component {
	return Component{Typ: c.Typ, Val: slices.Clone(c.Val)}
}

// EncodingLength is the number of bytes EncodeInto writes for this component.
func (c Component) EncodingLength() int {
	l := len(c.Val)
	return c.Typ.EncodingLength() + TLNum(l).EncodingLength() + l
}

// EncodeInto writes (type, length, value) into buf and returns bytes written.
func (c Component) EncodeInto(buf []byte) int {
	p1 := c.Typ.EncodeInto(buf)
	p2 := TLNum(len(c.Val)).EncodeInto(buf[p1:])
	copy(buf[p1+p2:], c.Val)
	return p1 + p2 + len(c.Val)
}

// Bytes encodes the component standalone.
func (c Component) Bytes() []byte {
	buf := make([]byte, c.EncodingLength())
	c.EncodeInto(buf)
	return buf
}

// ParseComponent reads one component from the front of buf.
func ParseComponent(buf []byte) (c Component, n int, ok bool) {
	typ, p1, ok := ParseTLNum(buf)
	if !ok {
		return Component{}, 0, false
	}
	length, p2, ok := ParseTLNum(buf[p1:])
	if !ok {
		return Component{}, 0, false
	}
	start := p1 + p2
	end := start + int(length)
	if end > len(buf) {
		return Component{}, 0, false
	}
	return Component{Typ: typ, Val: buf[start:end]}, end, true
}

func (c Component) String() string {
	sb := strings.Builder{}
	if c.Typ != TypeGenericNameComponent {
		fmt.Fprintf(&sb, "%d=", uint64(c.Typ))
	}
	sb.Write(escapeValue(c.Val))
	return sb.String()
}

// escapeValue renders a component value the way CCN URIs do: unreserved
// URI bytes (letters, digits, '-', '.', '_', '~') verbatim, everything
// else as %XX.
func escapeValue(val []byte) []byte {
	out := make([]byte, 0, len(val))
	for _, b := range val {
		if isUnreserved(b) {
			out = append(out, b)
		} else {
			out = append(out, fmt.Sprintf("%%%02X", b)...)
		}
	}
	return out
}

func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	}
	return false
}
