package ccnname

import (
	"bytes"
	"fmt"
	"strings"
)

// Name is an ordered sequence of components. Flat() produces the
// concatenated (type, length, bytes) byte string of every component; lexicographic
// compare on that byte string is canonical CCN name order.
type Name []Component

// NameFromStr parses a "/a/b/c" style URI into a Name. A leading "ccnx:" is
// tolerated and stripped, matching common CCN URI notation.
func NameFromStr(s string) (Name, error) {
	s = strings.TrimPrefix(s, "ccnx:")
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return Name{}, nil
	}
	parts := strings.Split(s, "/")
	n := make(Name, 0, len(parts))
	for _, p := range parts {
		typ := TypeGenericNameComponent
		val := p
		if idx := strings.IndexByte(p, '='); idx > 0 {
			if t, ok := parseTypePrefix(p[:idx]); ok {
				typ = t
				val = p[idx+1:]
			}
		}
		unescaped, err := unescapeValue(val)
		if err != nil {
			return nil, err
		}
		n = append(n, Component{Typ: typ, Val: unescaped})
	}
	return n, nil
}

func parseTypePrefix(s string) (TLNum, bool) {
	var v uint64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, false
	}
	return TLNum(v), true
}

func unescapeValue(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' {
			if i+2 >= len(s) {
				return nil, fmt.Errorf("truncated escape in %q", s)
			}
			var b byte
			if _, err := fmt.Sscanf(s[i+1:i+3], "%02X", &b); err != nil {
				return nil, fmt.Errorf("bad escape in %q: %w", s, err)
			}
			out = append(out, b)
			i += 2
		} else {
			out = append(out, s[i])
		}
	}
	return out, nil
}

// String renders the name as a CCN URI.
func (n Name) String() string {
	if len(n) == 0 {
		return "/"
	}
	sb := strings.Builder{}
	for _, c := range n {
		sb.WriteByte('/')
		sb.WriteString(c.String())
	}
	return sb.String()
}

// Clone deep-copies the name.
func (n Name) Clone() Name {
	out := make(Name, len(n))
	for i, c := range n {
		out[i] = c.Clone()
	}
	return out
}

// Append returns a new name with the given components appended.
func (n Name) Append(c ...Component) Name {
	out := make(Name, 0, len(n)+len(c))
	out = append(out, n...)
	out = append(out, c...)
	return out
}

// EncodingLength is the length of the flat byte encoding.
func (n Name) EncodingLength() int {
	l := 0
	for _, c := range n {
		l += c.EncodingLength()
	}
	return l
}

// Flat concatenates the (type,length,value) encoding of every component,
// producing the byte string spec.md §3 requires for lexicographic ordering
// and prefix matching.
func (n Name) Flat() []byte {
	buf := make([]byte, n.EncodingLength())
	off := 0
	for _, c := range n {
		off += c.EncodeInto(buf[off:])
	}
	return buf
}

// ParseName decodes a full flat-encoded name from buf (consuming all of it).
func ParseName(buf []byte) (Name, error) {
	var n Name
	for len(buf) > 0 {
		c, consumed, ok := ParseComponent(buf)
		if !ok {
			return nil, fmt.Errorf("malformed name component at index %d", len(n))
		}
		n = append(n, c)
		buf = buf[consumed:]
	}
	return n, nil
}

// Relation is the five-valued result of comparing two names, as spec.md §3
// requires: equal, strict-prefix, extension-of, less, greater.
type Relation int

const (
	RelEqual Relation = iota
	RelStrictPrefix
	RelExtensionOf
	RelLess
	RelGreater
)

func (r Relation) String() string {
	switch r {
	case RelEqual:
		return "equal"
	case RelStrictPrefix:
		return "strict-prefix"
	case RelExtensionOf:
		return "extension-of"
	case RelLess:
		return "less"
	case RelGreater:
		return "greater"
	default:
		return "invalid"
	}
}

// Compare classifies n against other using the flat-byte lexicographic
// order, distinguishing the prefix relationship from a strict ordering, per
// spec.md §3.
func (n Name) Compare(other Name) Relation {
	a, b := n.Flat(), other.Flat()
	cmp := bytes.Compare(a, b)
	switch {
	case cmp == 0:
		return RelEqual
	case len(a) < len(b) && bytes.Equal(a, b[:len(a)]):
		return RelStrictPrefix
	case len(a) > len(b) && bytes.Equal(b, a[:len(b)]):
		return RelExtensionOf
	case cmp < 0:
		return RelLess
	default:
		return RelGreater
	}
}

// Equal reports whether n and other are the identical name.
func (n Name) Equal(other Name) bool {
	return n.Compare(other) == RelEqual
}

// IsPrefix reports whether n is a prefix of (or equal to) other.
func (n Name) IsPrefix(other Name) bool {
	rel := n.Compare(other)
	return rel == RelEqual || rel == RelStrictPrefix
}

// At returns the component at index i, or the zero Component if out of range.
func (n Name) At(i int) Component {
	if i < 0 || i >= len(n) {
		return Component{}
	}
	return n[i]
}
