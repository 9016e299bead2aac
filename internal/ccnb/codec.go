package ccnb

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/internal/optional"
)

// Outer message TLV types.
const (
	TypeInterest      ccnname.TLNum = 0x01
	TypeContentObject ccnname.TLNum = 0x02
)

// Interest field TLV types.
const (
	fieldName                ccnname.TLNum = 0x07
	fieldMinSuffixComponents ccnname.TLNum = 0x0d
	fieldMaxSuffixComponents ccnname.TLNum = 0x0e
	fieldPublisherDigest     ccnname.TLNum = 0x0f
	fieldExclude             ccnname.TLNum = 0x10
	fieldExcludeAny          ccnname.TLNum = 0x11
	fieldChildSelector       ccnname.TLNum = 0x12
	fieldMustBeFresh         ccnname.TLNum = 0x13
	fieldScope               ccnname.TLNum = 0x14
	fieldInterestLifetime    ccnname.TLNum = 0x15
	fieldNonce               ccnname.TLNum = 0x16
	fieldFaceID              ccnname.TLNum = 0x17
	fieldContent             ccnname.TLNum = 0x18
	fieldFreshnessPeriod     ccnname.TLNum = 0x19
)

// Codec is the pluggable wire-format boundary of spec.md §6 ("wire-format
// codec ... provides parse/emit and digest computation"). The forwarding
// core only ever talks to this interface, never to TLV bytes directly.
type Codec interface {
	DecodeInterest(raw []byte) (*Interest, error)
	DecodeData(raw []byte) (*ContentObject, error)
	EncodeInterest(it *Interest) ([]byte, error)
	EncodeData(co *ContentObject) ([]byte, error)
}

// TLVCodec is the default Codec implementation.
type TLVCodec struct{}

var _ Codec = TLVCodec{}

type tlvField struct {
	typ ccnname.TLNum
	val []byte
}

func encodeFields(outer ccnname.TLNum, fields []tlvField) []byte {
	inner := 0
	for _, f := range fields {
		inner += f.typ.EncodingLength() + ccnname.TLNum(len(f.val)).EncodingLength() + len(f.val)
	}
	buf := make([]byte, outer.EncodingLength()+ccnname.TLNum(inner).EncodingLength()+inner)
	off := outer.EncodeInto(buf)
	off += ccnname.TLNum(inner).EncodeInto(buf[off:])
	for _, f := range fields {
		off += f.typ.EncodeInto(buf[off:])
		off += ccnname.TLNum(len(f.val)).EncodeInto(buf[off:])
		off += copy(buf[off:], f.val)
	}
	return buf
}

func parseFields(raw []byte) (outer ccnname.TLNum, fields map[ccnname.TLNum][]byte, err error) {
	outer, n, ok := ccnname.ParseTLNum(raw)
	if !ok {
		return 0, nil, fmt.Errorf("%w: truncated outer type", errMalformed)
	}
	raw = raw[n:]
	length, n, ok := ccnname.ParseTLNum(raw)
	if !ok {
		return 0, nil, fmt.Errorf("%w: truncated outer length", errMalformed)
	}
	raw = raw[n:]
	if int(length) > len(raw) {
		return 0, nil, fmt.Errorf("%w: outer length overruns buffer", errMalformed)
	}
	raw = raw[:length]

	fields = make(map[ccnname.TLNum][]byte)
	for len(raw) > 0 {
		typ, n, ok := ccnname.ParseTLNum(raw)
		if !ok {
			return 0, nil, fmt.Errorf("%w: truncated field type", errMalformed)
		}
		raw = raw[n:]
		flen, n, ok := ccnname.ParseTLNum(raw)
		if !ok {
			return 0, nil, fmt.Errorf("%w: truncated field length", errMalformed)
		}
		raw = raw[n:]
		if int(flen) > len(raw) {
			return 0, nil, fmt.Errorf("%w: field length overruns buffer", errMalformed)
		}
		fields[typ] = raw[:flen]
		raw = raw[flen:]
	}
	return outer, fields, nil
}

func varint(v uint64) []byte {
	return ccnname.TLNum(v).Bytes()
}

// EncodeInterest serializes it into the minimal TLV wire form.
func (TLVCodec) EncodeInterest(it *Interest) ([]byte, error) {
	fields := []tlvField{{fieldName, it.Name.Flat()}}
	if v, ok := it.MinSuffixComponents.Get(); ok {
		fields = append(fields, tlvField{fieldMinSuffixComponents, varint(uint64(v))})
	}
	if v, ok := it.MaxSuffixComponents.Get(); ok {
		fields = append(fields, tlvField{fieldMaxSuffixComponents, varint(uint64(v))})
	}
	if len(it.PublisherPublicKeyDigest) > 0 {
		fields = append(fields, tlvField{fieldPublisherDigest, it.PublisherPublicKeyDigest})
	}
	if it.Exclude != nil {
		excl := []tlvField{}
		if it.Exclude.AnyFirst {
			excl = append(excl, tlvField{fieldExcludeAny, nil})
		}
		for _, c := range it.Exclude.Components {
			excl = append(excl, tlvField{ccnname.TypeGenericNameComponent, c.Bytes()})
		}
		// The Exclude value is a flat (type, length, value) sequence with no
		// outer header of its own, the layout DecodeInterest walks.
		var flat []byte
		for _, f := range excl {
			flat = append(flat, f.typ.Bytes()...)
			flat = append(flat, ccnname.TLNum(len(f.val)).Bytes()...)
			flat = append(flat, f.val...)
		}
		fields = append(fields, tlvField{fieldExclude, flat})
	}
	if it.ChildSelector == ChildSelectorRightmost {
		fields = append(fields, tlvField{fieldChildSelector, []byte{1}})
	}
	if it.MustBeFresh {
		fields = append(fields, tlvField{fieldMustBeFresh, nil})
	}
	if v, ok := it.Scope.Get(); ok {
		fields = append(fields, tlvField{fieldScope, varint(uint64(v))})
	}
	fields = append(fields, tlvField{fieldInterestLifetime, varint(uint64(it.InterestLifetime.Milliseconds()))})
	if v, ok := it.Nonce.Get(); ok {
		fields = append(fields, tlvField{fieldNonce, varint(uint64(v))})
	}
	if v, ok := it.FaceID.Get(); ok {
		fields = append(fields, tlvField{fieldFaceID, varint(v)})
	}
	return encodeFields(TypeInterest, fields), nil
}

func decodeVarint(b []byte) uint64 {
	v, _, _ := ccnname.ParseTLNum(b)
	return uint64(v)
}

var errMalformed = fmt.Errorf("malformed wire bytes")

// DecodeInterest parses raw TLV bytes into an Interest.
func (TLVCodec) DecodeInterest(raw []byte) (*Interest, error) {
	outer, fields, err := parseFields(raw)
	if err != nil {
		return nil, err
	}
	if outer != TypeInterest {
		return nil, fmt.Errorf("%w: expected Interest, got type %d", errMalformed, outer)
	}
	nameBytes, ok := fields[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: Interest missing Name", errMalformed)
	}
	name, err := ccnname.ParseName(nameBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}

	it := &Interest{Name: name, Wire: raw}
	if v, ok := fields[fieldMinSuffixComponents]; ok {
		it.MinSuffixComponents = optional.Some(int(decodeVarint(v)))
	}
	if v, ok := fields[fieldMaxSuffixComponents]; ok {
		it.MaxSuffixComponents = optional.Some(int(decodeVarint(v)))
	}
	if v, ok := fields[fieldPublisherDigest]; ok {
		it.PublisherPublicKeyDigest = v
	}
	if v, ok := fields[fieldExclude]; ok {
		// Exclude's value is itself a flat sequence of (type, length, value)
		// fields, not an independent outer TLV, so walk it directly.
		excl := &Exclude{}
		rest := v
		for len(rest) > 0 {
			typ, n, ok := ccnname.ParseTLNum(rest)
			if !ok {
				break
			}
			rest = rest[n:]
			flen, n, ok := ccnname.ParseTLNum(rest)
			if !ok {
				break
			}
			rest = rest[n:]
			val := rest[:flen]
			rest = rest[flen:]
			switch typ {
			case fieldExcludeAny:
				excl.AnyFirst = true
			default:
				c, _, ok := ccnname.ParseComponent(val)
				if ok {
					excl.Components = append(excl.Components, c)
				}
			}
		}
		it.Exclude = excl
	}
	if v, ok := fields[fieldChildSelector]; ok && len(v) > 0 && v[0] == 1 {
		it.ChildSelector = ChildSelectorRightmost
	}
	if _, ok := fields[fieldMustBeFresh]; ok {
		it.MustBeFresh = true
	}
	if v, ok := fields[fieldScope]; ok {
		it.Scope = optional.Some(int(decodeVarint(v)))
	}
	if v, ok := fields[fieldInterestLifetime]; ok {
		it.InterestLifetime = time.Duration(decodeVarint(v)) * time.Millisecond
	}
	if v, ok := fields[fieldNonce]; ok {
		it.Nonce = optional.Some(uint32(decodeVarint(v)))
	}
	if v, ok := fields[fieldFaceID]; ok {
		it.FaceID = optional.Some(decodeVarint(v))
	}
	return it, nil
}

// EncodeData serializes co into TLV bytes and (re)computes its digest.
func (TLVCodec) EncodeData(co *ContentObject) ([]byte, error) {
	fields := []tlvField{
		{fieldName, co.Name.Flat()},
		{fieldContent, co.Content},
	}
	if co.FreshnessPeriod > 0 {
		fields = append(fields, tlvField{fieldFreshnessPeriod, varint(uint64(co.FreshnessPeriod.Milliseconds()))})
	}
	wire := encodeFields(TypeContentObject, fields)
	co.Digest = sha256.Sum256(wire)
	co.Wire = wire
	return wire, nil
}

// DecodeData parses raw TLV bytes into a ContentObject and computes its
// implicit digest over the exact bytes received.
func (TLVCodec) DecodeData(raw []byte) (*ContentObject, error) {
	outer, fields, err := parseFields(raw)
	if err != nil {
		return nil, err
	}
	if outer != TypeContentObject {
		return nil, fmt.Errorf("%w: expected ContentObject, got type %d", errMalformed, outer)
	}
	nameBytes, ok := fields[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: ContentObject missing Name", errMalformed)
	}
	name, err := ccnname.ParseName(nameBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	co := &ContentObject{
		Name:    name,
		Content: fields[fieldContent],
		Wire:    raw,
		Digest:  sha256.Sum256(raw),
	}
	if v, ok := fields[fieldFreshnessPeriod]; ok {
		co.FreshnessPeriod = time.Duration(decodeVarint(v)) * time.Millisecond
	}
	return co, nil
}
