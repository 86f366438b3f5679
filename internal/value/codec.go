package value

import (
	"errors"
	"unicode/utf8"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
)

// errUnknownTag is returned when a byte does not match any frozen tag in
// tags.go. errInvalidUTF8 is returned when a TEXT payload is not valid
// UTF-8, per §4.1's decode-failure list.
var (
	errUnknownTag  = errors.New("value: unknown tag byte")
	errInvalidUTF8 = errors.New("value: invalid utf-8 in text payload")
)

func propertyFromTag(tag byte) jmaptypes.Property {
	return jmaptypes.PropertyFromTag(tag)
}

// Encode serializes v into the self-describing binary form (§4.1).
func Encode(v Value) []byte {
	buf := make([]byte, 0, 1024)
	return encodeInto(buf, v)
}

// EncodeObject serializes an Object the same way a Value::Object's payload
// is serialized, without the leading OBJECT tag byte — this is the shape
// persisted directly under a storage property slot (§6, §4.5).
func EncodeObject(o *Object) []byte {
	buf := make([]byte, 0, 1024)
	return encodeObjectInto(buf, o)
}

func encodeInto(buf []byte, v Value) []byte {
	switch v.kind {
	case KindText:
		buf = append(buf, tagText)
		buf = encodeText(buf, v.s)
	case KindUnsignedInt:
		buf = append(buf, tagUnsignedInt)
		buf = pushLeb128(buf, v.u)
	case KindBool:
		if v.b {
			buf = append(buf, tagBoolTrue)
		} else {
			buf = append(buf, tagBoolFalse)
		}
	case KindId:
		buf = append(buf, tagId)
		buf = pushLeb128(buf, v.u)
	case KindDate:
		buf = append(buf, tagDate)
		buf = pushLeb128(buf, uint64(v.i))
	case KindBlobId:
		buf = append(buf, tagBlobId)
		buf = pushLeb128(buf, uint64(len(v.blobID)))
		buf = append(buf, v.blobID...)
	case KindBlob:
		buf = append(buf, tagBlob)
		buf = pushLeb128(buf, uint64(len(v.blob)))
		buf = append(buf, v.blob...)
	case KindKeyword:
		buf = append(buf, tagKeyword)
		buf = encodeText(buf, string(v.kw))
	case KindList:
		buf = append(buf, tagList)
		buf = pushLeb128(buf, uint64(len(v.list)))
		for _, item := range v.list {
			buf = encodeInto(buf, item)
		}
	case KindObject:
		buf = append(buf, tagObject)
		buf = encodeObjectInto(buf, v.object)
	case KindNull:
		buf = append(buf, tagNull)
	default:
		panic("value: unknown Kind in encodeInto")
	}
	return buf
}

func encodeText(buf []byte, s string) []byte {
	buf = pushLeb128(buf, uint64(len(s)))
	return append(buf, s...)
}

func encodeObjectInto(buf []byte, o *Object) []byte {
	buf = pushLeb128(buf, uint64(o.Len()))
	for _, e := range o.entries {
		buf = append(buf, e.property.FieldTag())
		buf = encodeInto(buf, e.value)
	}
	return buf
}

// Decode parses the leading Value from data. It does not require the
// input to be fully consumed — trailing bytes are ignored, per §4.1.
// DecodeObject ignores trailing bytes in the same way, and neither
// function reports how many bytes it read.
//
// Decode fails (ok == false) on an unknown tag byte, truncated input, a
// LEB128 value that overflows 64 bits, invalid UTF-8 in a Text payload, or
// recursion beyond maxDecodeDepth.
func Decode(data []byte) (Value, bool) {
	c := &cursor{buf: data}
	v, err := decodeValue(c, 0)
	return v, err == nil
}

// DecodeObject parses an Object payload of the shape produced by
// EncodeObject (no leading OBJECT tag).
func DecodeObject(data []byte) (*Object, bool) {
	c := &cursor{buf: data}
	o, err := decodeObject(c, 0)
	return o, err == nil
}

func decodeValue(c *cursor, depth int) (Value, error) {
	if depth > maxDecodeDepth {
		return Value{}, errTruncated
	}
	tag, ok := c.next()
	if !ok {
		return Value{}, errTruncated
	}
	switch tag {
	case tagText:
		s, err := decodeText(c)
		if err != nil {
			return Value{}, err
		}
		return Text(s), nil
	case tagUnsignedInt:
		u, err := c.nextLeb128()
		if err != nil {
			return Value{}, err
		}
		return UnsignedInt(u), nil
	case tagBoolTrue:
		return Bool(true), nil
	case tagBoolFalse:
		return Bool(false), nil
	case tagId:
		u, err := c.nextLeb128()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindId, u: u}, nil
	case tagDate:
		u, err := c.nextLeb128()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindDate, i: int64(u)}, nil
	case tagBlobId:
		n, err := c.nextLeb128()
		if err != nil {
			return Value{}, err
		}
		b, ok := c.take(int(n))
		if !ok {
			return Value{}, errTruncated
		}
		blobID := make([]byte, len(b))
		copy(blobID, b)
		return Value{kind: KindBlobId, blobID: blobID}, nil
	case tagBlob:
		n, err := c.nextLeb128()
		if err != nil {
			return Value{}, err
		}
		b, ok := c.take(int(n))
		if !ok {
			return Value{}, errTruncated
		}
		blob := make([]byte, len(b))
		copy(blob, b)
		return Value{kind: KindBlob, blob: blob}, nil
	case tagKeyword:
		s, err := decodeText(c)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindKeyword, kw: jmaptypes.Keyword(s)}, nil
	case tagList:
		n, err := c.nextLeb128()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := decodeValue(c, depth+1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{kind: KindList, list: items}, nil
	case tagObject:
		o, err := decodeObject(c, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindObject, object: o}, nil
	case tagNull:
		return Null(), nil
	default:
		return Value{}, errUnknownTag
	}
}

func decodeText(c *cursor) (string, error) {
	n, err := c.nextLeb128()
	if err != nil {
		return "", err
	}
	b, ok := c.take(int(n))
	if !ok {
		return "", errTruncated
	}
	if !utf8.Valid(b) {
		return "", errInvalidUTF8
	}
	return string(b), nil
}

func decodeObject(c *cursor, depth int) (*Object, error) {
	if depth > maxDecodeDepth {
		return nil, errTruncated
	}
	n, err := c.nextLeb128()
	if err != nil {
		return nil, err
	}
	o := NewObject(int(n))
	for i := uint64(0); i < n; i++ {
		tag, ok := c.next()
		if !ok {
			return nil, errTruncated
		}
		prop := propertyFromTag(tag)
		v, err := decodeValue(c, depth+1)
		if err != nil {
			return nil, err
		}
		o.Append(prop, v)
	}
	return o, nil
}
