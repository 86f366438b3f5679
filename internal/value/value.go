// Package value implements the JMAP dynamic object model: the tagged
// Value sum type (§3), the insertion-ordered Object it nests inside, and
// the self-describing binary codec (§4.1) that is the on-disk
// representation for every mutable JMAP object this core persists.
package value

import "github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"

// Kind discriminates the closed set of Value variants. The encoder's
// switch over Kind panics in its default case, so a new variant added here
// without updating the codec fails loudly instead of silently
// mis-encoding; Equal and Indexable return false for an unknown Kind.
type Kind uint8

// The Value variants, per §3. These are distinct from the wire tag bytes
// in tags.go — Kind is the in-memory discriminant, tag bytes are the
// frozen on-disk encoding.
const (
	KindNull Kind = iota
	KindBool
	KindUnsignedInt
	KindText
	KindId
	KindDate
	KindBlobId
	KindBlob
	KindKeyword
	KindList
	KindObject
)

// Value is a tagged sum over Null, Bool, UnsignedInt, Text, Id, Date,
// BlobId, Blob, Keyword, List and Object. Construction is tree-only: List
// and Object variants are built from already-constructed Values, so there
// is no way to introduce a cycle through this package's API (§3, §9).
type Value struct {
	kind   Kind
	b      bool
	u      uint64
	i      int64
	s      string
	blob   []byte
	blobID jmaptypes.BlobId
	kw     jmaptypes.Keyword
	list   []Value
	object *Object
}

var sharedNull = Value{kind: KindNull}

// Null returns the shared Null value. Per §9, returning a shared sentinel
// is purely an allocation optimization; callers must treat it as an
// ordinary immutable value.
func Null() Value { return sharedNull }

// Bool constructs a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// UnsignedInt constructs an UnsignedInt value.
func UnsignedInt(u uint64) Value { return Value{kind: KindUnsignedInt, u: u} }

// Text constructs a Text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// IdValue constructs an Id value.
func IdValue(id jmaptypes.Id) Value { return Value{kind: KindId, u: uint64(id)} }

// Date constructs a Date value from a UTCDate.
func Date(d jmaptypes.UTCDate) Value { return Value{kind: KindDate, i: d.Timestamp()} }

// BlobIdValue constructs a BlobId value.
func BlobIdValue(id jmaptypes.BlobId) Value { return Value{kind: KindBlobId, blobID: id} }

// Blob constructs a Blob value from raw bytes.
func Blob(b []byte) Value { return Value{kind: KindBlob, blob: b} }

// KeywordValue constructs a Keyword value.
func KeywordValue(k jmaptypes.Keyword) Value { return Value{kind: KindKeyword, kw: k} }

// List constructs a List value. items is copied defensively so later
// mutation of the caller's slice cannot alias into the tree.
func List(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// ObjectValue constructs an Object value. obj must not be reachable from
// any other Value tree (§3: no aliasing).
func ObjectValue(obj *Object) Value { return Value{kind: KindObject, object: obj} }

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsUnsignedInt returns the payload and whether v is an UnsignedInt.
func (v Value) AsUnsignedInt() (uint64, bool) { return v.u, v.kind == KindUnsignedInt }

// AsText returns the payload and whether v is Text.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// AsId returns the payload and whether v is an Id.
func (v Value) AsId() (jmaptypes.Id, bool) { return jmaptypes.Id(v.u), v.kind == KindId }

// AsDate returns the payload and whether v is a Date.
func (v Value) AsDate() (jmaptypes.UTCDate, bool) {
	return jmaptypes.UTCDateFromTimestamp(v.i), v.kind == KindDate
}

// AsBlobId returns the payload and whether v is a BlobId.
func (v Value) AsBlobId() (jmaptypes.BlobId, bool) { return v.blobID, v.kind == KindBlobId }

// AsBlob returns the payload and whether v is a Blob.
func (v Value) AsBlob() ([]byte, bool) { return v.blob, v.kind == KindBlob }

// AsKeyword returns the payload and whether v is a Keyword.
func (v Value) AsKeyword() (jmaptypes.Keyword, bool) { return v.kw, v.kind == KindKeyword }

// AsList returns the payload and whether v is a List.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsObject returns the payload and whether v is an Object.
func (v Value) AsObject() (*Object, bool) { return v.object, v.kind == KindObject }

// AsString is a convenience used by validation code that accepts both Text
// and Keyword as string-shaped values (mirrors Stalwart's
// `Value::as_string`, used by the Types property check in the push
// exemplar).
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindText:
		return v.s, true
	case KindKeyword:
		return string(v.kw), true
	default:
		return "", false
	}
}

// Indexable reports whether the storage layer's secondary-index bitmaps
// (an external collaborator, §1) could carry this value. Stalwart's
// ToBitmaps implementation only indexes Text, Keyword, UnsignedInt and
// List-of-those; everything else — including Object — is unreachable
// there. This core surfaces the same case split so storage adapters do not
// have to re-derive it.
func (v Value) Indexable() bool {
	switch v.kind {
	case KindText, KindKeyword, KindUnsignedInt:
		return true
	case KindList:
		for _, item := range v.list {
			switch item.kind {
			case KindText, KindKeyword, KindUnsignedInt:
			default:
				return false
			}
		}
		return len(v.list) > 0
	default:
		return false
	}
}

// Equal reports deep structural equality, used by the codec round-trip
// tests (§8).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindUnsignedInt:
		return a.u == b.u
	case KindText:
		return a.s == b.s
	case KindId:
		return a.u == b.u
	case KindDate:
		return a.i == b.i
	case KindBlobId:
		return string(a.blobID) == string(b.blobID)
	case KindBlob:
		return string(a.blob) == string(b.blob)
	case KindKeyword:
		return a.kw == b.kw
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return objectsEqual(a.object, b.object)
	default:
		return false
	}
}

func objectsEqual(a, b *Object) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.entries {
		if a.entries[i].property != b.entries[i].property {
			return false
		}
		if !Equal(a.entries[i].value, b.entries[i].value) {
			return false
		}
	}
	return true
}
