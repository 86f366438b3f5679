// Package wire converts between the JSON shapes a JMAP transport carries
// (a decoded HTTP body, a proxied Lambda's response payload) and this
// core's typed Value/Object model. The on-wire JSON schema itself is out
// of scope as a modeled capability — this package is the thin, ambient
// bridge every ingress point and proxy response needs regardless, the Go
// equivalent of the raw map[string]any handling in
// other_examples/.../cmd-jmap-api-main.go.go, adapted to decode into
// typed Values rather than leaving everything as interface{}.
package wire

import (
	"strconv"
	"time"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

// idProperties decode as a JMAP Id (a base-10 string on the wire) rather
// than plain text.
var idProperties = map[jmaptypes.Property]bool{
	jmaptypes.PropertyID:            true,
	jmaptypes.PropertyAccountID:     true,
	jmaptypes.PropertyFromAccountID: true,
}

// ParseID parses the base-10 string form jmaptypes.Id.String produces.
func ParseID(s string) (jmaptypes.Id, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return jmaptypes.NewId(v), true
}

// DecodeObject converts a JSON object (as encoding/json.Unmarshal decodes
// it into map[string]interface{}) into an Object, keying each entry by
// its well-known Property where one exists and PropertyOther otherwise.
func DecodeObject(raw map[string]any) *value.Object {
	obj := value.NewObject(len(raw))
	for key, v := range raw {
		property := jmaptypes.PropertyFromName(key)
		obj.Append(property, DecodeValue(property, v))
	}
	return obj
}

// DecodeValue converts one decoded JSON value into a Value, consulting
// property only to pick the Id/Date special cases §4.5's property table
// requires; everything else decodes structurally.
func DecodeValue(property jmaptypes.Property, raw any) value.Value {
	switch t := raw.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(t)
	case string:
		if idProperties[property] {
			if id, ok := ParseID(t); ok {
				return value.IdValue(id)
			}
		}
		if property == jmaptypes.PropertyExpires {
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return value.Date(jmaptypes.UTCDateFromTimestamp(parsed.Unix()))
			}
		}
		return value.Text(t)
	case float64:
		if t >= 0 {
			return value.UnsignedInt(uint64(t))
		}
		return value.Text(strconv.FormatFloat(t, 'f', -1, 64))
	case []any:
		items := make([]value.Value, len(t))
		for i, item := range t {
			items[i] = DecodeValue(jmaptypes.PropertyOther, item)
		}
		return value.List(items)
	case map[string]any:
		return value.ObjectValue(DecodeObject(t))
	default:
		return value.Null()
	}
}

// DecodeIDKeyedObjects converts a JSON object keyed by JMAP Id strings
// (the "update" section of a Set call) into an Id-keyed map of decoded
// Objects. Keys that are not valid Ids are skipped; the Set pipeline
// would reject them as notFound in any case since no such document-id
// will exist.
func DecodeIDKeyedObjects(raw map[string]any) map[jmaptypes.Id]*value.Object {
	out := make(map[jmaptypes.Id]*value.Object, len(raw))
	for key, v := range raw {
		id, ok := ParseID(key)
		if !ok {
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out[id] = DecodeObject(obj)
	}
	return out
}

// EncodeObject is DecodeObject's inverse, for rendering an Object back
// into the plain map[string]interface{} shape encoding/json.Marshal
// expects.
func EncodeObject(obj *value.Object) map[string]any {
	if obj == nil {
		return map[string]any{}
	}
	out := make(map[string]any, obj.Len())
	obj.Properties(func(property jmaptypes.Property, v value.Value) {
		out[property.String()] = EncodeValue(v)
	})
	return out
}

// EncodeValue is DecodeValue's inverse.
func EncodeValue(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindUnsignedInt:
		u, _ := v.AsUnsignedInt()
		return u
	case value.KindText:
		s, _ := v.AsText()
		return s
	case value.KindKeyword:
		k, _ := v.AsKeyword()
		return string(k)
	case value.KindId:
		id, _ := v.AsId()
		return id.String()
	case value.KindDate:
		d, _ := v.AsDate()
		return d.Time().Format(time.RFC3339)
	case value.KindBlobId:
		b, _ := v.AsBlobId()
		return string(b)
	case value.KindBlob:
		b, _ := v.AsBlob()
		return b
	case value.KindList:
		items, _ := v.AsList()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = EncodeValue(item)
		}
		return out
	case value.KindObject:
		obj, _ := v.AsObject()
		return EncodeObject(obj)
	default:
		return nil
	}
}
