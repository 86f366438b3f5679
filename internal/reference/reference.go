// Package reference resolves the two reference forms embedded in a call's
// arguments before dispatch (§4.2): created-id references (the string
// "#alias") and result references (an object shaped
// {resultOf, name, path}). Resolution is eager and per-call, never lazy.
package reference

import (
	"strings"

	"github.com/qri-io/jsonpointer"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/response"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

const resultReferenceAliasPrefix = "#"

// Lookup is the subset of response state the resolver needs: created-ids
// and prior entries, both owned by the evaluator (§5's single-writer
// rule) and read-only from here.
type Lookup interface {
	ResolveCreatedID(localID string) (jmaptypes.Id, bool)
	EntryFor(callID, methodName string) (response.Entry, bool)
}

// Resolve walks args and returns a copy with every embedded reference
// replaced by its concrete value. It fails closed: any unresolved or
// malformed reference anywhere in the tree yields invalidResultReference
// for the whole call, matching §4.2's "the call is replaced with an error
// entry" behavior.
func Resolve(args *value.Object, lookup Lookup) (*value.Object, *jmaperr.MethodError) {
	resolved := value.NewObject(args.Len())
	var resolveErr *jmaperr.MethodError
	args.Properties(func(p jmaptypes.Property, v value.Value) {
		if resolveErr != nil {
			return
		}
		rv, err := resolveValue(v, lookup)
		if err != nil {
			resolveErr = err
			return
		}
		resolved.Append(p, rv)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return resolved, nil
}

// ResolveValue resolves references embedded in a single value, for
// pipelines (such as the push Set exemplar, §4.5) that evaluate
// references per-property against the in-progress response rather than
// over a whole call's argument object at once.
func ResolveValue(v value.Value, lookup Lookup) (value.Value, *jmaperr.MethodError) {
	return resolveValue(v, lookup)
}

func resolveValue(v value.Value, lookup Lookup) (value.Value, *jmaperr.MethodError) {
	switch v.Kind() {
	case value.KindText:
		s, _ := v.AsText()
		if strings.HasPrefix(s, resultReferenceAliasPrefix) {
			return resolveCreatedIDReference(s, lookup)
		}
		return v, nil
	case value.KindList:
		items, _ := v.AsList()
		resolvedItems := make([]value.Value, len(items))
		for i, item := range items {
			rv, err := resolveValue(item, lookup)
			if err != nil {
				return value.Value{}, err
			}
			resolvedItems[i] = rv
		}
		return value.List(resolvedItems), nil
	case value.KindObject:
		obj, _ := v.AsObject()
		if isResultReferenceShape(obj) {
			return resolveResultReference(obj, lookup)
		}
		resolved, err := Resolve(obj, lookup)
		if err != nil {
			return value.Value{}, err
		}
		return value.ObjectValue(resolved), nil
	default:
		return v, nil
	}
}

// isResultReferenceShape reports whether obj is exactly a
// {resultOf, name, path} result-reference marker (§4.2.2).
func isResultReferenceShape(obj *value.Object) bool {
	return obj.Len() == 3 &&
		obj.Has(jmaptypes.PropertyResultOf) &&
		obj.Has(jmaptypes.PropertyName) &&
		obj.Has(jmaptypes.PropertyPath)
}

func resolveCreatedIDReference(s string, lookup Lookup) (value.Value, *jmaperr.MethodError) {
	alias := strings.TrimPrefix(s, resultReferenceAliasPrefix)
	id, ok := lookup.ResolveCreatedID(alias)
	if !ok {
		return value.Value{}, jmaperr.InvalidResultReference("unknown created-id alias: " + alias)
	}
	return value.IdValue(id), nil
}

func resolveResultReference(obj *value.Object, lookup Lookup) (value.Value, *jmaperr.MethodError) {
	resultOf, ok := obj.Get(jmaptypes.PropertyResultOf).AsText()
	if !ok {
		return value.Value{}, jmaperr.InvalidResultReference("resultOf must be a string")
	}
	name, ok := obj.Get(jmaptypes.PropertyName).AsText()
	if !ok {
		return value.Value{}, jmaperr.InvalidResultReference("name must be a string")
	}
	path, ok := obj.Get(jmaptypes.PropertyPath).AsText()
	if !ok {
		return value.Value{}, jmaperr.InvalidResultReference("path must be a string")
	}

	entry, ok := lookup.EntryFor(resultOf, name)
	if !ok || entry.Error != nil || entry.Result == nil {
		return value.Value{}, jmaperr.InvalidResultReference(
			"no prior response for resultOf=" + resultOf + " name=" + name)
	}

	document := toInterface(value.ObjectValue(entry.Result))
	ptr, err := jsonpointer.Parse(path)
	if err != nil {
		return value.Value{}, jmaperr.InvalidResultReference("malformed path: " + path)
	}
	evaluated, err := ptr.Eval(document)
	if err != nil {
		return value.Value{}, jmaperr.InvalidResultReference("path evaluation failed: " + path)
	}

	resolved, ok := fromInterface(evaluated)
	if !ok {
		return value.Value{}, jmaperr.InvalidResultReference("path resolved to an unrepresentable value: " + path)
	}
	return resolved, nil
}

// toInterface flattens a Value tree into plain Go values (map, slice,
// string, uint64, int64, bool, nil) so github.com/qri-io/jsonpointer can
// walk it the same way it would walk a json.Unmarshal result.
func toInterface(v value.Value) interface{} {
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
		return d.Timestamp()
	case value.KindBlobId:
		b, _ := v.AsBlobId()
		return string(b)
	case value.KindBlob:
		b, _ := v.AsBlob()
		return b
	case value.KindList:
		items, _ := v.AsList()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toInterface(item)
		}
		return out
	case value.KindObject:
		obj, _ := v.AsObject()
		out := make(map[string]interface{}, obj.Len())
		obj.Properties(func(p jmaptypes.Property, pv value.Value) {
			out[p.String()] = toInterface(pv)
		})
		return out
	default:
		return nil
	}
}

// fromInterface converts a jsonpointer.Eval result back into a Value.
// Only the shapes toInterface can produce are accepted.
func fromInterface(i interface{}) (value.Value, bool) {
	switch t := i.(type) {
	case nil:
		return value.Null(), true
	case bool:
		return value.Bool(t), true
	case uint64:
		return value.UnsignedInt(t), true
	case int64:
		return value.UnsignedInt(uint64(t)), true
	case string:
		return value.Text(t), true
	case []byte:
		return value.Blob(t), true
	case []interface{}:
		items := make([]value.Value, 0, len(t))
		for _, item := range t {
			rv, ok := fromInterface(item)
			if !ok {
				return value.Value{}, false
			}
			items = append(items, rv)
		}
		return value.List(items), true
	case map[string]interface{}:
		obj := value.NewObject(len(t))
		for k, item := range t {
			rv, ok := fromInterface(item)
			if !ok {
				return value.Value{}, false
			}
			obj.Append(jmaptypes.PropertyFromName(k), rv)
		}
		return value.ObjectValue(obj), true
	default:
		return value.Value{}, false
	}
}
