package value

import "github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"

// entry is one (property, value) slot in an Object. Objects are kept as a
// slice, not a map, because insertion order is observable (§3, §8) and
// append() must permit duplicate keys — a plain Go map cannot express
// either requirement.
type entry struct {
	property jmaptypes.Property
	value    Value
}

// Object is an ordered Property -> Value mapping. It lives in this package
// rather than a separate one because Value.Object and Object both need to
// refer to each other, and Go has no forward declarations across packages.
type Object struct {
	entries []entry
}

// NewObject returns an empty Object with room for capacity entries.
func NewObject(capacity int) *Object {
	if capacity < 0 {
		capacity = 0
	}
	return &Object{entries: make([]entry, 0, capacity)}
}

// Len reports the number of entries, including duplicates produced by
// Append.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.entries)
}

// Set stores value under property, overwriting any existing entry for that
// property. It reports whether an existing entry was replaced.
func (o *Object) Set(property jmaptypes.Property, v Value) bool {
	for i := range o.entries {
		if o.entries[i].property == property {
			o.entries[i].value = v
			return true
		}
	}
	o.entries = append(o.entries, entry{property: property, value: v})
	return false
}

// Append adds a new entry for property without checking for duplicates.
// Get() then returns the first match, matching Object semantics from §3.
func (o *Object) Append(property jmaptypes.Property, v Value) {
	o.entries = append(o.entries, entry{property: property, value: v})
}

// Get returns the first value stored under property, or the shared Null
// sentinel if absent. It never fails, even on a nil Object.
func (o *Object) Get(property jmaptypes.Property) Value {
	if o == nil {
		return Null()
	}
	for i := range o.entries {
		if o.entries[i].property == property {
			return o.entries[i].value
		}
	}
	return Null()
}

// Has reports whether property has at least one entry.
func (o *Object) Has(property jmaptypes.Property) bool {
	if o == nil {
		return false
	}
	for i := range o.entries {
		if o.entries[i].property == property {
			return true
		}
	}
	return false
}

// Remove deletes the first entry for property and returns its former value,
// or Null if the property was absent.
func (o *Object) Remove(property jmaptypes.Property) Value {
	for i := range o.entries {
		if o.entries[i].property == property {
			v := o.entries[i].value
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			return v
		}
	}
	return Null()
}

// Properties visits entries in insertion order. The callback must not
// mutate the Object.
func (o *Object) Properties(fn func(property jmaptypes.Property, v Value)) {
	for _, e := range o.entries {
		fn(e.property, e.value)
	}
}

// Clone produces a deep-enough copy for mutation during Set pipelines: the
// entry slice is copied, but Value payloads (which are themselves
// tree-only and never mutated in place by this core) are shared.
func (o *Object) Clone() *Object {
	if o == nil {
		return NewObject(0)
	}
	clone := &Object{entries: make([]entry, len(o.entries))}
	copy(clone.entries, o.entries)
	return clone
}
