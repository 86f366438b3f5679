// Package jmaptypes provides the closed, wire-stable scalar types that make
// up a JMAP Value: Property, Id, BlobId, Keyword and UTCDate.
package jmaptypes

// Property is a well-known JMAP property name. Every variant serializes to
// the small integer returned by FieldTag, and that mapping must never be
// reassigned once shipped (see internal/value for the codec that relies on
// it).
type Property uint8

// The well-known properties exercised by the push-subscription exemplar and
// the object model in general. PropertyOther is the escape hatch for
// extension properties and mail headers that this core does not need to
// name individually.
const (
	PropertyID Property = iota
	PropertyAccountID
	PropertyDeviceClientId
	PropertyUrl
	PropertyKeys
	PropertyExpires
	PropertyTypes
	PropertyVerificationCode
	PropertyValue
	PropertyAuth
	PropertyP256dh
	// PropertyResultOf, PropertyName and PropertyPath are the three keys of
	// the result-reference marker object (§4.2.2), not a persisted JMAP
	// object property; they share this enum purely so the reference
	// resolver can use the same Object type as everything else.
	PropertyResultOf
	PropertyName
	PropertyPath
	// PropertyFromAccountID is Email/copy's source-account argument
	// (§4.4's dual access check), distinct from PropertyAccountID (the
	// destination account every other call uses).
	PropertyFromAccountID
	PropertyOther
)

var propertyNames = map[Property]string{
	PropertyID:               "id",
	PropertyAccountID:        "accountId",
	PropertyDeviceClientId:   "deviceClientId",
	PropertyUrl:              "url",
	PropertyKeys:             "keys",
	PropertyExpires:          "expires",
	PropertyTypes:            "types",
	PropertyVerificationCode: "verificationCode",
	PropertyValue:            "value",
	PropertyAuth:             "auth",
	PropertyP256dh:           "p256dh",
	PropertyResultOf:         "resultOf",
	PropertyName:             "name",
	PropertyPath:             "path",
	PropertyFromAccountID:    "fromAccountId",
	PropertyOther:            "",
}

var propertyByName = func() map[string]Property {
	m := make(map[string]Property, len(propertyNames))
	for p, name := range propertyNames {
		if p != PropertyOther {
			m[name] = p
		}
	}
	return m
}()

// String returns the JMAP wire name for the property.
func (p Property) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return "other"
}

// FieldTag returns the frozen small-integer tag used by the codec (§4.1)
// when serializing an Object entry's key. This mirrors Stalwart's
// `From<Property> for ValueClass`: every property maps to a fixed field.
func (p Property) FieldTag() uint8 {
	return uint8(p)
}

// PropertyFromTag reverses FieldTag. Unknown tags map to PropertyOther
// rather than failing, since extension properties use the same escape
// hatch on the wire.
func PropertyFromTag(tag uint8) Property {
	if _, ok := propertyNames[Property(tag)]; ok {
		return Property(tag)
	}
	return PropertyOther
}

// PropertyFromName looks up a Property by its JMAP wire name. Unknown names
// return PropertyOther, never an error — the object model never fails to
// construct.
func PropertyFromName(name string) Property {
	if p, ok := propertyByName[name]; ok {
		return p
	}
	return PropertyOther
}
