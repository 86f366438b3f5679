package push

import (
	"encoding/base64"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

// expiresMax is the longest a subscription may ask to live without being
// clamped, seven days, matching Stalwart's EXPIRES_MAX constant.
const expiresMax = 7 * 24 * time.Hour

func defaultExpires(now jmaptypes.UTCDate) value.Value {
	return value.Date(now.Add(expiresMax))
}

// validatePushValue enforces the per-property policy of §4.5's table.
// current is nil on create and the loaded object on update; this mirrors
// validate_push_value's Option<&Object<Value>> parameter exactly.
func validatePushValue(property jmaptypes.Property, v value.Value, current *value.Object, now jmaptypes.UTCDate) (value.Value, *jmaperr.SetError) {
	switch property {
	case jmaptypes.PropertyDeviceClientId:
		if current == nil {
			if s, ok := v.AsText(); ok && len(s) < 255 {
				return value.Text(norm.NFC.String(s)), nil
			}
		}
	case jmaptypes.PropertyUrl:
		if current == nil {
			if s, ok := v.AsText(); ok && len(s) < 512 && hasHTTPSPrefix(s) {
				return value.Text(norm.NFC.String(s)), nil
			}
		}
	case jmaptypes.PropertyKeys:
		if v.IsNull() {
			return value.Null(), nil
		}
		if current == nil {
			if obj, ok := v.AsObject(); ok && obj.Len() == 2 && validKeysObject(obj) {
				return v, nil
			}
		}
	case jmaptypes.PropertyExpires:
		if v.IsNull() {
			return defaultExpires(now), nil
		}
		if d, ok := v.AsDate(); ok {
			expires := d.Timestamp()
			currentTime := now.Timestamp()
			if expires > currentTime && expires-currentTime > int64(expiresMax.Seconds()) {
				return defaultExpires(now), nil
			}
			return value.Date(d), nil
		}
	case jmaptypes.PropertyTypes:
		if v.IsNull() {
			return value.Null(), nil
		}
		if list, ok := v.AsList(); ok && allValidTypeStates(list) {
			return v, nil
		}
	case jmaptypes.PropertyVerificationCode:
		if v.IsNull() {
			return value.Null(), nil
		}
		if current != nil {
			if s, ok := v.AsText(); ok {
				stored, storedOK := current.Get(jmaptypes.PropertyValue).AsText()
				if storedOK && stored == s {
					return v, nil
				}
				return value.Value{}, jmaperr.SetInvalidProperties().
					WithProperties(property).
					WithDescription("Verification code does not match.")
			}
		}
	}
	return value.Value{}, jmaperr.SetInvalidProperties().
		WithProperties(property).
		WithDescription("Field could not be set.")
}

func hasHTTPSPrefix(s string) bool {
	const prefix = "https://"
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func validKeysObject(obj *value.Object) bool {
	auth, okAuth := obj.Get(jmaptypes.PropertyAuth).AsText()
	p256dh, okP256dh := obj.Get(jmaptypes.PropertyP256dh).AsText()
	if !okAuth || !okP256dh {
		return false
	}
	if len(auth) >= 1024 || len(p256dh) >= 1024 {
		return false
	}
	return isURLSafeBase64(auth) && isURLSafeBase64(p256dh)
}

func isURLSafeBase64(s string) bool {
	_, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(s)
	if err == nil {
		return true
	}
	_, err = base64.URLEncoding.DecodeString(s)
	return err == nil
}

func allValidTypeStates(list []value.Value) bool {
	for _, item := range list {
		s, ok := item.AsString()
		if !ok {
			return false
		}
		if _, err := jmaptypes.ParseTypeState(s); err != nil {
			return false
		}
	}
	return true
}
