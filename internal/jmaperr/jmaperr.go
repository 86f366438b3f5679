// Package jmaperr defines the three error classes this core raises (§7):
// RequestError aborts the whole request, MethodError replaces one call's
// response entry, and SetError is accumulated per-item inside a
// successful Set response's notCreated/notUpdated/notDestroyed maps.
package jmaperr

import "github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"

// RequestErrorType enumerates the malformed-envelope/quota failures that
// abort an entire request before the batch evaluator runs.
type RequestErrorType string

const (
	RequestErrorNotRequest        RequestErrorType = "urn:ietf:params:jmap:error:notRequest"
	RequestErrorUnknownCapability RequestErrorType = "urn:ietf:params:jmap:error:unknownCapability"
	RequestErrorLimit             RequestErrorType = "urn:ietf:params:jmap:error:limit"
)

// RequestError aborts request processing; no partial response is returned.
type RequestError struct {
	Type        RequestErrorType
	Status      int
	Description string
}

func (e *RequestError) Error() string { return string(e.Type) + ": " + e.Description }

func NewRequestError(t RequestErrorType, status int, description string) *RequestError {
	return &RequestError{Type: t, Status: status, Description: description}
}

// MethodErrorType enumerates the method-level failures of §7 and §4.2-4.4.
type MethodErrorType string

const (
	MethodErrorForbidden              MethodErrorType = "forbidden"
	MethodErrorNotFound               MethodErrorType = "notFound"
	MethodErrorInvalidArguments       MethodErrorType = "invalidArguments"
	MethodErrorInvalidResultReference MethodErrorType = "invalidResultReference"
	MethodErrorServerFail             MethodErrorType = "serverFail"
	MethodErrorUnknownMethod          MethodErrorType = "unknownMethod"
)

// MethodError replaces a single call's response entry; evaluation of the
// rest of the batch continues unaffected (§4.3 step 3, §7).
type MethodError struct {
	Type        MethodErrorType
	Description string
}

func (e *MethodError) Error() string { return string(e.Type) + ": " + e.Description }

func NewMethodError(t MethodErrorType, description string) *MethodError {
	return &MethodError{Type: t, Description: description}
}

func Forbidden(description string) *MethodError {
	return NewMethodError(MethodErrorForbidden, description)
}

func InvalidResultReference(description string) *MethodError {
	return NewMethodError(MethodErrorInvalidResultReference, description)
}

func ServerFail(description string) *MethodError {
	return NewMethodError(MethodErrorServerFail, description)
}

// SetErrorType enumerates the per-item rejection reasons of §4.5's Set
// pipeline and the generic Set contract.
type SetErrorType string

const (
	SetErrorForbidden         SetErrorType = "forbidden"
	SetErrorNotFound          SetErrorType = "notFound"
	SetErrorInvalidProperties SetErrorType = "invalidProperties"
	SetErrorWillDestroy       SetErrorType = "willDestroy"
	SetErrorServerFail        SetErrorType = "serverFail"
)

// SetError is one entry of a Set response's notCreated/notUpdated/
// notDestroyed map. It is built with a fluent style mirroring Stalwart's
// `SetError::forbidden().with_description(...)` chain.
type SetError struct {
	Type        SetErrorType
	Description string
	Properties  []jmaptypes.Property
}

func newSetError(t SetErrorType) *SetError {
	return &SetError{Type: t}
}

// WithDescription sets the human-readable description and returns the
// receiver, chainable per the builder style above.
func (e *SetError) WithDescription(description string) *SetError {
	e.Description = description
	return e
}

// WithProperties names the properties implicated by an invalidProperties
// rejection and returns the receiver.
func (e *SetError) WithProperties(properties ...jmaptypes.Property) *SetError {
	e.Properties = properties
	return e
}

func (e *SetError) Error() string { return string(e.Type) + ": " + e.Description }

func SetForbidden() *SetError { return newSetError(SetErrorForbidden) }

func SetNotFound() *SetError { return newSetError(SetErrorNotFound) }

func SetInvalidProperties() *SetError { return newSetError(SetErrorInvalidProperties) }

func SetWillDestroy() *SetError { return newSetError(SetErrorWillDestroy) }

func SetServerFail() *SetError { return newSetError(SetErrorServerFail) }
