// Package dispatch implements the typed method-kind/data-type access
// control table and handler lookup of §4.4: given one already
// reference-resolved Call, decide whether the caller's AccessToken may
// perform it, then hand it to whichever Handler owns that method name.
package dispatch

import (
	"context"
	"strings"

	"github.com/jarrod-lowe/jmap-service-core/internal/auth"
	"github.com/jarrod-lowe/jmap-service-core/internal/broadcast"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/reference"
	"github.com/jarrod-lowe/jmap-service-core/internal/request"
	"github.com/jarrod-lowe/jmap-service-core/internal/response"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

// dataType is the JMAP data type a method name's "Foo/" prefix names.
type dataType string

const (
	dataTypeEmail            dataType = "Email"
	dataTypeMailbox          dataType = "Mailbox"
	dataTypeThread           dataType = "Thread"
	dataTypeSearchSnippet    dataType = "SearchSnippet"
	dataTypeBlob             dataType = "Blob"
	dataTypeIdentity         dataType = "Identity"
	dataTypeEmailSubmission  dataType = "EmailSubmission"
	dataTypePushSubscription dataType = "PushSubscription"
	dataTypeSieveScript      dataType = "SieveScript"
	dataTypeVacationResponse dataType = "VacationResponse"
	dataTypePrincipal        dataType = "Principal"
	dataTypeCore             dataType = "Core"
)

func dataTypeOf(methodName string) dataType {
	if idx := strings.IndexByte(methodName, '/'); idx >= 0 {
		return dataType(methodName[:idx])
	}
	return dataType(methodName)
}

// accessRule is the per-data-type check handle_method_call applies before
// dispatch (§4.4).
type accessRule int

const (
	// ruleHasAccess requires AssertHasAccess(account, collection):
	// Email and Mailbox, plus every Email-adjacent method (CopyBlob,
	// ImportEmail, ParseEmail, SearchSnippet) and Thread (scoped to the
	// Email collection it belongs to).
	ruleHasAccess accessRule = iota
	// ruleIsMember requires AssertIsMember(account): Identity,
	// EmailSubmission, SieveScript, VacationResponse.
	ruleIsMember
	// rulePrincipal requires the server's principal-lookup config flag
	// or super-user status.
	rulePrincipal
	// ruleNone performs no per-account assertion: PushSubscription is
	// scoped to the token's own primary account intrinsically (§6), and
	// Core/echo is the identity method.
	ruleNone
)

var accessRules = map[dataType]accessRule{
	dataTypeEmail:            ruleHasAccess,
	dataTypeMailbox:          ruleHasAccess,
	dataTypeThread:           ruleHasAccess,
	dataTypeSearchSnippet:    ruleHasAccess,
	dataTypeBlob:             ruleHasAccess,
	dataTypeIdentity:         ruleIsMember,
	dataTypeEmailSubmission:  ruleIsMember,
	dataTypeSieveScript:      ruleIsMember,
	dataTypeVacationResponse: ruleIsMember,
	dataTypePrincipal:        rulePrincipal,
	dataTypePushSubscription: ruleNone,
	dataTypeCore:             ruleNone,
}

// collectionFor names the storage collection AssertHasAccess checks,
// which for Thread, SearchSnippet and Blob (Blob/copy) is Email's: none of
// them is a collection of its own (a thread is a view over its messages,
// matching Stalwart's Thread/get check).
func collectionFor(dt dataType) string {
	if dt == dataTypeThread || dt == dataTypeSearchSnippet || dt == dataTypeBlob {
		return string(dataTypeEmail)
	}
	return string(dt)
}

// Result is one call's outcome, ready for the batch evaluator to append
// (§4.3): the wire result (Object for Get/Query/Echo/proxied calls, Set
// for Set-kind calls — response.SetOutcome, reused here rather than
// duplicated, since both the evaluator's response and this package need
// the identical shape), any newly created local-id mappings (merged into
// the response only when the request echoes created ids), and an
// optional follow-up call to run next with the same response slot.
// StateChange, when a Handler's write produced one, is forwarded to the
// evaluator's Broadcaster in handler-completion order (§4.3 step 2c,
// §4.6); a Handler that never changes subscribable state (the
// PushSubscription exemplar) leaves it nil.
type Result struct {
	MethodName  string
	Object      *value.Object
	Set         *response.SetOutcome
	CreatedIDs  map[string]jmaptypes.Id
	FollowUp    *request.Call
	StateChange *broadcast.StateChange
}

// Handler executes one already access-checked call.
type Handler interface {
	Handle(ctx context.Context, account jmaptypes.Id, call request.Call, lookup reference.Lookup) (*Result, *jmaperr.MethodError)
}

// Dispatcher routes a Call to its Handler after enforcing §4.4's access
// rules. Handlers is keyed by exact method name ("PushSubscription/set");
// Fallback, when set, receives every method name Handlers does not name —
// in this core that is the LambdaMethodInvoker proxying to the remaining
// per-method functions the exemplar does not implement locally.
type Dispatcher struct {
	Handlers                map[string]Handler
	Fallback                Handler
	PrincipalLookupsAllowed bool
}

// Dispatch enforces access control for call against token, then invokes
// the matching Handler. account is resolved from call.Arguments'
// accountId property, except for PushSubscription, which is always
// scoped to the token's own primary account (§6) regardless of any
// accountId the client supplied.
func (d *Dispatcher) Dispatch(ctx context.Context, call request.Call, token auth.AccessToken, lookup reference.Lookup) (*Result, *jmaperr.MethodError) {
	if call.MethodName == "Core/echo" {
		return &Result{MethodName: call.MethodName, Object: call.Arguments}, nil
	}

	dt := dataTypeOf(call.MethodName)

	var account jmaptypes.Id
	if dt == dataTypePushSubscription {
		account = token.PrimaryID()
	} else if id, ok := call.Arguments.Get(jmaptypes.PropertyAccountID).AsId(); ok {
		account = id
	} else {
		return nil, jmaperr.NewMethodError(jmaperr.MethodErrorInvalidArguments, "accountId is required")
	}

	if call.MethodName == "Email/copy" {
		fromAccount, ok := call.Arguments.Get(jmaptypes.PropertyFromAccountID).AsId()
		if !ok {
			return nil, jmaperr.NewMethodError(jmaperr.MethodErrorInvalidArguments, "fromAccountId is required")
		}
		if err := token.AssertHasAccess(account, string(dataTypeEmail)); err != nil {
			return nil, jmaperr.Forbidden(err.Error())
		}
		if err := token.AssertHasAccess(fromAccount, string(dataTypeEmail)); err != nil {
			return nil, jmaperr.Forbidden(err.Error())
		}
	} else if rule, ok := accessRules[dt]; ok {
		if err := checkAccess(rule, token, account, collectionFor(dt), d.PrincipalLookupsAllowed); err != nil {
			return nil, err
		}
	}

	h, ok := d.Handlers[call.MethodName]
	if !ok {
		h = d.Fallback
	}
	if h == nil {
		return nil, jmaperr.NewMethodError(jmaperr.MethodErrorUnknownMethod, "no handler for "+call.MethodName)
	}
	return h.Handle(ctx, account, call, lookup)
}

func checkAccess(rule accessRule, token auth.AccessToken, account jmaptypes.Id, collection string, principalLookupsAllowed bool) *jmaperr.MethodError {
	switch rule {
	case ruleHasAccess:
		if err := token.AssertHasAccess(account, collection); err != nil {
			return jmaperr.Forbidden(err.Error())
		}
	case ruleIsMember:
		if err := token.AssertIsMember(account); err != nil {
			return jmaperr.Forbidden(err.Error())
		}
	case rulePrincipal:
		if !principalLookupsAllowed && !token.IsSuperUser() {
			return jmaperr.Forbidden("Principal lookups are disabled")
		}
	case ruleNone:
	}
	return nil
}
