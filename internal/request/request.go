// Package request models one authenticated JMAP batch request: an ordered
// list of method Calls plus an optional client-supplied created-id alias
// table (§3). The wire JSON schema itself is out of scope (spec
// Non-goals) — this package only carries what the batch evaluator needs
// once ingress has decoded the envelope.
package request

import (
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

// Call is one method invocation inside a batch: the client-chosen call-id,
// the method name ("Mailbox/query", "PushSubscription/set", …), and its
// argument object, which may still contain unresolved references (§4.2)
// at this stage.
//
// Set-kind calls additionally carry Create/Update/Destroy: the JMAP Set
// contract keys "create" by an arbitrary client-chosen string and
// "update" by a real Id, neither of which fits Property's closed,
// wire-stable enum, so they live alongside Arguments rather than inside
// it. Create/Update item values ARE Property-keyed Objects — only the
// outer collection's keys are not. These fields are nil/empty for
// non-Set calls.
type Call struct {
	CallID     string
	MethodName string
	Arguments  *value.Object
	Create     map[string]*value.Object
	Update     map[jmaptypes.Id]*value.Object
	Destroy    []jmaptypes.Id
	// RawArguments is the decoded-JSON form of this call's arguments,
	// populated by the ingress layer alongside Arguments whenever the
	// method is a candidate for proxying to an external per-method
	// function (internal/dispatch.LambdaMethodInvoker). It is forwarded
	// without reference resolution; the invoker sets its accountId entry
	// to the dispatched account and leaves the rest untouched.
	RawArguments map[string]any
}

// Request is the decoded batch: an account-scoped token's ordered list of
// calls, plus the created-ids alias table the client supplied (if any).
// EchoCreatedIDs is true exactly when the client included a createdIds
// section at all — its presence, not its contents, gates whether the
// evaluator echoes newly created ids back in the response (§4.3 step 2b).
type Request struct {
	MethodCalls    []Call
	CreatedIDs     map[string]jmaptypes.Id
	EchoCreatedIDs bool
}

// NewRequest builds a Request. createdIDs may be nil; pass
// echoCreatedIDs=true only when the client's envelope included the
// createdIds key at all, even if its value was an empty object.
func NewRequest(calls []Call, createdIDs map[string]jmaptypes.Id, echoCreatedIDs bool) *Request {
	return &Request{
		MethodCalls:    calls,
		CreatedIDs:     createdIDs,
		EchoCreatedIDs: echoCreatedIDs,
	}
}
