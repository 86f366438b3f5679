// Package response assembles the batch evaluator's output: an
// append-only, ordered list of method-response entries plus the
// accumulated created-ids map (§3, §4.3).
package response

import (
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

// SetOutcome is the generalized shape of any Set-kind method's result
// (§4.5's push exemplar made concrete). It is kept separate from Result
// because created/notCreated/notUpdated/notDestroyed are keyed by an
// arbitrary client-chosen string or a real Id — neither fits Property's
// closed wire-stable enum, so these maps never round-trip through the
// Value/Object codec. Rendering this into the actual JMAP response JSON
// is the ingress layer's job (wire JSON schema is out of scope, per
// internal/request's doc comment).
type SetOutcome struct {
	Created      map[string]jmaptypes.Id
	NotCreated   map[string]*jmaperr.SetError
	Updated      map[jmaptypes.Id]bool
	NotUpdated   map[jmaptypes.Id]*jmaperr.SetError
	Destroyed    []jmaptypes.Id
	NotDestroyed map[jmaptypes.Id]*jmaperr.SetError
}

// Entry is one appended response: a successful method result (Result for
// Get/Query/Echo/proxied calls, Set for Set-kind calls) or a MethodError
// (§7), always tagged with the call-id it answers.
type Entry struct {
	CallID     string
	MethodName string
	Result     *value.Object
	Set        *SetOutcome
	Error      *jmaperr.MethodError
}

// Response accumulates entries in strict completion order (§3's
// "response order is byte-identical to the order in which handlers
// completed") and the created-ids map the evaluator has merged so far.
type Response struct {
	State      string
	Entries    []Entry
	CreatedIDs map[string]jmaptypes.Id
}

// New pre-sizes Entries for callCount calls, per the "pre-size response
// capacity" ambient hint — most batches produce exactly one entry per
// call, with follow-ups the exception rather than the rule. seed is the
// request's client-supplied createdIds alias table (may be nil), copied
// rather than aliased so the evaluator's merges never mutate the
// caller's map; it seeds CreatedIDs so a `#alias` reference (§4.2.1)
// pointing at an id the client declared up front — not one created
// within this batch — still resolves, matching
// `Response::new(access_token.state(), request.created_ids.unwrap_or_default(), ...)`.
func New(state string, callCount int, seed map[string]jmaptypes.Id) *Response {
	createdIDs := make(map[string]jmaptypes.Id, len(seed))
	for localID, id := range seed {
		createdIDs[localID] = id
	}
	return &Response{
		State:      state,
		Entries:    make([]Entry, 0, callCount),
		CreatedIDs: createdIDs,
	}
}

// AppendResult appends a successful method response entry.
func (r *Response) AppendResult(callID, methodName string, result *value.Object) {
	r.Entries = append(r.Entries, Entry{CallID: callID, MethodName: methodName, Result: result})
}

// AppendSetResult appends a successful Set-kind method response entry.
func (r *Response) AppendSetResult(callID, methodName string, set *SetOutcome) {
	r.Entries = append(r.Entries, Entry{CallID: callID, MethodName: methodName, Set: set})
}

// AppendError appends a method-error entry (§7: replaces the one call's
// response; the rest of the batch is unaffected).
func (r *Response) AppendError(callID string, err *jmaperr.MethodError) {
	r.Entries = append(r.Entries, Entry{CallID: callID, MethodName: "error", Error: err})
}

// MergeCreatedID records a newly created local-id -> Id mapping. Callers
// must only invoke this when the originating request set EchoCreatedIDs
// (§4.3 step 2b) — the evaluator enforces that gate, not this method.
func (r *Response) MergeCreatedID(localID string, id jmaptypes.Id) {
	r.CreatedIDs[localID] = id
}

// ResolveCreatedID looks up a previously merged created-id, for the
// reference resolver's `#alias` handling (§4.2).
func (r *Response) ResolveCreatedID(localID string) (jmaptypes.Id, bool) {
	id, ok := r.CreatedIDs[localID]
	return id, ok
}

// EntryFor returns the most recently appended entry with the given
// call-id and method-name, for result-reference resolution (§4.2): a
// result reference must match BOTH fields, not call-id alone.
func (r *Response) EntryFor(callID, methodName string) (Entry, bool) {
	for i := len(r.Entries) - 1; i >= 0; i-- {
		e := r.Entries[i]
		if e.CallID == callID && e.MethodName == methodName {
			return e, true
		}
	}
	return Entry{}, false
}
