package batch

import (
	"context"
	"testing"

	"github.com/jarrod-lowe/jmap-service-core/internal/dispatch"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/reference"
	"github.com/jarrod-lowe/jmap-service-core/internal/request"
	"github.com/jarrod-lowe/jmap-service-core/internal/response"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

type fakeToken struct {
	primary jmaptypes.Id
}

func (f *fakeToken) PrimaryID() jmaptypes.Id                              { return f.primary }
func (f *fakeToken) State() string                                       { return "state-0" }
func (f *fakeToken) IsSuperUser() bool                                   { return true }
func (f *fakeToken) AssertHasAccess(account jmaptypes.Id, collection string) error { return nil }
func (f *fakeToken) AssertIsMember(account jmaptypes.Id) error           { return nil }

// scriptedHandler returns a fixed sequence of results, one per call,
// consumed in Handle-call order. Used to drive follow-up-call chains.
type scriptedHandler struct {
	results []*Result
	errs    []*jmaperr.MethodError
	calls   []request.Call
}

func (h *scriptedHandler) Handle(ctx context.Context, account jmaptypes.Id, call request.Call, lookup reference.Lookup) (*Result, *jmaperr.MethodError) {
	idx := len(h.calls)
	h.calls = append(h.calls, call)
	var res *Result
	var err *jmaperr.MethodError
	if idx < len(h.results) {
		res = h.results[idx]
	}
	if idx < len(h.errs) {
		err = h.errs[idx]
	}
	return res, err
}

func accountArgs(account jmaptypes.Id) *value.Object {
	obj := value.NewObject(1)
	obj.Append(jmaptypes.PropertyAccountID, value.IdValue(account))
	return obj
}

func TestEvaluateOrdersEntriesByCompletion(t *testing.T) {
	account := jmaptypes.NewId(1)
	h := &scriptedHandler{results: []*Result{
		{MethodName: "Mailbox/get", Object: value.NewObject(0)},
		{MethodName: "Mailbox/get", Object: value.NewObject(0)},
	}}
	e := &Evaluator{Dispatcher: &dispatch.Dispatcher{Handlers: map[string]dispatch.Handler{"Mailbox/get": h}}}

	req := request.NewRequest([]request.Call{
		{CallID: "a", MethodName: "Mailbox/get", Arguments: accountArgs(account)},
		{CallID: "b", MethodName: "Mailbox/get", Arguments: accountArgs(account)},
	}, nil, false)

	resp := e.Evaluate(context.Background(), req, &fakeToken{primary: account})
	if len(resp.Entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(resp.Entries))
	}
	if resp.Entries[0].CallID != "a" || resp.Entries[1].CallID != "b" {
		t.Errorf("entries out of order: %+v", resp.Entries)
	}
}

func TestEvaluateSeedsCreatedIDsFromClientSuppliedAliases(t *testing.T) {
	e := &Evaluator{Dispatcher: &dispatch.Dispatcher{}}
	req := request.NewRequest(nil, map[string]jmaptypes.Id{"clientAlias": jmaptypes.NewId(9)}, true)

	resp := e.Evaluate(context.Background(), req, &fakeToken{primary: jmaptypes.NewId(1)})

	id, ok := resp.ResolveCreatedID("clientAlias")
	if !ok || id != jmaptypes.NewId(9) {
		t.Errorf("ResolveCreatedID(clientAlias) = %v, ok=%v", id, ok)
	}
}

func TestEvaluateAppendsErrorOnDispatchFailure(t *testing.T) {
	e := &Evaluator{Dispatcher: &dispatch.Dispatcher{}}
	req := request.NewRequest([]request.Call{
		{CallID: "a", MethodName: "Mailbox/get", Arguments: value.NewObject(0)},
	}, nil, false)

	resp := e.Evaluate(context.Background(), req, &fakeToken{primary: jmaptypes.NewId(1)})
	if len(resp.Entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(resp.Entries))
	}
	if resp.Entries[0].Error == nil {
		t.Fatal("expected an error entry for missing accountId")
	}
	if resp.Entries[0].Error.Type != jmaperr.MethodErrorInvalidArguments {
		t.Errorf("error type = %v", resp.Entries[0].Error.Type)
	}
}

func TestEvaluateResolvesResultReferenceAgainstPriorEntry(t *testing.T) {
	account := jmaptypes.NewId(1)

	firstResult := value.NewObject(1)
	firstResult.Append(jmaptypes.PropertyID, value.IdValue(jmaptypes.NewId(55)))

	h := &scriptedHandler{results: []*Result{
		{MethodName: "Mailbox/get", Object: firstResult},
		{MethodName: "Mailbox/get", Object: value.NewObject(0)},
	}}
	e := &Evaluator{Dispatcher: &dispatch.Dispatcher{Handlers: map[string]dispatch.Handler{"Mailbox/get": h}}}

	refArgs := value.NewObject(2)
	refArgs.Append(jmaptypes.PropertyAccountID, value.IdValue(account))
	refObj := value.NewObject(3)
	refObj.Append(jmaptypes.PropertyResultOf, value.Text("a"))
	refObj.Append(jmaptypes.PropertyName, value.Text("Mailbox/get"))
	refObj.Append(jmaptypes.PropertyPath, value.Text("/id"))
	refArgs.Append(jmaptypes.PropertyValue, value.ObjectValue(refObj))

	req := request.NewRequest([]request.Call{
		{CallID: "a", MethodName: "Mailbox/get", Arguments: accountArgs(account)},
		{CallID: "b", MethodName: "Mailbox/get", Arguments: refArgs},
	}, nil, false)

	resp := e.Evaluate(context.Background(), req, &fakeToken{primary: account})
	if len(resp.Entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(resp.Entries))
	}

	secondCall := h.calls[1]
	resolved := secondCall.Arguments.Get(jmaptypes.PropertyValue)
	text, ok := resolved.AsText()
	if !ok || text != "55" {
		t.Errorf("result reference did not resolve to id 55, got %+v", resolved)
	}
}

func TestEvaluateMergesCreatedIDsOnlyWhenEchoed(t *testing.T) {
	account := jmaptypes.NewId(1)
	h := &scriptedHandler{results: []*Result{
		{MethodName: "PushSubscription/set", Set: &response.SetOutcome{Created: map[string]jmaptypes.Id{"local1": jmaptypes.NewId(9)}}, CreatedIDs: map[string]jmaptypes.Id{"local1": jmaptypes.NewId(9)}},
	}}
	e := &Evaluator{Dispatcher: &dispatch.Dispatcher{Handlers: map[string]dispatch.Handler{"PushSubscription/set": h}}}

	req := request.NewRequest([]request.Call{
		{CallID: "a", MethodName: "PushSubscription/set", Arguments: value.NewObject(0)},
	}, nil, true)

	resp := e.Evaluate(context.Background(), req, &fakeToken{primary: account})
	if id, ok := resp.ResolveCreatedID("local1"); !ok || id != jmaptypes.NewId(9) {
		t.Errorf("created id not merged: ok=%v id=%v", ok, id)
	}
	if resp.Entries[0].Set == nil {
		t.Fatal("expected a Set-shaped entry")
	}
}

func TestEvaluateDoesNotMergeCreatedIDsWhenNotEchoed(t *testing.T) {
	account := jmaptypes.NewId(1)
	h := &scriptedHandler{results: []*Result{
		{MethodName: "PushSubscription/set", Set: &response.SetOutcome{}, CreatedIDs: map[string]jmaptypes.Id{"local1": jmaptypes.NewId(9)}},
	}}
	e := &Evaluator{Dispatcher: &dispatch.Dispatcher{Handlers: map[string]dispatch.Handler{"PushSubscription/set": h}}}

	req := request.NewRequest([]request.Call{
		{CallID: "a", MethodName: "PushSubscription/set", Arguments: value.NewObject(0)},
	}, nil, false)

	resp := e.Evaluate(context.Background(), req, &fakeToken{primary: account})
	if _, ok := resp.ResolveCreatedID("local1"); ok {
		t.Error("created id must not be merged when the request did not echo created ids")
	}
}

func TestEvaluateFollowUpCallInheritsCallID(t *testing.T) {
	account := jmaptypes.NewId(1)
	followUp := request.Call{MethodName: "Mailbox/get", Arguments: accountArgs(account)}
	h := &scriptedHandler{results: []*Result{
		{MethodName: "Mailbox/changes", Object: value.NewObject(0), FollowUp: &followUp},
		{MethodName: "Mailbox/get", Object: value.NewObject(0)},
	}}
	e := &Evaluator{Dispatcher: &dispatch.Dispatcher{Handlers: map[string]dispatch.Handler{
		"Mailbox/changes": h,
		"Mailbox/get":     h,
	}}}

	req := request.NewRequest([]request.Call{
		{CallID: "a", MethodName: "Mailbox/changes", Arguments: accountArgs(account)},
	}, nil, false)

	resp := e.Evaluate(context.Background(), req, &fakeToken{primary: account})
	if len(resp.Entries) != 2 {
		t.Fatalf("want 2 entries (original + follow-up), got %d", len(resp.Entries))
	}
	if resp.Entries[0].CallID != "a" || resp.Entries[1].CallID != "a" {
		t.Errorf("follow-up call must inherit the parent call-id: %+v", resp.Entries)
	}
	if resp.Entries[0].MethodName != "Mailbox/changes" || resp.Entries[1].MethodName != "Mailbox/get" {
		t.Errorf("unexpected method names: %+v", resp.Entries)
	}
}
