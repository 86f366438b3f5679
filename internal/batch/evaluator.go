// Package batch implements the sequential evaluator of §4.3: resolve
// references, dispatch, thread follow-up calls, merge created-ids, and
// forward state-change notifications, appending response entries in
// strict completion order.
package batch

import (
	"context"

	"github.com/jarrod-lowe/jmap-service-libs/tracing"

	"github.com/jarrod-lowe/jmap-service-core/internal/auth"
	"github.com/jarrod-lowe/jmap-service-core/internal/broadcast"
	"github.com/jarrod-lowe/jmap-service-core/internal/dispatch"
	"github.com/jarrod-lowe/jmap-service-core/internal/reference"
	"github.com/jarrod-lowe/jmap-service-core/internal/request"
	"github.com/jarrod-lowe/jmap-service-core/internal/response"
)

var tracer = tracing.Tracer("jmap-service-core/internal/batch")

// Evaluator runs one authenticated batch against a Dispatcher, forwarding
// every StateChange a Handler's Result carries to Broadcaster in strict
// handler-completion order (§4.3 step 2c, §4.6). Broadcaster is optional;
// a nil Broadcaster simply drops any StateChange a Handler produces,
// which keeps Evaluator usable in tests that never populate one.
type Evaluator struct {
	Dispatcher  *dispatch.Dispatcher
	Broadcaster broadcast.Broadcaster
}

// Result aliases dispatch.Result, so package batch's own tests can build
// Handler fakes without importing dispatch's Result type by another name.
type Result = dispatch.Result

// Evaluate processes every call in req in order, threading follow-up
// calls and resolving references against the in-progress response,
// which satisfies reference.Lookup directly (§4.2, §4.3). It never
// returns an error itself: per-call failures become MethodError entries,
// matching handle_request's "a failed call does not abort the batch"
// contract.
func (e *Evaluator) Evaluate(ctx context.Context, req *request.Request, token auth.AccessToken) *response.Response {
	resp := response.New(token.State(), len(req.MethodCalls), req.CreatedIDs)

	for _, call := range req.MethodCalls {
		e.runCall(ctx, resp, call, token, req.EchoCreatedIDs)
	}

	return resp
}

// runCall evaluates one call and every follow-up call it produces,
// appending exactly one response entry per link in that chain. A
// follow-up inherits the parent's response slot: per handle_request,
// "call.id = response.method_responses.last().unwrap().id.clone()".
func (e *Evaluator) runCall(ctx context.Context, resp *response.Response, call request.Call, token auth.AccessToken, echoCreatedIDs bool) {
	ctx, span := tracer.Start(ctx, "batch.Call")
	defer span.End()

	for {
		if call.Arguments != nil {
			resolved, methodErr := reference.Resolve(call.Arguments, resp)
			if methodErr != nil {
				resp.AppendError(call.CallID, methodErr)
				return
			}
			call.Arguments = resolved
		}

		result, methodErr := e.Dispatcher.Dispatch(ctx, call, token, resp)
		if methodErr != nil {
			resp.AppendError(call.CallID, methodErr)
			return
		}

		if echoCreatedIDs {
			for localID, id := range result.CreatedIDs {
				resp.MergeCreatedID(localID, id)
			}
		}

		if result.StateChange != nil && e.Broadcaster != nil {
			e.forwardStateChange(ctx, *result.StateChange)
		}

		if result.Set != nil {
			resp.AppendSetResult(call.CallID, result.MethodName, result.Set)
		} else {
			resp.AppendResult(call.CallID, result.MethodName, result.Object)
		}

		if result.FollowUp == nil {
			return
		}
		next := *result.FollowUp
		next.CallID = call.CallID
		call = next
	}
}

// forwardStateChange hands change to the Broadcaster without waiting on
// delivery, matching internal/broadcast's fire-and-forget contract: a
// slow or failing downstream queue must never add latency to the
// evaluator's own response path.
func (e *Evaluator) forwardStateChange(ctx context.Context, change broadcast.StateChange) {
	go func() {
		_ = e.Broadcaster.BroadcastStateChange(context.WithoutCancel(ctx), change)
	}()
}
