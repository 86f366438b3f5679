package dispatch

import (
	"context"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/push"
	"github.com/jarrod-lowe/jmap-service-core/internal/reference"
	"github.com/jarrod-lowe/jmap-service-core/internal/request"
	"github.com/jarrod-lowe/jmap-service-core/internal/response"
)

// PushSetHandler adapts the PushSubscription/set exemplar (§4.5) to the
// generic Handler contract. Pipeline.NotifyChange, if the caller wired
// one, is whatever cache-refresh side effect update_push_subscriptions
// performs in Stalwart (§4.6) — this adapter does not interpret it, and
// deliberately does not forward it to the broadcaster, since
// PushSubscription is not itself a subscribable TypeState.
type PushSetHandler struct {
	Pipeline *push.Pipeline
}

// Handle implements Handler.
func (h *PushSetHandler) Handle(ctx context.Context, account jmaptypes.Id, call request.Call, lookup reference.Lookup) (*Result, *jmaperr.MethodError) {
	resp, err := h.Pipeline.Process(ctx, &push.Request{
		Account: account,
		Create:  call.Create,
		Update:  call.Update,
		Destroy: call.Destroy,
	}, lookup)
	if err != nil {
		return nil, jmaperr.ServerFail(err.Error())
	}

	return &Result{
		MethodName: call.MethodName,
		Set: &response.SetOutcome{
			Created:      resp.Created,
			NotCreated:   resp.NotCreated,
			Updated:      resp.Updated,
			NotUpdated:   resp.NotUpdated,
			Destroyed:    resp.Destroyed,
			NotDestroyed: resp.NotDestroyed,
		},
		CreatedIDs: resp.Created,
	}, nil
}
