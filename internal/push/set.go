// Package push implements the create/update/destroy Set pipeline for
// PushSubscription, the exemplar §4.5 fixes as the general Set contract:
// per-property validation policy, default-value insertion, cap
// enforcement, and write-batch emission.
package push

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/reference"
	"github.com/jarrod-lowe/jmap-service-core/internal/storage"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

// Collection is the storage-layer collection name for push subscriptions.
const Collection = "PushSubscription"

const verificationCodeLen = 32

const verificationCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Request is the three-section Set request §4.5 processes in order:
// create (keyed by client-chosen local id), update (keyed by the real
// Id), destroy (a list of Ids).
type Request struct {
	Account jmaptypes.Id
	Create  map[string]*value.Object
	Update  map[jmaptypes.Id]*value.Object
	Destroy []jmaptypes.Id
}

// Response accumulates per-item outcomes. A Set call itself always
// succeeds (§7): individual rejections are bucketed here, never
// propagated as a method error.
type Response struct {
	Created      map[string]jmaptypes.Id
	NotCreated   map[string]*jmaperr.SetError
	Updated      map[jmaptypes.Id]bool
	NotUpdated   map[jmaptypes.Id]*jmaperr.SetError
	Destroyed    []jmaptypes.Id
	NotDestroyed map[jmaptypes.Id]*jmaperr.SetError
}

func newResponse() *Response {
	return &Response{
		Created:      make(map[string]jmaptypes.Id),
		NotCreated:   make(map[string]*jmaperr.SetError),
		Updated:      make(map[jmaptypes.Id]bool),
		NotUpdated:   make(map[jmaptypes.Id]*jmaperr.SetError),
		NotDestroyed: make(map[jmaptypes.Id]*jmaperr.SetError),
	}
}

// HasChanges reports whether any section produced an observable change,
// gating the single update_push_subscriptions call at the end (§4.5).
func (r *Response) HasChanges() bool {
	return len(r.Created) > 0 || len(r.Updated) > 0 || len(r.Destroyed) > 0
}

// Pipeline wires the Set exemplar to its storage collaborator. NotifyChange,
// when set, is invoked once at the end of Process if any section produced
// a change — the Go equivalent of Stalwart's update_push_subscriptions:
// it refreshes the server's cached view of which endpoints to fan
// broadcaster state changes out to, and is not itself a StateChange.
type Pipeline struct {
	Store        storage.Store
	MaxTotal     int
	NowFn        func() jmaptypes.UTCDate
	NotifyChange func(ctx context.Context, account jmaptypes.Id) error
}

// NewPipeline builds a Pipeline. maxTotal is the configured per-account
// subscription cap (§4.5 step 1).
func NewPipeline(store storage.Store, maxTotal int) *Pipeline {
	return &Pipeline{
		Store:    store,
		MaxTotal: maxTotal,
		NowFn:    jmaptypes.UTCDateNow,
	}
}

// Process runs the full create/update/destroy pipeline for req against
// lookup (the in-progress response's reference table, for resolving
// created-id and result references embedded in property values, §4.2)
// and returns the accumulated Response.
func (p *Pipeline) Process(ctx context.Context, req *Request, lookup reference.Lookup) (*Response, error) {
	resp := newResponse()
	now := p.NowFn()

	existingIDs, err := p.Store.GetDocumentIDs(ctx, req.Account, Collection)
	if err != nil {
		return nil, fmt.Errorf("push: load existing subscription ids: %w", err)
	}
	willDestroy := make(map[jmaptypes.Id]bool, len(req.Destroy))
	for _, id := range req.Destroy {
		willDestroy[id] = true
	}

	if err := p.processCreate(ctx, req, resp, lookup, now, len(existingIDs)); err != nil {
		return nil, err
	}
	if err := p.processUpdate(ctx, req, resp, lookup, willDestroy, now); err != nil {
		return nil, err
	}
	if err := p.processDestroy(ctx, req, resp, existingIDs); err != nil {
		return nil, err
	}

	if resp.HasChanges() && p.NotifyChange != nil {
		if err := p.NotifyChange(ctx, req.Account); err != nil {
			return nil, fmt.Errorf("push: notify subscription change: %w", err)
		}
	}
	return resp, nil
}

func (p *Pipeline) processCreate(ctx context.Context, req *Request, resp *Response, lookup reference.Lookup, now jmaptypes.UTCDate, existingCount int) error {
	count := existingCount
create:
	for localID, props := range req.Create {
		// count starts from the ids Process loaded once before any create
		// ran. Concurrent Set calls for the same account each check their
		// own snapshot, so together they can exceed MaxTotal.
		if count >= p.MaxTotal {
			resp.NotCreated[localID] = jmaperr.SetForbidden().WithDescription(
				"There are too many subscriptions, please delete some before adding a new one.")
			continue create
		}

		push := value.NewObject(props.Len())
		var rejectErr *jmaperr.SetError
		props.Properties(func(property jmaptypes.Property, v value.Value) {
			if rejectErr != nil {
				return
			}
			resolved, methodErr := reference.ResolveValue(v, lookup)
			if methodErr != nil {
				rejectErr = jmaperr.SetInvalidProperties().WithProperties(property).WithDescription(methodErr.Description)
				return
			}
			validated, setErr := validatePushValue(property, resolved, nil, now)
			if setErr != nil {
				rejectErr = setErr
				return
			}
			if !validated.IsNull() {
				push.Set(property, validated)
			}
		})
		if rejectErr != nil {
			resp.NotCreated[localID] = rejectErr
			continue create
		}

		if !push.Has(jmaptypes.PropertyDeviceClientId) || !push.Has(jmaptypes.PropertyUrl) {
			resp.NotCreated[localID] = jmaperr.SetInvalidProperties().
				WithProperties(jmaptypes.PropertyDeviceClientId, jmaptypes.PropertyUrl).
				WithDescription("Missing required properties")
			continue create
		}

		if !push.Has(jmaptypes.PropertyExpires) {
			push.Append(jmaptypes.PropertyExpires, defaultExpires(now))
		}

		code, err := generateVerificationCode()
		if err != nil {
			return fmt.Errorf("push: generate verification code: %w", err)
		}
		push.Append(jmaptypes.PropertyValue, value.Text(code))

		docID, err := p.Store.AssignDocumentID(ctx, req.Account, Collection)
		if err != nil {
			return fmt.Errorf("push: assign document id: %w", err)
		}
		batch := storage.NewBatchBuilder(req.Account)
		batch.Put(Collection, docID, push)
		if err := p.Store.WriteBatch(ctx, batch); err != nil {
			return fmt.Errorf("push: write create batch: %w", err)
		}

		count++
		resp.Created[localID] = jmaptypes.NewId(uint64(docID))
	}
	return nil
}

func (p *Pipeline) processUpdate(ctx context.Context, req *Request, resp *Response, lookup reference.Lookup, willDestroy map[jmaptypes.Id]bool, now jmaptypes.UTCDate) error {
update:
	for id, props := range req.Update {
		if willDestroy[id] {
			resp.NotUpdated[id] = jmaperr.SetWillDestroy()
			continue update
		}

		docID := id.DocumentId()
		current, ok, err := p.Store.GetProperty(ctx, req.Account, Collection, docID)
		if err != nil {
			return fmt.Errorf("push: load subscription %s: %w", id, err)
		}
		if !ok {
			resp.NotUpdated[id] = jmaperr.SetNotFound()
			continue update
		}

		var rejectErr *jmaperr.SetError
		props.Properties(func(property jmaptypes.Property, v value.Value) {
			if rejectErr != nil {
				return
			}
			resolved, methodErr := reference.ResolveValue(v, lookup)
			if methodErr != nil {
				rejectErr = jmaperr.SetInvalidProperties().WithProperties(property).WithDescription(methodErr.Description)
				return
			}
			validated, setErr := validatePushValue(property, resolved, current, now)
			if setErr != nil {
				rejectErr = setErr
				return
			}
			if validated.IsNull() {
				current.Remove(property)
			} else {
				current.Set(property, validated)
			}
		})
		if rejectErr != nil {
			resp.NotUpdated[id] = rejectErr
			continue update
		}

		batch := storage.NewBatchBuilder(req.Account)
		batch.Put(Collection, docID, current)
		if err := p.Store.WriteBatch(ctx, batch); err != nil {
			return fmt.Errorf("push: write update batch for %s: %w", id, err)
		}
		resp.Updated[id] = true
	}
	return nil
}

func (p *Pipeline) processDestroy(ctx context.Context, req *Request, resp *Response, existingIDs []uint32) error {
	existing := make(map[uint32]bool, len(existingIDs))
	for _, docID := range existingIDs {
		existing[docID] = true
	}

	for _, id := range req.Destroy {
		docID := id.DocumentId()
		if !existing[docID] {
			resp.NotDestroyed[id] = jmaperr.SetNotFound()
			continue
		}
		batch := storage.NewBatchBuilder(req.Account)
		batch.Delete(Collection, docID)
		if err := p.Store.WriteBatch(ctx, batch); err != nil {
			return fmt.Errorf("push: write destroy batch for %s: %w", id, err)
		}
		resp.Destroyed = append(resp.Destroyed, id)
	}
	return nil
}

// verificationCodeAlphabetLimit is the largest multiple of
// len(verificationCodeAlphabet) that fits in a byte. Bytes at or above
// it are rejected rather than reduced mod len(alphabet), since 256 is
// not itself a multiple of 62 and taking the modulo directly would bias
// the low end of the alphabet (A-H) 1.25x over the rest (5 byte values
// map to each of them, 4 to every other character).
var verificationCodeAlphabetLimit = byte(256 / len(verificationCodeAlphabet) * len(verificationCodeAlphabet))

// generateVerificationCode draws 32 cryptographically uniform characters
// from an alphanumeric alphabet via rejection sampling. The verification
// code is a capability secret (§4.5 step 5), so this uses crypto/rand
// rather than a general-purpose PRNG, and rejection sampling rather than
// `b % len(alphabet)` so every character is drawn with equal probability.
func generateVerificationCode() (string, error) {
	out := make([]byte, verificationCodeLen)
	buf := make([]byte, verificationCodeLen)
	filled := 0
	for filled < verificationCodeLen {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= verificationCodeAlphabetLimit {
				continue
			}
			out[filled] = verificationCodeAlphabet[int(b)%len(verificationCodeAlphabet)]
			filled++
			if filled == verificationCodeLen {
				break
			}
		}
	}
	return string(out), nil
}
