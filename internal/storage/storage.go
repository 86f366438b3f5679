// Package storage defines the §6 storage contract the batch evaluator and
// per-method handlers depend on, and a DynamoDB-backed implementation.
// The secondary-index bitmaps and full-text indexing that Value.Indexable
// feeds are external collaborators (§1) — this package only owns the
// primary value slot and document-id allocation.
package storage

import (
	"context"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

// BatchFlag selects which slot an operation targets, per §6.
type BatchFlag uint8

const (
	// FValue selects the primary value slot.
	FValue BatchFlag = 1 << iota
	// FClear marks deletion of the targeted slot.
	FClear
)

// batchOp is one staged mutation inside a BatchBuilder.
type batchOp struct {
	collection string
	docID      uint32
	flags      BatchFlag
	object     *value.Object
}

// BatchBuilder accumulates mutations for one atomic write_batch commit
// (§6). It is not safe for concurrent use; a handler builds one, stages
// its operations, and hands it to Store.WriteBatch.
type BatchBuilder struct {
	account jmaptypes.Id
	ops     []batchOp
}

// NewBatchBuilder starts a batch scoped to account.
func NewBatchBuilder(account jmaptypes.Id) *BatchBuilder {
	return &BatchBuilder{account: account}
}

// Put stages an F_VALUE write of obj at (collection, docID).
func (b *BatchBuilder) Put(collection string, docID uint32, obj *value.Object) {
	b.ops = append(b.ops, batchOp{collection: collection, docID: docID, flags: FValue, object: obj})
}

// Delete stages an F_VALUE|F_CLEAR deletion at (collection, docID).
func (b *BatchBuilder) Delete(collection string, docID uint32) {
	b.ops = append(b.ops, batchOp{collection: collection, docID: docID, flags: FValue | FClear})
}

// IsEmpty reports whether any operation has been staged.
func (b *BatchBuilder) IsEmpty() bool { return len(b.ops) == 0 }

// Account returns the account the batch is scoped to, for Store
// implementations (and fakes) that replay staged operations.
func (b *BatchBuilder) Account() jmaptypes.Id { return b.account }

// Visit replays every staged operation in order, for Store implementations
// that commit by iterating rather than by reflecting into BatchBuilder's
// unexported fields.
func (b *BatchBuilder) Visit(fn func(collection string, docID uint32, flags BatchFlag, object *value.Object)) {
	for _, op := range b.ops {
		fn(op.collection, op.docID, op.flags, op.object)
	}
}

// Store is the external storage collaborator's contract (§6).
type Store interface {
	// GetDocumentIDs returns every document-id currently live in
	// (account, collection).
	GetDocumentIDs(ctx context.Context, account jmaptypes.Id, collection string) ([]uint32, error)
	// GetProperty loads one document's full Object, or ok=false if the
	// document-id does not exist in (account, collection).
	GetProperty(ctx context.Context, account jmaptypes.Id, collection string, docID uint32) (*value.Object, bool, error)
	// AssignDocumentID allocates the next monotonic document-id for
	// (account, collection). It never reuses an id within a session.
	AssignDocumentID(ctx context.Context, account jmaptypes.Id, collection string) (uint32, error)
	// WriteBatch atomically commits every operation staged on b.
	WriteBatch(ctx context.Context, b *BatchBuilder) error
	// GetPropertiesConcurrent loads several documents with bounded
	// fan-out; absent ids are simply omitted from the result.
	GetPropertiesConcurrent(ctx context.Context, account jmaptypes.Id, collection string, docIDs []uint32) (map[uint32]*value.Object, error)
	// CurrentState returns account's current state string (§6), the
	// monotonic counter WriteBatch advances on every committed change.
	// An account with no committed changes yet reports "0".
	CurrentState(ctx context.Context, account jmaptypes.Id) (string, error)
}
