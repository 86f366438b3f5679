// Package dynamo provides the single-table key layout shared by every
// storage-layer document: partition per account, sort key per
// (collection, document-id). The same table also holds the per-collection
// monotonic document-id counters and the per-account state counters
// internal/storage needs (§6).
package dynamo

import (
	"fmt"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
)

const (
	// Primary key attributes.
	AttrPK = "pk"
	AttrSK = "sk"

	// Key prefixes.
	PrefixAccount = "ACCOUNT#"

	// AttrValue holds a document's serialized Value codec blob (§4.1, §6's
	// F_VALUE slot).
	AttrValue = "value"

	// sortKeyCounter and sortKeyState are the fixed SK suffixes for a
	// collection's document-id counter and an account's state counter.
	sortKeyCounter = "COUNTER"
	sortKeyState   = "STATE"
)

// AccountPK returns the partition key for account.
func AccountPK(account jmaptypes.Id) string {
	return PrefixAccount + account.String()
}

// DocumentSK returns the sort key for one document within collection.
func DocumentSK(collection string, docID uint32) string {
	return fmt.Sprintf("%s#%d", collection, docID)
}

// CounterSK returns the sort key for collection's document-id allocator.
func CounterSK(collection string) string {
	return fmt.Sprintf("%s#%s", collection, sortKeyCounter)
}

// StateSK returns the sort key for an account's state-change counter.
func StateSK() string {
	return sortKeyState
}
