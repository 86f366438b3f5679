package jmaptypes

import "strconv"

// Id is an opaque 64-bit JMAP object identifier.
type Id uint64

// NewId wraps a raw 64-bit value as an Id.
func NewId(v uint64) Id { return Id(v) }

// DocumentId extracts the storage-layer document id a JMAP Id was minted
// from. This core mints Id values directly from document ids (no
// additional encoding), matching the simplest case of Stalwart's
// id.document_id().
func (i Id) DocumentId() uint32 { return uint32(i) }

// String renders the id the way it would appear as a JMAP string value.
func (i Id) String() string { return strconv.FormatUint(uint64(i), 10) }

// BlobId is an opaque, structured blob handle. This core treats it as an
// opaque byte sequence; the blob store (§1, external collaborator) is
// responsible for interpreting its structure.
type BlobId []byte

// Keyword is an interned IMAP-style flag such as "$draft" or "$seen".
type Keyword string
