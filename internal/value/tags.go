package value

// Wire tag bytes for the self-describing binary codec (§4.1). These must
// match bit-for-bit across versions: the persisted format is the canonical
// on-disk representation for every mutable JMAP object this core stores,
// and tag values must never be reassigned (§6).
const (
	tagText         byte = 0
	tagUnsignedInt  byte = 1
	tagBoolTrue     byte = 2
	tagBoolFalse    byte = 3
	tagId           byte = 4
	tagDate         byte = 5
	tagBlobId       byte = 6
	tagBlob         byte = 7
	tagKeyword      byte = 8
	tagList         byte = 9
	tagObject       byte = 10
	tagNull         byte = 11
)

// maxDecodeDepth bounds recursive List/Object nesting during decode. §4.1
// requires a safety depth of at least 64; this core uses exactly that.
const maxDecodeDepth = 64
