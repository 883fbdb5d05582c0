package core

// TokenID is a dense, stable identifier for a distinct normalized token
// string. It is strictly 32-bit, allowing for max 4 billion tokens per store.
// Assignment is idempotent: re-requesting the same string returns the same id.
type TokenID uint32

// MaxTokenID is the maximum possible value for a TokenID.
const MaxTokenID = ^TokenID(0)

// RelationType is a small-int relation kind attached to an edge.
type RelationType uint16
