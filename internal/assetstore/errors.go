package assetstore

import "errors"

// ErrNotFound is returned (wrapped) when a key has no committed blob.
// Callers treat this as a cache miss, never a fatal error.
var ErrNotFound = errors.New("assetstore: not found")
