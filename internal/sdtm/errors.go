package sdtm

import "errors"

// Error kinds recognized by the catalog. Only ErrNotFound is returned to
// callers; the others are logged and the offending step contributes nothing.
var (
	ErrNotFound            = errors.New("not found")
	ErrSchemaMismatch      = errors.New("schema mismatch")
	ErrKeyRegimeUnresolved = errors.New("key regime unresolved")
	ErrPivotCollision      = errors.New("pivot collision")
)
