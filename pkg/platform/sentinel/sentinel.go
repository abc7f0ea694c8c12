package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Record stores, index stores and
// blob stores return these (optionally wrapped) so services can translate them
// into coded domain errors.
//
//   - ErrNotFound: key does not exist in the store
//   - ErrAlreadyUsed: insert lost against an existing key
//   - ErrConflict: compare-and-swap saw a different version
//   - ErrUnavailable: backend temporarily unreachable; safe to retry
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
