package docsync

import "errors"

// Gateway and synchronizer failures. Adapters wrap these with %w so callers
// classify with errors.Is.
var (
	ErrAuth       = errors.New("provider authorization rejected")
	ErrNotFound   = errors.New("document not found")
	ErrConflict   = errors.New("document changed concurrently")
	ErrQuota      = errors.New("provider quota exceeded")
	ErrTransient  = errors.New("provider temporarily unavailable")
	ErrValidation = errors.New("invalid request")
)
