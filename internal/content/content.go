// Package content implements the chatter and image pipelines: enrich,
// hash, persist to blob storage and index in SQLite. Identity is always
// derived from content, so persistence here is idempotent by hash.
package content

import "fmt"

// ValidationError rejects a request before any enrichment or persistence
// work happens. The API layer maps it to a 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UploadError is a failure at the image host. It is fatal to the upload:
// without a host UUID there is nothing to index or serve. The API layer
// maps it to a 502.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "image host upload failed: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }
