// Package blob stores serialized record envelopes as JSON objects. The
// index rows in SQLite point at keys in here; the blob side is the
// source of truth for record contents.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotExist is returned when a requested object key is absent.
var ErrNotExist = errors.New("object does not exist")

// Store is a flat key/value object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Options selects and configures a backend.
type Options struct {
	Backend string // "filesystem", "s3" or "memory"

	// Filesystem backend.
	Dir string

	// S3 backend.
	Bucket          string
	Region          string
	Endpoint        string // non-AWS S3-compatible endpoints
	AccessKeyID     string
	SecretAccessKey string
}

// Open builds the configured store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "filesystem":
		return NewFilesystem(opts.Dir)
	case "s3":
		return NewS3(ctx, opts)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", opts.Backend)
	}
}

// Object keys, one prefix per record category. The date is the record's
// source date (YYYY-MM-DD), not the write time, so objects group by when
// the content happened.

func ChatterKey(date, hash string) string {
	return "chatter/json/" + date + "-sha_" + hash + ".json"
}

// ImageKey uses an underscore separator; image dates come from EXIF and
// the distinct shape keeps them visually apart from chatter keys.
func ImageKey(date, hash string) string {
	return "images/json/" + date + "_sha_" + hash + ".json"
}

func BookmarkKey(date, hash string) string {
	return "bookmarks/json/" + date + "-sha_" + hash + ".json"
}

func ArtifactKey(date, hash string) string {
	return "artifacts/json/" + date + "-sha_" + hash + ".json"
}

// DateOf extracts the YYYY-MM-DD prefix of an RFC 3339 timestamp.
func DateOf(timestamp string) string {
	if len(timestamp) < 10 {
		return timestamp
	}
	return timestamp[:10]
}

// validateKey rejects traversal and absolute keys before they reach a
// filesystem path join.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
