package record

import (
	"fmt"
	"time"

	"github.com/kalambet/coffey/internal/canonical"
)

// Assemble builds the immutable envelope for an enriched payload. The
// content hash is computed over data as-is, so enrichment must be
// complete before calling. createdAt is used verbatim when non-empty
// (backdated imports); otherwise now() supplies the timestamp. Assemble
// performs no I/O.
func Assemble(kind string, data any, createdAt string, now func() time.Time) (Envelope, error) {
	hash, err := canonical.Hash(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("hashing %s data: %w", kind, err)
	}

	ts := createdAt
	if ts == "" {
		ts = now().UTC().Format(time.RFC3339)
	}

	return Envelope{
		Type:          kind,
		ID:            "sha256:" + hash,
		SchemaVersion: SchemaVersion,
		CreatedAt:     ts,
		SHA256:        hash,
		Data:          data,
	}, nil
}
