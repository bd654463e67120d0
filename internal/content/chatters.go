package content

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/coffey/internal/blob"
	"github.com/kalambet/coffey/internal/record"
	"github.com/kalambet/coffey/internal/storage"
)

// ChatterEnricher is the enrichment entry point chatters depend on.
type ChatterEnricher interface {
	Enrich(ctx context.Context, req *record.CreateChatterRequest) (*record.ChatterData, error)
}

// Chatters creates and persists chatter records.
type Chatters struct {
	Enricher ChatterEnricher
	Store    *storage.Store
	Blobs    blob.Store
	Logger   *slog.Logger
	Now      func() time.Time
}

// ChatterResult is what creation hands back to the API layer.
type ChatterResult struct {
	Envelope  record.Envelope `json:"chatter"`
	ObjectKey string          `json:"object_key"`
	Stored    bool            `json:"stored"`
}

func (c *Chatters) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Chatters) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Create enriches the request, assembles the content-addressed envelope
// and persists it. Enrichment and assembly failures abort; blob and
// index writes are each best-effort, and a blob failure never blocks
// the index insert. Stored reports whether the index row was written.
func (c *Chatters) Create(ctx context.Context, req *record.CreateChatterRequest) (*ChatterResult, error) {
	if strings.TrimSpace(req.Kind) == "" {
		return nil, validationErrorf("kind is required")
	}
	if req.CreatedAt != "" {
		if _, err := record.ParseTime(req.CreatedAt); err != nil {
			return nil, validationErrorf("invalid created_at %q", req.CreatedAt)
		}
	}

	data, err := c.Enricher.Enrich(ctx, req)
	if err != nil {
		return nil, err
	}

	envelope, err := record.Assemble(record.KindChatter, data, req.CreatedAt, c.now)
	if err != nil {
		return nil, err
	}

	objectKey := blob.ChatterKey(blob.DateOf(envelope.CreatedAt), envelope.SHA256)
	result := &ChatterResult{Envelope: envelope, ObjectKey: objectKey}

	payload, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, err
	}
	// The archival copy is best-effort; the index row still gets
	// written so the record stays findable.
	if err := c.Blobs.Put(ctx, objectKey, payload, "application/json"); err != nil {
		c.log().Error("chatter blob write failed", "key", objectKey, "error", err)
	}

	createdAt, err := record.ParseTime(envelope.CreatedAt)
	if err != nil {
		createdAt = c.now()
	}
	row := storage.Chatter{
		ID:        envelope.ID,
		SHA256:    envelope.SHA256,
		CreatedAt: createdAt,
		Published: data.Publish,
		Title:     data.Title,
		ObjectKey: objectKey,
	}
	if err := c.Store.SaveChatter(row); err != nil {
		c.log().Error("chatter index write failed", "id", envelope.ID, "error", err)
		return result, nil
	}

	result.Stored = true
	c.log().Info("chatter created", "id", envelope.ID, "key", objectKey)
	return result, nil
}

// Get loads a chatter envelope from blob storage by id.
func (c *Chatters) Get(ctx context.Context, id string) (record.Envelope, error) {
	row, err := c.Store.GetChatter(id)
	if err != nil {
		return record.Envelope{}, err
	}
	data, err := c.Blobs.Get(ctx, row.ObjectKey)
	if err != nil {
		return record.Envelope{}, err
	}
	var envelope record.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return record.Envelope{}, err
	}
	return envelope, nil
}
