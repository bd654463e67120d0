package bookmark

import (
	"encoding/json"
	"time"

	"github.com/kalambet/coffey/internal/blob"
	"github.com/kalambet/coffey/internal/record"
	"github.com/kalambet/coffey/internal/storage"
)

// CollectionRef is the collection context captured alongside a bookmark.
type CollectionRef struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// Data is the hashed payload of a bookmark envelope: the raindrop
// snapshot plus its collection context.
type Data struct {
	Raindrop   record.Snapshot[Raindrop] `json:"raindrop"`
	Collection *CollectionRef            `json:"collection,omitempty"`
}

// Build assembles a content-addressed bookmark envelope. The envelope's
// created_at is the archive time; the blob key's date comes from the
// bookmark's own creation date so archives group by when the link was
// saved upstream.
func Build(raindrop *Raindrop, collection *Collection, now func() time.Time) (record.Envelope, Data, error) {
	data := Data{
		Raindrop: record.Snapshot[Raindrop]{
			CapturedAt: now().UTC().Format(time.RFC3339),
			Provider:   record.Provider{Name: "raindrop.io", Product: "api", Version: "v1"},
			Summary:    *raindrop,
		},
	}
	if collection != nil {
		ref := &CollectionRef{ID: collection.ID, Title: collection.Title}
		if collection.Parent != nil {
			ref.ParentID = &collection.Parent.ID
		}
		data.Collection = ref
	}

	envelope, err := record.Assemble(record.KindBookmark, data, "", now)
	return envelope, data, err
}

// ObjectKey returns the blob key for a bookmark envelope.
func ObjectKey(envelope record.Envelope, raindrop *Raindrop) string {
	return blob.BookmarkKey(blob.DateOf(raindrop.Created), envelope.SHA256)
}

// IndexRow flattens a bookmark envelope into its SQLite index row.
func IndexRow(envelope record.Envelope, data Data, syncedAt time.Time) (storage.Bookmark, error) {
	r := data.Raindrop.Summary

	row := storage.Bookmark{
		UUID:     r.ID,
		SHA256:   envelope.SHA256,
		Link:     r.Link,
		Title:    r.Title,
		Excerpt:  r.Excerpt,
		Domain:   r.Domain,
		Type:     r.Type,
		CoverURL: r.Cover,
		SyncedAt: syncedAt,
	}
	if data.Collection != nil {
		row.CollectionID = data.Collection.ID
		row.CollectionTitle = data.Collection.Title
	}
	if len(r.Tags) > 0 {
		tags, err := json.Marshal(r.Tags)
		if err != nil {
			return storage.Bookmark{}, err
		}
		row.Tags = string(tags)
	}

	createdAt, err := record.ParseTime(r.Created)
	if err != nil {
		return storage.Bookmark{}, err
	}
	row.CreatedAt = createdAt
	if r.LastUpdate != "" {
		if updatedAt, err := record.ParseTime(r.LastUpdate); err == nil {
			row.UpdatedAt = updatedAt
		}
	}
	return row, nil
}
