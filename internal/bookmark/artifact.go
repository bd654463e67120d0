package bookmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/kalambet/coffey/internal/blob"
	"github.com/kalambet/coffey/internal/record"
)

// maxArtifactBytes caps a permanent-copy download.
const maxArtifactBytes = 25 << 20 // 25 MiB

// ArtifactData is the hashed payload of a bookmark-artifact envelope:
// the archived permanent copy plus provenance.
type ArtifactData struct {
	UUID                int64  `json:"uuid"`
	Link                string `json:"link"`
	Content             string `json:"content"`
	ContentType         string `json:"content_type"`
	SizeBytes           int    `json:"size_bytes"`
	Text                string `json:"text,omitempty"`
	ArchivedAt          string `json:"archived_at"`
	RaindropCacheCreate string `json:"raindrop_cache_created,omitempty"`
}

// PermanentCopySource resolves and serves permanent copies.
type PermanentCopySource interface {
	PermanentCopyURL(ctx context.Context, id int64) (string, error)
}

// ArtifactDownloader archives a bookmark's permanent copy as a JSON
// artifact in blob storage.
type ArtifactDownloader struct {
	Source     PermanentCopySource
	Blobs      blob.Store
	Logger     *slog.Logger
	Now        func() time.Time
	httpClient *http.Client
}

func (d *ArtifactDownloader) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *ArtifactDownloader) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *ArtifactDownloader) client() *http.Client {
	if d.httpClient != nil {
		return d.httpClient
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

// Download fetches the permanent copy and stores it keyed by the
// bookmark's sha256. Returns the object key, or "" when no copy is
// available yet — the caller treats that as "retry later", so transient
// download problems also map to "" rather than an error.
func (d *ArtifactDownloader) Download(ctx context.Context, raindrop *Raindrop, bookmarkSHA string) (string, error) {
	copyURL, err := d.Source.PermanentCopyURL(ctx, raindrop.ID)
	if err != nil {
		return "", err
	}
	if copyURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, copyURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		d.log().Warn("permanent copy download failed", "uuid", raindrop.ID, "error", err)
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.log().Warn("permanent copy download failed", "uuid", raindrop.ID, "status", resp.StatusCode)
		return "", nil
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		d.log().Warn("permanent copy read failed", "uuid", raindrop.ID, "error", err)
		return "", nil
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html"
	}

	archivedAt := d.now().UTC().Format(time.RFC3339)
	data := ArtifactData{
		UUID:        raindrop.ID,
		Link:        raindrop.Link,
		Content:     string(content),
		ContentType: contentType,
		SizeBytes:   len(content),
		ArchivedAt:  archivedAt,
	}
	if raindrop.Cache != nil {
		data.RaindropCacheCreate = raindrop.Cache.Created
	}
	if strings.Contains(contentType, "application/pdf") {
		if text, err := pdfText(content); err == nil {
			data.Text = text
		} else {
			d.log().Warn("pdf text extraction failed", "uuid", raindrop.ID, "error", err)
		}
	}

	// Artifacts share the bookmark's identity: same sha256, keyed by the
	// bookmark's creation date.
	envelope := record.Envelope{
		Type:          record.KindBookmarkArtifact,
		ID:            "sha256:" + bookmarkSHA,
		SchemaVersion: record.SchemaVersion,
		CreatedAt:     archivedAt,
		SHA256:        bookmarkSHA,
		Data:          data,
	}

	key := blob.ArtifactKey(blob.DateOf(raindrop.Created), bookmarkSHA)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	if err := d.Blobs.Put(ctx, key, payload, "application/json"); err != nil {
		d.log().Warn("artifact blob write failed", "key", key, "error", err)
		return "", nil
	}

	d.log().Info("artifact stored", "uuid", raindrop.ID, "key", key, "content_type", contentType)
	return key, nil
}

// pdfText extracts plain text from a PDF so artifacts stay searchable
// without re-parsing the stored bytes.
func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	var out strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		out.WriteString(text)
		out.WriteByte('\n')
	}
	return strings.TrimSpace(out.String()), nil
}
