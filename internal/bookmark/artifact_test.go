package bookmark

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/coffey/internal/blob"
	"github.com/kalambet/coffey/internal/record"
)

type stubCopySource struct {
	url string
	err error
}

func (s *stubCopySource) PermanentCopyURL(ctx context.Context, id int64) (string, error) {
	return s.url, s.err
}

func TestArtifactDownloadStoresEnvelope(t *testing.T) {
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>archived page</body></html>"))
	}))
	defer content.Close()

	blobs := blob.NewMemory()
	d := &ArtifactDownloader{
		Source: &stubCopySource{url: content.URL},
		Blobs:  blobs,
		Now:    fixedClock(t),
	}

	r := testRaindrop()
	r.Cache = &CacheInfo{Status: "ready", Created: "2026-08-20T12:00:00Z"}
	const sha = "deadbeef"

	key, err := d.Download(context.Background(), r, sha)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	want := "artifacts/json/2026-08-20-sha_deadbeef.json"
	if key != want {
		t.Errorf("key = %q, want %q", key, want)
	}

	raw, err := blobs.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("reading artifact blob: %v", err)
	}
	var envelope struct {
		Type   string       `json:"type"`
		ID     string       `json:"id"`
		SHA256 string       `json:"sha256"`
		Data   ArtifactData `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("parsing artifact envelope: %v", err)
	}
	if envelope.Type != record.KindBookmarkArtifact {
		t.Errorf("type = %q", envelope.Type)
	}
	if envelope.SHA256 != sha || envelope.ID != "sha256:"+sha {
		t.Errorf("identity = %q / %q", envelope.ID, envelope.SHA256)
	}
	if envelope.Data.Content != "<html><body>archived page</body></html>" {
		t.Errorf("content = %q", envelope.Data.Content)
	}
	if envelope.Data.ContentType != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", envelope.Data.ContentType)
	}
	if envelope.Data.RaindropCacheCreate != "2026-08-20T12:00:00Z" {
		t.Errorf("cache created = %q", envelope.Data.RaindropCacheCreate)
	}
}

func TestArtifactDownloadNoCopyYet(t *testing.T) {
	blobs := blob.NewMemory()
	d := &ArtifactDownloader{Source: &stubCopySource{url: ""}, Blobs: blobs}

	key, err := d.Download(context.Background(), testRaindrop(), "deadbeef")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if key != "" {
		t.Errorf("expected empty key, got %q", key)
	}
	if blobs.Len() != 0 {
		t.Errorf("expected no blobs, got %d", blobs.Len())
	}
}

func TestArtifactDownloadFailureMeansRetryLater(t *testing.T) {
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer content.Close()

	blobs := blob.NewMemory()
	d := &ArtifactDownloader{Source: &stubCopySource{url: content.URL}, Blobs: blobs}

	key, err := d.Download(context.Background(), testRaindrop(), "deadbeef")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if key != "" {
		t.Errorf("expected empty key on download failure, got %q", key)
	}
	if blobs.Len() != 0 {
		t.Errorf("expected no blobs, got %d", blobs.Len())
	}
}
