package content

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/coffey/internal/blob"
	"github.com/kalambet/coffey/internal/canonical"
	"github.com/kalambet/coffey/internal/record"
	"github.com/kalambet/coffey/internal/storage"
)

type stubUploader struct {
	uploads atomic.Int32
	deletes atomic.Int32
	id      string
	err     error
	delErr  error
}

func (s *stubUploader) Upload(_ context.Context, _ string, _ []byte, _ string, _ map[string]string) (string, error) {
	s.uploads.Add(1)
	return s.id, s.err
}

func (s *stubUploader) Delete(_ context.Context, _ string) error {
	s.deletes.Add(1)
	return s.delErr
}

type stubImageEnricher struct {
	calls atomic.Int32
	env   *record.Environment
}

func (s *stubImageEnricher) EnvironmentForImage(_ context.Context, _, _ float64, _ time.Time) *record.Environment {
	s.calls.Add(1)
	return s.env
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newImages(t *testing.T, up Uploader, enricher ImageEnricher) (*Images, *storage.Store, *blob.Memory) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	blobs := blob.NewMemory()
	return &Images{Store: store, Blobs: blobs, Uploader: up, Enricher: enricher, Now: testClock()}, store, blobs
}

func TestImageUpload_RejectsDisallowedTypes(t *testing.T) {
	up := &stubUploader{id: "u1"}
	svc, _, _ := newImages(t, up, nil)

	var verr *ValidationError
	_, err := svc.Upload(context.Background(), "doc.pdf", []byte("%PDF"), "application/pdf")
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if up.uploads.Load() != 0 {
		t.Error("rejected type still reached the uploader")
	}
}

func TestImageUpload_HappyPath(t *testing.T) {
	up := &stubUploader{id: "host-uuid-1"}
	svc, store, blobs := newImages(t, up, nil)

	data := pngBytes(t)
	res, err := svc.Upload(context.Background(), "photo.png", data, "image/png")
	if err != nil {
		t.Fatal(err)
	}

	wantHash := canonical.HashBytes(data)
	if res.SHA256 != wantHash {
		t.Errorf("sha256 = %q", res.SHA256)
	}
	if res.UUID != "host-uuid-1" {
		t.Errorf("uuid = %q", res.UUID)
	}
	if res.IsDuplicate {
		t.Error("fresh upload flagged duplicate")
	}
	if res.ObjectKey != "images/sha_"+wantHash {
		t.Errorf("object key = %q", res.ObjectKey)
	}

	row, err := store.GetImage(wantHash)
	if err != nil {
		t.Fatalf("index row missing: %v", err)
	}
	if row.Width != 4 || row.Height != 2 {
		t.Errorf("dimensions = %dx%d", row.Width, row.Height)
	}
	// No EXIF date: blob key uses the upload date with the underscore form.
	wantKey := "images/json/2026-08-29_sha_" + wantHash + ".json"
	if row.ObjectKey != wantKey {
		t.Errorf("blob key = %q, want %q", row.ObjectKey, wantKey)
	}
	if ok, _ := blobs.Exists(context.Background(), wantKey); !ok {
		t.Error("envelope blob missing")
	}
}

func TestImageUpload_DuplicateShortCircuits(t *testing.T) {
	up := &stubUploader{id: "host-uuid-1"}
	svc, _, _ := newImages(t, up, nil)

	data := pngBytes(t)
	first, err := svc.Upload(context.Background(), "photo.png", data, "image/png")
	if err != nil {
		t.Fatal(err)
	}

	second, err := svc.Upload(context.Background(), "renamed.png", data, "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if !second.IsDuplicate {
		t.Error("second upload of identical bytes not flagged duplicate")
	}
	if second.UUID != first.UUID {
		t.Errorf("duplicate uuid = %q, want %q", second.UUID, first.UUID)
	}
	if up.uploads.Load() != 1 {
		t.Errorf("uploader called %d times, duplicate must not re-upload", up.uploads.Load())
	}
}

func TestImageUpload_DeletedImageBlocksReupload(t *testing.T) {
	up := &stubUploader{id: "host-uuid-1"}
	svc, _, _ := newImages(t, up, nil)

	data := pngBytes(t)
	if _, err := svc.Upload(context.Background(), "photo.png", data, "image/png"); err != nil {
		t.Fatal(err)
	}
	hash := canonical.HashBytes(data)
	if err := svc.Delete(context.Background(), hash); err != nil {
		t.Fatal(err)
	}

	// The soft-deleted row is invisible to dedup, so the bytes upload
	// again as a fresh image.
	res, err := svc.Upload(context.Background(), "photo.png", data, "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if res.IsDuplicate {
		t.Error("upload after delete flagged duplicate")
	}
	if up.uploads.Load() != 2 {
		t.Errorf("uploads = %d", up.uploads.Load())
	}
}

func TestImageUpload_HostFailureIsFatal(t *testing.T) {
	up := &stubUploader{err: errors.New("host down")}
	svc, store, _ := newImages(t, up, nil)

	_, err := svc.Upload(context.Background(), "photo.png", pngBytes(t), "image/png")
	var uerr *UploadError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want UploadError", err)
	}
	rows, err := store.ListImages(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Error("failed upload left an index row")
	}
}

func TestImageUpload_NoGPSSkipsEnrichment(t *testing.T) {
	enricher := &stubImageEnricher{env: &record.Environment{}}
	svc, _, _ := newImages(t, &stubUploader{id: "u"}, enricher)

	if _, err := svc.Upload(context.Background(), "photo.png", pngBytes(t), "image/png"); err != nil {
		t.Fatal(err)
	}
	if enricher.calls.Load() != 0 {
		t.Error("enrichment ran for an image without GPS EXIF")
	}
}

func TestImageDelete(t *testing.T) {
	up := &stubUploader{id: "host-uuid-1", delErr: errors.New("host flaky")}
	svc, store, _ := newImages(t, up, nil)

	data := pngBytes(t)
	if _, err := svc.Upload(context.Background(), "photo.png", data, "image/png"); err != nil {
		t.Fatal(err)
	}
	hash := canonical.HashBytes(data)

	// Host delete failure is advisory; soft delete still lands.
	if err := svc.Delete(context.Background(), hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if up.deletes.Load() != 1 {
		t.Errorf("host deletes = %d", up.deletes.Load())
	}
	if _, err := store.GetImage(hash); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("image still live: err = %v", err)
	}

	if err := svc.Delete(context.Background(), hash); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestHostedImagesUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct/images/v1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("auth = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("multipart: %v", err)
		}
		if got := r.FormValue("requireSignedURLs"); got != "true" {
			t.Errorf("requireSignedURLs = %q", got)
		}
		if !strings.Contains(r.FormValue("metadata"), `"sha256":"abc"`) {
			t.Errorf("metadata = %q", r.FormValue("metadata"))
		}
		w.Write([]byte(`{"success":true,"result":{"id":"assigned-id"}}`))
	}))
	defer srv.Close()

	h := NewHostedImagesForTest(srv.URL, "https://delivery.test")
	id, err := h.Upload(context.Background(), "p.png", []byte("bytes"), "image/png", map[string]string{"sha256": "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "assigned-id" {
		t.Errorf("id = %q", id)
	}
}

func TestHostedImagesUpload_APIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"errors":[{"message":"quota exceeded"}]}`))
	}))
	defer srv.Close()

	h := NewHostedImagesForTest(srv.URL, "https://delivery.test")
	_, err := h.Upload(context.Background(), "p.png", []byte("bytes"), "image/png", nil)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v", err)
	}
}

func TestHostedImagesSignedURL(t *testing.T) {
	h := NewHostedImagesForTest("http://api.test", "https://delivery.test")
	h.now = testClock()

	signed, err := h.SignedURL("img-uuid", "public")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/acct-hash/img-uuid/public" {
		t.Errorf("path = %q", u.Path)
	}
	if u.Query().Get("exp") == "" || u.Query().Get("sig") == "" {
		t.Errorf("missing exp/sig: %q", signed)
	}
	// Hex signature, fixed clock, fixed key: deterministic.
	again, err := h.SignedURL("img-uuid", "public")
	if err != nil {
		t.Fatal(err)
	}
	if signed != again {
		t.Error("signature not deterministic under a fixed clock")
	}
}
