package bookmark

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/coffey/internal/blob"
	"github.com/kalambet/coffey/internal/storage"
)

type stubAPI struct {
	raindrop    *Raindrop
	collections []Collection
	getErr      error
	getCalls    atomic.Int32
}

func (s *stubAPI) Get(ctx context.Context, id int64) (*Raindrop, error) {
	s.getCalls.Add(1)
	if s.getErr != nil {
		return nil, s.getErr
	}
	r := *s.raindrop
	return &r, nil
}

func (s *stubAPI) Collections(ctx context.Context) ([]Collection, error) {
	return s.collections, nil
}

type stubArchiver struct {
	key   string
	err   error
	calls atomic.Int32
}

func (s *stubArchiver) Download(ctx context.Context, raindrop *Raindrop, bookmarkSHA string) (string, error) {
	s.calls.Add(1)
	return s.key, s.err
}

func seedWork(t *testing.T, store *storage.Store, retryCount int, delayHours int) {
	t.Helper()
	s := &Syncer{
		Client:     &stubLister{items: []Raindrop{*testRaindrop()}},
		Store:      store,
		DelayHours: func() int { return delayHours },
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	if retryCount > 0 {
		item, err := store.GetWorkItem("bookmark:work:4242")
		if err != nil {
			t.Fatal(err)
		}
		var state workState
		if err := json.Unmarshal([]byte(item.Value), &state); err != nil {
			t.Fatal(err)
		}
		state.RetryCount = retryCount
		raw, err := json.Marshal(state)
		if err != nil {
			t.Fatal(err)
		}
		item.Value = string(raw)
		if err := store.PutWorkItem(item); err != nil {
			t.Fatal(err)
		}
	}
}

func readyRaindrop() *Raindrop {
	r := testRaindrop()
	r.Cache = &CacheInfo{Status: "ready", Created: "2026-08-20T12:00:00Z"}
	return r
}

func TestWorkerRunOnceNoJob(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &stubAPI{}, blob.NewMemory(), &stubArchiver{}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("expected no job to be processed")
	}
}

func TestWorkerDropsJobWithoutWorkItem(t *testing.T) {
	store := openTestStore(t)
	seedWork(t, store, 0, 0)
	if err := store.DeleteWorkItem("bookmark:work:4242"); err != nil {
		t.Fatal(err)
	}

	api := &stubAPI{raindrop: readyRaindrop()}
	w := NewWorker(store, api, blob.NewMemory(), &stubArchiver{}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected the job to be claimed")
	}
	if n := api.getCalls.Load(); n != 0 {
		t.Errorf("expected no API calls, got %d", n)
	}
	if exists, _ := store.BookmarkExists(4242); exists {
		t.Error("expected no bookmark to be indexed")
	}
}

func TestWorkerCleansUpDuplicateDiscovery(t *testing.T) {
	store := openTestStore(t)
	seedWork(t, store, 0, 0)

	now := fixedClock(t)
	envelope, data, err := Build(testRaindrop(), nil, now)
	if err != nil {
		t.Fatal(err)
	}
	row, err := IndexRow(envelope, data, now())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertBookmark(row); err != nil {
		t.Fatal(err)
	}

	api := &stubAPI{raindrop: readyRaindrop()}
	w := NewWorker(store, api, blob.NewMemory(), &stubArchiver{}, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n := api.getCalls.Load(); n != 0 {
		t.Errorf("expected no API calls, got %d", n)
	}
	if _, err := store.GetWorkItem("bookmark:work:4242"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected work item to be deleted, got %v", err)
	}
}

func TestWorkerArchivesBookmarkWithArtifact(t *testing.T) {
	store := openTestStore(t)
	seedWork(t, store, 0, 0)

	blobs := blob.NewMemory()
	api := &stubAPI{
		raindrop:    readyRaindrop(),
		collections: []Collection{{ID: 7, Title: "Go"}},
	}
	archiver := &stubArchiver{key: "artifacts/json/2026-08-20-sha_abc.json"}
	w := NewWorker(store, api, blobs, archiver, 0)
	w.now = fixedClock(t)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected the job to be processed")
	}

	row, err := store.GetBookmark(4242)
	if err != nil {
		t.Fatalf("bookmark not indexed: %v", err)
	}
	if row.CollectionTitle != "Go" {
		t.Errorf("collection title = %q", row.CollectionTitle)
	}

	key := "bookmarks/json/2026-08-20-sha_" + row.SHA256 + ".json"
	if _, err := blobs.Get(context.Background(), key); err != nil {
		t.Errorf("bookmark envelope missing at %s: %v", key, err)
	}
	if n := archiver.calls.Load(); n != 1 {
		t.Errorf("archiver calls = %d", n)
	}
	if _, err := store.GetWorkItem("bookmark:work:4242"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected work item to be deleted, got %v", err)
	}
}

func TestWorkerDefersWhenCopyNotReady(t *testing.T) {
	store := openTestStore(t)
	seedWork(t, store, 0, 0)

	r := testRaindrop()
	r.Cache = &CacheInfo{Status: "retry"}
	api := &stubAPI{raindrop: r}
	archiver := &stubArchiver{}
	w := NewWorker(store, api, blob.NewMemory(), archiver, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected the job to be processed")
	}

	// Metadata lands immediately; only the permanent copy waits.
	if exists, _ := store.BookmarkExists(4242); !exists {
		t.Error("expected bookmark to be indexed")
	}
	if n := archiver.calls.Load(); n != 0 {
		t.Errorf("expected no artifact attempt, got %d", n)
	}

	item, err := store.GetWorkItem("bookmark:work:4242")
	if err != nil {
		t.Fatalf("work item missing: %v", err)
	}
	var state workState
	if err := json.Unmarshal([]byte(item.Value), &state); err != nil {
		t.Fatal(err)
	}
	if state.RetryCount != 1 {
		t.Errorf("retry_count = %d", state.RetryCount)
	}

	// The job is deferred, not completed: it exists but is not claimable.
	job, err := store.ClaimNextJob([]string{JobType})
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Errorf("expected deferred job, claimed %+v", job)
	}
}

func TestWorkerRetryAttemptsArtifactAgain(t *testing.T) {
	store := openTestStore(t)
	seedWork(t, store, 3, 0)

	blobs := blob.NewMemory()
	api := &stubAPI{raindrop: readyRaindrop()}
	archiver := &stubArchiver{key: "artifacts/json/2026-08-20-sha_abc.json"}
	w := NewWorker(store, api, blobs, archiver, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n := archiver.calls.Load(); n != 1 {
		t.Errorf("archiver calls = %d", n)
	}
	if _, err := store.GetWorkItem("bookmark:work:4242"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected work item to be deleted after success, got %v", err)
	}
}

func TestWorkerGivesUpAtRetryCeiling(t *testing.T) {
	store := openTestStore(t)
	seedWork(t, store, 14, 0)

	r := testRaindrop()
	r.Cache = &CacheInfo{Status: "retry"}
	api := &stubAPI{raindrop: r}
	w := NewWorker(store, api, blob.NewMemory(), &stubArchiver{}, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// The bookmark stays indexed; only the retry loop ends.
	if exists, _ := store.BookmarkExists(4242); !exists {
		t.Error("expected bookmark row to survive")
	}
	if _, err := store.GetWorkItem("bookmark:work:4242"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected work item to be deleted, got %v", err)
	}
}

func TestWorkerFetchFailureFailsJob(t *testing.T) {
	store := openTestStore(t)
	seedWork(t, store, 0, 0)

	api := &stubAPI{getErr: errors.New("upstream down")}
	w := NewWorker(store, api, blob.NewMemory(), &stubArchiver{}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected the job to be claimed")
	}

	// Failed with backoff: the work item survives for the retry.
	if _, err := store.GetWorkItem("bookmark:work:4242"); err != nil {
		t.Errorf("expected work item to survive, got %v", err)
	}
	if exists, _ := store.BookmarkExists(4242); exists {
		t.Error("expected no bookmark to be indexed")
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &stubAPI{}, blob.NewMemory(), &stubArchiver{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(doneCh)
	}()
	cancel()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
