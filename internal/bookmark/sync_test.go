package bookmark

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kalambet/coffey/internal/storage"
)

type stubLister struct {
	items []Raindrop
	err   error
}

func (s *stubLister) ListNewest(ctx context.Context) ([]Raindrop, error) {
	return s.items, s.err
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSyncerDiscoversNewBookmarks(t *testing.T) {
	store := openTestStore(t)
	// Pin the clock to the wall clock so the 3 h job delay is still in
	// the future when the claim check below runs.
	base := time.Now().UTC().Truncate(time.Second)
	now := func() time.Time { return base }
	s := &Syncer{
		Client:     &stubLister{items: []Raindrop{*testRaindrop()}},
		Store:      store,
		Now:        now,
		DelayHours: func() int { return 3 },
	}

	stats, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.New != 1 || stats.Existing != 0 {
		t.Errorf("stats = %+v", stats)
	}

	item, err := store.GetWorkItem("bookmark:work:4242")
	if err != nil {
		t.Fatalf("work item missing: %v", err)
	}
	var state workState
	if err := json.Unmarshal([]byte(item.Value), &state); err != nil {
		t.Fatalf("parsing work state: %v", err)
	}
	if state.RaindropID != 4242 || state.CollectionID != 7 || state.RetryCount != 0 {
		t.Errorf("state = %+v", state)
	}
	wantExpiry := now().Add(14 * 24 * time.Hour)
	if !item.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expires_at = %v, want %v", item.ExpiresAt, wantExpiry)
	}

	// The job is delayed, so it must not be claimable yet.
	job, err := store.ClaimNextJob([]string{JobType})
	if err != nil {
		t.Fatalf("claiming: %v", err)
	}
	if job != nil {
		t.Errorf("expected delayed job, claimed %+v", job)
	}
}

func TestSyncerImmediateDelayIsClaimable(t *testing.T) {
	store := openTestStore(t)
	s := &Syncer{
		Client:     &stubLister{items: []Raindrop{*testRaindrop()}},
		Store:      store,
		DelayHours: func() int { return 0 },
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	job, err := store.ClaimNextJob([]string{JobType})
	if err != nil {
		t.Fatalf("claiming: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job")
	}
	var payload jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("parsing payload: %v", err)
	}
	if payload.RaindropID != 4242 || payload.CollectionID != 7 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestSyncerSkipsIndexedBookmarks(t *testing.T) {
	store := openTestStore(t)
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

	s := &Syncer{
		Client:     &stubLister{items: []Raindrop{*testRaindrop()}},
		Store:      store,
		Now:        now,
		DelayHours: func() int { return 0 },
	}
	stats, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.New != 0 || stats.Existing != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if _, err := store.GetWorkItem("bookmark:work:4242"); err == nil {
		t.Error("expected no work item for indexed bookmark")
	}
}

func TestSyncerListFailure(t *testing.T) {
	store := openTestStore(t)
	s := &Syncer{
		Client: &stubLister{err: context.DeadlineExceeded},
		Store:  store,
	}
	if _, err := s.Run(context.Background()); err == nil {
		t.Error("expected error when listing fails")
	}
}
