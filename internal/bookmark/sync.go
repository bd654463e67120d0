package bookmark

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/coffey/internal/storage"
)

const (
	// JobType is the queue type claimed by the bookmark worker.
	JobType = "bookmark_sync"

	// workItemTTL bounds how long a bookmark stays in the retry loop
	// before its work state evaporates.
	workItemTTL = 14 * 24 * time.Hour

	// retryCeiling is the maximum number of artifact retries per
	// bookmark. The metadata is already archived by then; only the
	// permanent copy is given up on.
	retryCeiling = 14

	// requeueDelay spaces artifact retries; upstream caches are slow.
	requeueDelay = 12 * time.Hour

	// Initial processing is spread over 1–11 hours so a burst of saved
	// links doesn't hammer the upstream API in one minute.
	minInitialDelayHours = 1
	maxInitialDelayHours = 11

	// Queue-level redelivery for transient errors (network, API). The
	// artifact retry loop is tracked separately in the work item.
	jobMaxAttempts = 3
)

func workKey(id int64) string {
	return fmt.Sprintf("bookmark:work:%d", id)
}

// workState is the retry bookkeeping stored in a work item.
type workState struct {
	RaindropID   int64  `json:"raindrop_id"`
	CollectionID int64  `json:"collection_id"`
	CreatedAt    string `json:"created_at"`
	RetryCount   int    `json:"retry_count"`
	LastAttempt  string `json:"last_attempt_at,omitempty"`
}

// jobPayload is the queue message.
type jobPayload struct {
	RaindropID   int64 `json:"raindrop_id"`
	CollectionID int64 `json:"collection_id"`
}

// SyncStore is the storage surface the producer needs.
type SyncStore interface {
	BookmarkExists(uuid int64) (bool, error)
	PutWorkItem(item storage.WorkItem) error
	EnqueueJob(job storage.Job) error
}

// Lister fetches the newest upstream bookmarks.
type Lister interface {
	ListNewest(ctx context.Context) ([]Raindrop, error)
}

// Syncer is the producer half: it scans the newest upstream bookmarks
// and opens a work item plus delayed job for each one not yet archived.
type Syncer struct {
	Client Lister
	Store  SyncStore
	Logger *slog.Logger
	Now    func() time.Time

	// DelayHours overrides the random initial delay; tests pin it.
	DelayHours func() int
}

// SyncStats summarizes one producer pass.
type SyncStats struct {
	New      int `json:"new"`
	Existing int `json:"existing"`
}

func (s *Syncer) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Syncer) delayHours() int {
	if s.DelayHours != nil {
		return s.DelayHours()
	}
	return minInitialDelayHours + rand.IntN(maxInitialDelayHours)
}

// Run performs one sync pass. Known bookmarks are skipped by index
// lookup; discovery is idempotent because work items replace by key.
func (s *Syncer) Run(ctx context.Context) (SyncStats, error) {
	var stats SyncStats

	items, err := s.Client.ListNewest(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing bookmarks: %w", err)
	}
	if len(items) == 0 {
		s.log().Info("bookmark sync: nothing upstream")
		return stats, nil
	}

	now := s.now()
	for _, r := range items {
		exists, err := s.Store.BookmarkExists(r.ID)
		if err != nil {
			return stats, fmt.Errorf("checking bookmark %d: %w", r.ID, err)
		}
		if exists {
			stats.Existing++
			continue
		}

		state := workState{
			RaindropID:   r.ID,
			CollectionID: r.Collection.ID,
			CreatedAt:    now.UTC().Format(time.RFC3339),
		}
		stateJSON, err := json.Marshal(state)
		if err != nil {
			return stats, err
		}
		if err := s.Store.PutWorkItem(storage.WorkItem{
			Key:       workKey(r.ID),
			Value:     string(stateJSON),
			ExpiresAt: now.Add(workItemTTL),
		}); err != nil {
			return stats, fmt.Errorf("creating work item for %d: %w", r.ID, err)
		}

		payload, err := json.Marshal(jobPayload{RaindropID: r.ID, CollectionID: r.Collection.ID})
		if err != nil {
			return stats, err
		}
		delay := time.Duration(s.delayHours()) * time.Hour
		if err := s.Store.EnqueueJob(storage.Job{
			ID:          uuid.NewString(),
			Type:        JobType,
			PayloadJSON: string(payload),
			MaxAttempts: jobMaxAttempts,
			RunAfter:    now.Add(delay),
		}); err != nil {
			return stats, fmt.Errorf("enqueueing bookmark %d: %w", r.ID, err)
		}

		s.log().Info("bookmark discovered", "uuid", r.ID, "delay", delay)
		stats.New++
	}

	s.log().Info("bookmark sync complete", "new", stats.New, "existing", stats.Existing)
	return stats, nil
}
