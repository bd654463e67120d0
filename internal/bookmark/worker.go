package bookmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/coffey/internal/blob"
	"github.com/kalambet/coffey/internal/storage"
)

// WorkerStore abstracts the queue and index operations the consumer needs.
type WorkerStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	FailJobAfter(id string, delay time.Duration, reason string) error
	GetWorkItem(key string) (storage.WorkItem, error)
	PutWorkItem(item storage.WorkItem) error
	DeleteWorkItem(key string) error
	BookmarkExists(uuid int64) (bool, error)
	UpsertBookmark(b storage.Bookmark) error
}

// BookmarkAPI is the upstream surface consumed per job.
type BookmarkAPI interface {
	Get(ctx context.Context, id int64) (*Raindrop, error)
	Collections(ctx context.Context) ([]Collection, error)
}

// Archiver downloads the permanent copy for an archived bookmark.
// An empty key with a nil error means the copy is not ready yet.
type Archiver interface {
	Download(ctx context.Context, raindrop *Raindrop, bookmarkSHA string) (string, error)
}

// errDeferred signals that the job was rescheduled for a later artifact
// attempt and must be neither completed nor failed.
var errDeferred = errors.New("job deferred")

// Worker processes bookmark jobs from the SQLite job queue: it archives
// the bookmark envelope, indexes it, and chases the permanent copy.
type Worker struct {
	store    WorkerStore
	client   BookmarkAPI
	blobs    blob.Store
	archiver Archiver
	poll     time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store WorkerStore, client BookmarkAPI, blobs blob.Store, archiver Archiver, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		client:   client,
		blobs:    blobs,
		archiver: archiver,
		poll:     pollInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("bookmark worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single bookmark job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		if errors.Is(err, errDeferred) {
			return true, nil
		}
		w.logger.Warn("bookmark job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	key := workKey(payload.RaindropID)

	item, err := w.store.GetWorkItem(key)
	if errors.Is(err, storage.ErrNotFound) {
		// The work item expired or was cleaned up; nothing to do.
		w.logger.Info("bookmark work item gone, dropping job", "uuid", payload.RaindropID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading work item: %w", err)
	}

	var state workState
	if err := json.Unmarshal([]byte(item.Value), &state); err != nil {
		return fmt.Errorf("parsing work state: %w", err)
	}

	// On the first attempt an already-indexed bookmark means a duplicate
	// discovery; later attempts are deliberate artifact retries and the
	// index row is expected to exist.
	if state.RetryCount == 0 {
		exists, err := w.store.BookmarkExists(payload.RaindropID)
		if err != nil {
			return fmt.Errorf("checking index: %w", err)
		}
		if exists {
			w.logger.Info("bookmark already archived", "uuid", payload.RaindropID)
			return w.store.DeleteWorkItem(key)
		}
	}

	raindrop, err := w.client.Get(ctx, payload.RaindropID)
	if err != nil {
		return fmt.Errorf("fetching bookmark %d: %w", payload.RaindropID, err)
	}

	collection, err := w.lookupCollection(ctx, raindrop.Collection.ID)
	if err != nil {
		return fmt.Errorf("fetching collections: %w", err)
	}

	envelope, data, err := Build(raindrop, collection, w.now)
	if err != nil {
		return fmt.Errorf("building bookmark envelope: %w", err)
	}
	body, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return err
	}
	if err := w.blobs.Put(ctx, ObjectKey(envelope, raindrop), body, "application/json"); err != nil {
		return fmt.Errorf("storing bookmark envelope: %w", err)
	}
	row, err := IndexRow(envelope, data, w.now())
	if err != nil {
		return fmt.Errorf("flattening bookmark %d: %w", payload.RaindropID, err)
	}
	if err := w.store.UpsertBookmark(row); err != nil {
		return fmt.Errorf("indexing bookmark %d: %w", payload.RaindropID, err)
	}

	if raindrop.CacheReady() {
		artifactKey, err := w.archiver.Download(ctx, raindrop, envelope.SHA256)
		if err != nil {
			return fmt.Errorf("archiving permanent copy: %w", err)
		}
		if artifactKey != "" {
			w.logger.Info("bookmark archived", "uuid", raindrop.ID, "artifact", artifactKey)
			return w.store.DeleteWorkItem(key)
		}
	}

	return w.deferRetry(job, key, state)
}

// deferRetry re-queues the job for another artifact attempt, or gives up
// once the ceiling is reached. The bookmark itself stays indexed either
// way; only the permanent copy is outstanding.
func (w *Worker) deferRetry(job *storage.Job, key string, state workState) error {
	if state.RetryCount >= retryCeiling {
		w.logger.Warn("giving up on permanent copy", "uuid", state.RaindropID, "retries", state.RetryCount)
		return w.store.DeleteWorkItem(key)
	}

	state.RetryCount++
	state.LastAttempt = w.now().UTC().Format(time.RFC3339)
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := w.store.PutWorkItem(storage.WorkItem{
		Key:       key,
		Value:     string(stateJSON),
		ExpiresAt: w.now().Add(workItemTTL),
	}); err != nil {
		return fmt.Errorf("updating work item: %w", err)
	}
	if err := w.store.FailJobAfter(job.ID, requeueDelay, "permanent copy not ready"); err != nil {
		return fmt.Errorf("deferring job: %w", err)
	}
	w.logger.Info("permanent copy not ready, deferring", "uuid", state.RaindropID, "retry", state.RetryCount)
	return errDeferred
}

func (w *Worker) lookupCollection(ctx context.Context, id int64) (*Collection, error) {
	if id == 0 {
		return nil, nil
	}
	collections, err := w.client.Collections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range collections {
		if collections[i].ID == id {
			return &collections[i], nil
		}
	}
	return nil, nil
}
