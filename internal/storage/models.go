package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Chatter is one row in the chatter index. The envelope itself lives in
// blob storage under ObjectKey.
type Chatter struct {
	ID        string
	SHA256    string
	CreatedAt time.Time
	Published bool
	Title     string
	ObjectKey string
}

// Image is one row in the image index. A non-nil DeletedAt marks a
// soft-deleted image; the row stays so identical bytes can be detected
// on re-upload.
type Image struct {
	SHA256           string
	UUID             string
	OriginalFilename string
	ContentType      string
	Width            int
	Height           int
	DateTaken        string
	ObjectKey        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// Bookmark is one row in the bookmark index, keyed by the upstream
// raindrop id. Tags is a JSON array stored as text.
type Bookmark struct {
	UUID            int64
	SHA256          string
	Link            string
	Title           string
	Excerpt         string
	Domain          string
	Type            string
	CoverURL        string
	CollectionID    int64
	CollectionTitle string
	Tags            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SyncedAt        time.Time
}

// WorkItem is transient keyed state with an expiry, used by the bookmark
// sync worker to track retries across redeliveries.
type WorkItem struct {
	Key       string
	Value     string
	ExpiresAt time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
