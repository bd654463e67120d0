package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the content indexes (chatter,
// images, bookmarks), the sync work items and the job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "coffey.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Chatter index ---

func (s *Store) SaveChatter(c Chatter) error {
	published := 0
	if c.Published {
		published = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO chatter (id, sha256, created_at, published, title, object_key)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.SHA256, c.CreatedAt.UTC().Format(time.RFC3339), published, c.Title, c.ObjectKey,
	)
	return err
}

func (s *Store) GetChatter(id string) (Chatter, error) {
	var c Chatter
	var createdAt string
	var published int
	err := s.db.QueryRow(`
		SELECT id, sha256, created_at, published, title, object_key
		FROM chatter WHERE id = ?`, id,
	).Scan(&c.ID, &c.SHA256, &createdAt, &published, &c.Title, &c.ObjectKey)
	if err == sql.ErrNoRows {
		return Chatter{}, ErrNotFound
	}
	if err != nil {
		return Chatter{}, err
	}
	c.Published = published != 0
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Chatter{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return c, nil
}

func (s *Store) ListChatter(limit int) ([]Chatter, error) {
	rows, err := s.db.Query(`
		SELECT id, sha256, created_at, published, title, object_key
		FROM chatter ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Chatter
	for rows.Next() {
		var c Chatter
		var createdAt string
		var published int
		if err := rows.Scan(&c.ID, &c.SHA256, &createdAt, &published, &c.Title, &c.ObjectKey); err != nil {
			return nil, err
		}
		c.Published = published != 0
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// --- Image index ---

func (s *Store) SaveImage(img Image) error {
	_, err := s.db.Exec(`
		INSERT INTO images (sha256, uuid, original_filename, content_type, width, height, date_taken, object_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.SHA256, img.UUID, img.OriginalFilename, img.ContentType, img.Width, img.Height,
		img.DateTaken, img.ObjectKey,
		img.CreatedAt.UTC().Format(time.RFC3339), img.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

const imageColumns = `sha256, uuid, original_filename, content_type, width, height, date_taken, object_key, created_at, updated_at, deleted_at`

func scanImage(row interface{ Scan(...any) error }) (Image, error) {
	var img Image
	var filename, contentType, dateTaken sql.NullString
	var width, height sql.NullInt64
	var createdAt, updatedAt string
	var deletedAt sql.NullString
	err := row.Scan(&img.SHA256, &img.UUID, &filename, &contentType, &width, &height,
		&dateTaken, &img.ObjectKey, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return Image{}, ErrNotFound
	}
	if err != nil {
		return Image{}, err
	}
	img.OriginalFilename = filename.String
	img.ContentType = contentType.String
	img.Width = int(width.Int64)
	img.Height = int(height.Int64)
	img.DateTaken = dateTaken.String
	if img.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Image{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if img.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Image{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339, deletedAt.String)
		if err != nil {
			return Image{}, fmt.Errorf("parsing deleted_at: %w", err)
		}
		img.DeletedAt = &t
	}
	return img, nil
}

// GetImage finds a live image row by sha256. Soft-deleted rows are not
// returned; callers that need them use GetImageAny.
func (s *Store) GetImage(sha256 string) (Image, error) {
	row := s.db.QueryRow(`SELECT `+imageColumns+` FROM images WHERE sha256 = ? AND deleted_at IS NULL`, sha256)
	return scanImage(row)
}

// GetImageAny finds an image row by sha256 regardless of deletion state.
func (s *Store) GetImageAny(sha256 string) (Image, error) {
	row := s.db.QueryRow(`SELECT `+imageColumns+` FROM images WHERE sha256 = ?`, sha256)
	return scanImage(row)
}

func (s *Store) GetImageByUUID(uuid string) (Image, error) {
	row := s.db.QueryRow(`SELECT `+imageColumns+` FROM images WHERE uuid = ? AND deleted_at IS NULL`, uuid)
	return scanImage(row)
}

func (s *Store) GetImageByFilename(filename string) (Image, error) {
	row := s.db.QueryRow(`SELECT `+imageColumns+` FROM images WHERE original_filename = ? AND deleted_at IS NULL ORDER BY created_at DESC LIMIT 1`, filename)
	return scanImage(row)
}

func (s *Store) ListImages(limit, offset int) ([]Image, error) {
	rows, err := s.db.Query(`SELECT `+imageColumns+` FROM images WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, img)
	}
	return results, rows.Err()
}

// SoftDeleteImage marks a live image as deleted. ErrNotFound if the
// image does not exist or is already deleted.
func (s *Store) SoftDeleteImage(sha256 string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE images SET deleted_at = ?, updated_at = ? WHERE sha256 = ? AND deleted_at IS NULL`,
		at.UTC().Format(time.RFC3339), at.UTC().Format(time.RFC3339), sha256)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Bookmark index ---

func (s *Store) UpsertBookmark(b Bookmark) error {
	var updatedAt any
	if !b.UpdatedAt.IsZero() {
		updatedAt = b.UpdatedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO bookmark (uuid, sha256, link, title, excerpt, domain, type, cover_url, collection_id, collection_title, tags, created_at, updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UUID, b.SHA256, b.Link, b.Title, nullIfEmpty(b.Excerpt), nullIfEmpty(b.Domain),
		nullIfEmpty(b.Type), nullIfEmpty(b.CoverURL), nullIfZero(b.CollectionID),
		nullIfEmpty(b.CollectionTitle), nullIfEmpty(b.Tags),
		b.CreatedAt.UTC().Format(time.RFC3339), updatedAt, b.SyncedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) BookmarkExists(uuid int64) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM bookmark WHERE uuid = ?`, uuid).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetBookmark(uuid int64) (Bookmark, error) {
	var b Bookmark
	var excerpt, domain, typ, cover, collTitle, tags, updatedAt sql.NullString
	var collID sql.NullInt64
	var createdAt, syncedAt string
	err := s.db.QueryRow(`
		SELECT uuid, sha256, link, title, excerpt, domain, type, cover_url, collection_id, collection_title, tags, created_at, updated_at, synced_at
		FROM bookmark WHERE uuid = ?`, uuid,
	).Scan(&b.UUID, &b.SHA256, &b.Link, &b.Title, &excerpt, &domain, &typ, &cover,
		&collID, &collTitle, &tags, &createdAt, &updatedAt, &syncedAt)
	if err == sql.ErrNoRows {
		return Bookmark{}, ErrNotFound
	}
	if err != nil {
		return Bookmark{}, err
	}
	b.Excerpt = excerpt.String
	b.Domain = domain.String
	b.Type = typ.String
	b.CoverURL = cover.String
	b.CollectionID = collID.Int64
	b.CollectionTitle = collTitle.String
	b.Tags = tags.String
	if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Bookmark{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if updatedAt.Valid {
		if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt.String); err != nil {
			return Bookmark{}, fmt.Errorf("parsing updated_at: %w", err)
		}
	}
	if b.SyncedAt, err = time.Parse(time.RFC3339, syncedAt); err != nil {
		return Bookmark{}, fmt.Errorf("parsing synced_at: %w", err)
	}
	return b, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

// --- Work items ---

// PutWorkItem inserts or replaces a work item.
func (s *Store) PutWorkItem(item WorkItem) error {
	_, err := s.db.Exec(`
		INSERT INTO work_items (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		item.Key, item.Value, item.ExpiresAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetWorkItem returns a live work item. Expired items are removed lazily
// and reported as ErrNotFound.
func (s *Store) GetWorkItem(key string) (WorkItem, error) {
	var item WorkItem
	var expiresAt string
	err := s.db.QueryRow(`SELECT key, value, expires_at FROM work_items WHERE key = ?`, key).
		Scan(&item.Key, &item.Value, &expiresAt)
	if err == sql.ErrNoRows {
		return WorkItem{}, ErrNotFound
	}
	if err != nil {
		return WorkItem{}, err
	}
	if item.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return WorkItem{}, fmt.Errorf("parsing expires_at: %w", err)
	}
	if !item.ExpiresAt.After(time.Now()) {
		s.db.Exec(`DELETE FROM work_items WHERE key = ?`, item.Key)
		return WorkItem{}, ErrNotFound
	}
	return item, nil
}

func (s *Store) DeleteWorkItem(key string) error {
	_, err := s.db.Exec(`DELETE FROM work_items WHERE key = ?`, key)
	return err
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}

// FailJobAfter reschedules a running job to run again after a fixed
// delay, without the attempt counting toward max_attempts. Used when a
// job is deliberately deferred (artifact not ready yet) rather than
// failed.
func (s *Store) FailJobAfter(id string, delay time.Duration, reason string) error {
	now := time.Now().UTC()
	runAfter := now.Add(delay)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'pending', last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
		reason, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
