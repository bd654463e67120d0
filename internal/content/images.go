package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kalambet/coffey/internal/blob"
	"github.com/kalambet/coffey/internal/canonical"
	"github.com/kalambet/coffey/internal/record"
	"github.com/kalambet/coffey/internal/storage"
)

var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// ImageEnricher enriches an image's GPS location.
type ImageEnricher interface {
	EnvironmentForImage(ctx context.Context, lat, lng float64, takenAt time.Time) *record.Environment
}

// Images uploads, indexes and deletes image records.
type Images struct {
	Store    *storage.Store
	Blobs    blob.Store
	Uploader Uploader
	Enricher ImageEnricher
	Logger   *slog.Logger
	Now      func() time.Time
}

// ImageResult is the upload response. IsDuplicate means identical bytes
// were already indexed and nothing new was uploaded.
type ImageResult struct {
	ObjectKey   string `json:"object_key"`
	UUID        string `json:"uuid"`
	SHA256      string `json:"sha256"`
	UploadedAt  string `json:"uploaded_at"`
	IsDuplicate bool   `json:"is_duplicate"`
}

func (s *Images) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Images) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Upload validates, deduplicates, enriches and persists one image. The
// hash is computed before anything else so duplicate bytes short-circuit
// with zero host traffic. The host upload is the only fatal persistence
// step; blob and index writes degrade to log lines.
func (s *Images) Upload(ctx context.Context, filename string, data []byte, contentType string) (*ImageResult, error) {
	if _, ok := allowedImageTypes[contentType]; !ok {
		return nil, validationErrorf("invalid file type %q", contentType)
	}
	if len(data) == 0 {
		return nil, validationErrorf("empty file")
	}

	hash := canonical.HashBytes(data)

	if existing, err := s.Store.GetImage(hash); err == nil {
		return &ImageResult{
			ObjectKey:   "images/sha_" + hash,
			UUID:        existing.UUID,
			SHA256:      hash,
			UploadedAt:  existing.CreatedAt.UTC().Format(time.RFC3339),
			IsDuplicate: true,
		}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	fileInfo := extractFileInfo(data, contentType)
	exifInfo := extractExif(data)

	var env *record.Environment
	if exifInfo.HasLocation() && s.Enricher != nil {
		var takenAt time.Time
		if exifInfo.DateTimeOriginal != "" {
			takenAt, _ = record.ParseTime(exifInfo.DateTimeOriginal)
		}
		env = s.Enricher.EnvironmentForImage(ctx, *exifInfo.Latitude, *exifInfo.Longitude, takenAt)
		if env.Empty() {
			env = nil
		}
	}

	uploadedAt := s.now().UTC().Format(time.RFC3339)
	hostMeta := hostMetadata(filename, hash, uploadedAt, fileInfo, exifInfo)

	id, err := s.Uploader.Upload(ctx, filename, data, contentType, hostMeta)
	if err != nil {
		return nil, &UploadError{Err: err}
	}

	imageData := record.ImageData{
		UUID:             id,
		OriginalFilename: filename,
		File:             fileInfo,
		Exif:             exifInfo,
		Environment:      env,
	}
	envelope := record.Envelope{
		Type:          record.KindImage,
		ID:            "sha256:" + hash,
		SchemaVersion: record.SchemaVersion,
		CreatedAt:     uploadedAt,
		SHA256:        hash,
		Data:          imageData,
	}

	// Object key date prefers when the photo was taken over when it was
	// uploaded.
	date := blob.DateOf(uploadedAt)
	dateTaken := ""
	if exifInfo != nil && exifInfo.DateTimeOriginal != "" {
		dateTaken = exifInfo.DateTimeOriginal
		date = blob.DateOf(dateTaken)
	}
	objectKey := blob.ImageKey(date, hash)

	if payload, err := json.MarshalIndent(envelope, "", "  "); err == nil {
		if err := s.Blobs.Put(ctx, objectKey, payload, "application/json"); err != nil {
			s.log().Error("image blob write failed", "key", objectKey, "error", err)
		}
	}

	createdAt, _ := record.ParseTime(uploadedAt)
	row := storage.Image{
		SHA256:           hash,
		UUID:             id,
		OriginalFilename: filename,
		ContentType:      contentType,
		Width:            fileInfo.Width,
		Height:           fileInfo.Height,
		DateTaken:        dateTaken,
		ObjectKey:        objectKey,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	if err := s.Store.SaveImage(row); err != nil {
		s.log().Error("image index write failed", "sha256", hash, "error", err)
	}

	return &ImageResult{
		ObjectKey:  "images/sha_" + hash,
		UUID:       id,
		SHA256:     hash,
		UploadedAt: uploadedAt,
	}, nil
}

// Delete soft-deletes an image. The hosted copy is removed best-effort;
// the index row is what gates serving and dedup.
func (s *Images) Delete(ctx context.Context, hash string) error {
	img, err := s.Store.GetImage(hash)
	if err != nil {
		return err
	}
	if err := s.Uploader.Delete(ctx, img.UUID); err != nil {
		s.log().Warn("image host delete failed", "uuid", img.UUID, "error", err)
	}
	return s.Store.SoftDeleteImage(hash, s.now())
}

// List returns live image index rows, newest first.
func (s *Images) List(limit, offset int) ([]storage.Image, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.ListImages(limit, offset)
}

// Find looks an image up by uuid, sha256 or original filename.
func (s *Images) Find(by, value string) (storage.Image, error) {
	switch by {
	case "uuid":
		return s.Store.GetImageByUUID(value)
	case "sha256":
		return s.Store.GetImage(value)
	case "filename":
		return s.Store.GetImageByFilename(value)
	default:
		return storage.Image{}, validationErrorf("unknown lookup field %q", by)
	}
}

func hostMetadata(filename, hash, uploadedAt string, file record.ImageFileInfo, exif *record.ImageExif) map[string]string {
	meta := map[string]string{
		"uploaded-at":       uploadedAt,
		"original-filename": filename,
		"file-size":         strconv.Itoa(file.Size),
		"sha256":            hash,
	}
	if file.Width > 0 {
		meta["width"] = strconv.Itoa(file.Width)
	}
	if file.Height > 0 {
		meta["height"] = strconv.Itoa(file.Height)
	}
	if file.Format != "" {
		meta["format"] = file.Format
	}
	if exif != nil {
		if exif.Make != "" {
			meta["exif-make"] = exif.Make
		}
		if exif.Model != "" {
			meta["exif-model"] = exif.Model
		}
		if exif.LensModel != "" {
			meta["exif-lens-model"] = exif.LensModel
		}
		if exif.DateTimeOriginal != "" {
			meta["exif-date-time-original"] = exif.DateTimeOriginal
		}
		if exif.HasLocation() {
			meta["exif-gps-latitude"] = fmt.Sprintf("%v", *exif.Latitude)
			meta["exif-gps-longitude"] = fmt.Sprintf("%v", *exif.Longitude)
		}
		if exif.ISO != nil {
			meta["exif-iso"] = strconv.Itoa(*exif.ISO)
		}
	}
	return meta
}
