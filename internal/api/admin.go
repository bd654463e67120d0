// Package api exposes the HTTP surface: admin content routes behind
// bearer auth, the public signed-image redirect, and the MCP server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/coffey/internal/bookmark"
	"github.com/kalambet/coffey/internal/content"
	"github.com/kalambet/coffey/internal/record"
	"github.com/kalambet/coffey/internal/storage"
)

const maxChatterBodySize = 1 << 20  // 1MB
const maxImageUploadSize = 32 << 20 // 32MB

// ChatterService creates and reads enriched chatter records.
type ChatterService interface {
	Create(ctx context.Context, req *record.CreateChatterRequest) (*content.ChatterResult, error)
	Get(ctx context.Context, id string) (record.Envelope, error)
}

// ImageService manages hosted image uploads.
type ImageService interface {
	Upload(ctx context.Context, filename string, data []byte, contentType string) (*content.ImageResult, error)
	Delete(ctx context.Context, hash string) error
	List(limit, offset int) ([]storage.Image, error)
	Find(by, value string) (storage.Image, error)
}

// GeocodeSource resolves coordinates to an address.
type GeocodeSource interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*record.Snapshot[record.GeocodingSummary], error)
}

// PlacesSource searches for places around coordinates.
type PlacesSource interface {
	Nearby(ctx context.Context, lat, lng, radiusM float64) (*record.Snapshot[record.NearbyPlacesSummary], error)
}

// SyncRunner triggers one bookmark discovery pass.
type SyncRunner interface {
	Run(ctx context.Context) (bookmark.SyncStats, error)
}

// URLSigner produces time-limited delivery URLs for hosted images.
type URLSigner interface {
	SignedURL(uuid, variant string) (string, error)
}

type AppDeps struct {
	Chatters ChatterService
	Images   ImageService
	Geocode  GeocodeSource
	Places   PlacesSource
	Sync     SyncRunner // optional; if nil, POST /admin/sync returns an error
	Signer   URLSigner
	Token    string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/images/{ref}", handleImageRedirect(deps))

	r.Route("/admin", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/chatter", handleCreateChatter(deps))
		r.Get("/chatter/{id}", handleGetChatter(deps))
		r.Post("/images", handleUploadImage(deps))
		r.Get("/images", handleListImages(deps))
		r.Delete("/images/{sha256}", handleDeleteImage(deps))
		r.Get("/geocode", handleGeocode(deps))
		r.Get("/places", handlePlaces(deps))
		r.Post("/sync", handleSync(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateChatter(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxChatterBodySize)
		defer r.Body.Close()

		var req record.CreateChatterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		result, err := deps.Chatters.Create(r.Context(), &req)
		if err != nil {
			writeServiceError(w, err, "failed to create chatter")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":         result.Envelope.ID,
			"sha256":     result.Envelope.SHA256,
			"object_key": result.ObjectKey,
			"stored":     result.Stored,
		})
	}
}

func handleGetChatter(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelope, err := deps.Chatters.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "chatter not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load chatter: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(envelope)
	}
}

func handleUploadImage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImageUploadSize)
		if err := r.ParseMultipartForm(maxImageUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file field is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read file: %v", err)
			return
		}

		result, err := deps.Images.Upload(r.Context(), header.Filename, data, header.Header.Get("Content-Type"))
		if err != nil {
			writeServiceError(w, err, "failed to upload image")
			return
		}

		status := http.StatusCreated
		if result.IsDuplicate {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(result)
	}
}

func handleListImages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if by, value, ok := findParam(r); ok {
			img, err := deps.Images.Find(by, value)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "image not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to find image: %v", err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode([]storage.Image{img})
			return
		}

		limit := parseIntParam(r, "limit", 20, 50)
		offset := parseIntParam(r, "offset", 0, 0)
		images, err := deps.Images.List(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list images: %v", err)
			return
		}
		if images == nil {
			images = []storage.Image{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(images)
	}
}

func findParam(r *http.Request) (by, value string, ok bool) {
	for _, key := range []string{"uuid", "sha256", "filename"} {
		if v := r.URL.Query().Get(key); v != "" {
			return key, v, true
		}
	}
	return "", "", false
}

func handleDeleteImage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Images.Delete(r.Context(), chi.URLParam(r, "sha256"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "image not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete image: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

// handleImageRedirect serves the public image URL shape /images/sha_{hash}
// with a 302 to a signed delivery URL. The hash never reveals the hosting
// uuid; lookup goes through the index.
func handleImageRedirect(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "ref")
		hash, found := strings.CutPrefix(ref, "sha_")
		if !found || hash == "" {
			httpError(w, http.StatusNotFound, "not_found", "image not found")
			return
		}

		img, err := deps.Images.Find("sha256", hash)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "image not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve image: %v", err)
			return
		}

		variant := r.URL.Query().Get("variant")
		if variant == "" {
			variant = "public"
		}
		location, err := deps.Signer.SignedURL(img.UUID, variant)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to sign url: %v", err)
			return
		}

		http.Redirect(w, r, location, http.StatusFound)
	}
}

func handleGeocode(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lat, lng, err := parseCoordinates(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		snap, err := deps.Geocode.ReverseGeocode(r.Context(), lat, lng)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "reverse geocoding failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	}
}

func handlePlaces(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lat, lng, err := parseCoordinates(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		radius, _ := strconv.ParseFloat(r.URL.Query().Get("radius"), 64)

		snap, err := deps.Places.Nearby(r.Context(), lat, lng, radius)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "places lookup failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	}
}

func handleSync(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Sync == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "bookmark sync is not configured")
			return
		}

		stats, err := deps.Sync.Run(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "bookmark sync failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

func parseCoordinates(r *http.Request) (float64, float64, error) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("lat is required and must be a number")
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("lng is required and must be a number")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("coordinates out of range")
	}
	return lat, lng, nil
}

// writeServiceError maps content-layer errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error, context string) {
	var validation *content.ValidationError
	var upload *content.UploadError
	switch {
	case errors.As(err, &validation):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", validation.Msg)
	case errors.Is(err, record.ErrInvalidPlace):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s: %v", context, err)
	case errors.As(err, &upload):
		httpError(w, http.StatusBadGateway, "api_error", "%v", upload)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", context, err)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
