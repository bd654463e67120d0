// Package enrich orchestrates environmental and metadata enrichment for
// chatter creation: place resolution, the parallel provider fan-out, link
// previews and watched-media lookup. Only place-id resolution is fatal;
// every other branch degrades to an absent key.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/coffey/internal/record"
)

const fanOutConcurrency = 7

// Sources for each enrichment branch. The concrete implementations live
// in internal/providers; any branch left nil is skipped.
type (
	WeatherSource interface {
		Fetch(ctx context.Context, lat, lng float64, target time.Time) (*record.Snapshot[record.WeatherSummary], error)
	}

	AirQualitySource interface {
		Fetch(ctx context.Context, lat, lng float64) (*record.Snapshot[record.AirQualitySummary], error)
	}

	PollenSource interface {
		Fetch(ctx context.Context, lat, lng float64) (*record.Snapshot[record.PollenSummary], error)
	}

	ElevationSource interface {
		Fetch(ctx context.Context, lat, lng float64) (*record.Snapshot[record.ElevationSummary], error)
	}

	GeocodeSource interface {
		ReverseGeocode(ctx context.Context, lat, lng float64) (*record.Snapshot[record.GeocodingSummary], error)
	}

	PlacesSource interface {
		Nearby(ctx context.Context, lat, lng, radiusM float64) (*record.Snapshot[record.NearbyPlacesSummary], error)
		Details(ctx context.Context, placeID string) (*record.Snapshot[record.PlaceSummary], error)
	}

	LinkSource interface {
		EnrichLinks(ctx context.Context, links []record.Link) []record.Link
	}

	MediaSource interface {
		Search(ctx context.Context, mediaType, title string) (int, error)
		Details(ctx context.Context, mediaType string, id int) (*record.Snapshot[record.MediaSummary], error)
	}
)

// Enricher fans a creation request out to the configured sources and
// merges the results into a ChatterData payload.
type Enricher struct {
	Weather    WeatherSource
	AirQuality AirQualitySource
	Pollen     PollenSource
	Elevation  ElevationSource
	Geocode    GeocodeSource
	Places     PlacesSource
	Links      LinkSource
	Media      MediaSource

	Logger *slog.Logger
	Now    func() time.Time
}

func (e *Enricher) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Enricher) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// branchResult is one settled enrichment branch: a tag for logging and a
// merge function that writes the branch's snapshot into the environment.
// Failed branches carry err and a nil apply.
type branchResult struct {
	branch string
	apply  func(*record.Environment)
	err    error
}

// Enrich builds the persisted chatter payload from a creation request.
// Place validation and place-id resolution happen before any other
// network work; their failures abort the whole call. All remaining
// branches settle independently and failures only drop their key.
func (e *Enricher) Enrich(ctx context.Context, req *record.CreateChatterRequest) (*record.ChatterData, error) {
	if err := req.Place.Validate(); err != nil {
		return nil, err
	}

	place, placeSnap, err := e.resolvePlace(ctx, req.Place)
	if err != nil {
		return nil, err
	}

	publish := true
	if req.Publish != nil {
		publish = *req.Publish
	}
	data := &record.ChatterData{
		Kind:         req.Kind,
		Content:      req.Content,
		Comment:      req.Comment,
		Title:        req.Title,
		Tags:         orEmpty(req.Tags),
		Images:       orEmpty(req.Images),
		Publish:      publish,
		LocationHint: req.LocationHint,
		Place:        place,
	}

	if len(req.Links) > 0 {
		data.Links = req.Links
		if e.Links != nil {
			data.Links = e.Links.EnrichLinks(ctx, req.Links)
		}
	}

	if req.Watched != nil {
		data.Watched = e.lookupWatched(ctx, req.Watched)
	}

	coords := extractCoordinates(req.LocationHint, place)
	if coords == nil {
		return data, nil
	}

	target := e.now()
	if req.CreatedAt != "" {
		t, err := record.ParseTime(req.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		target = t
	}

	data.Environment = e.fanOut(ctx, coords.Lat, coords.Lng, target, place, placeSnap)
	return data, nil
}

// resolvePlace turns a place-id-only reference into a fully populated
// one. The details snapshot is reused later as the environment's place
// key so the lookup happens at most once. A failed lookup for an
// unresolved reference is fatal: persisting a bare id would lose the
// display fields forever, since the record is immutable once hashed.
func (e *Enricher) resolvePlace(ctx context.Context, place *record.PlaceInput) (*record.PlaceInput, *record.Snapshot[record.PlaceSummary], error) {
	if place == nil || place.ProviderID() == "" || place.Resolved() {
		return place, nil, nil
	}
	if e.Places == nil {
		return nil, nil, fmt.Errorf("place id %q given but no place source configured", place.ProviderID())
	}

	snap, err := e.Places.Details(ctx, place.ProviderID())
	if err != nil {
		return nil, nil, fmt.Errorf("resolve place %q: %w", place.ProviderID(), err)
	}

	short := snap.Summary.ShortAddress
	if short == "" {
		short = snap.Summary.Name
	}
	resolved := &record.PlaceInput{
		Name:             snap.Summary.Name,
		FormattedAddress: snap.Summary.FormattedAddress,
		ShortAddress:     short,
		Location:         &record.Coordinates{Lat: snap.Summary.Lat, Lng: snap.Summary.Lng},
		ProviderIDs:      place.ProviderIDs,
	}
	return resolved, snap, nil
}

// fanOut runs every location-bound branch concurrently, settles them
// all, and merges the survivors. The merge is a separate pass over
// tagged results so no branch ever touches the shared environment.
func (e *Enricher) fanOut(ctx context.Context, lat, lng float64, target time.Time, place *record.PlaceInput, placeSnap *record.Snapshot[record.PlaceSummary]) *record.Environment {
	type branch struct {
		name string
		run  func(context.Context) (func(*record.Environment), error)
	}

	var branches []branch
	if e.Weather != nil {
		branches = append(branches, branch{"weather", func(ctx context.Context) (func(*record.Environment), error) {
			snap, err := e.Weather.Fetch(ctx, lat, lng, target)
			if err != nil || snap == nil {
				return nil, err
			}
			return func(env *record.Environment) { env.Weather = snap }, nil
		}})
	}
	if e.AirQuality != nil {
		branches = append(branches, branch{"air_quality", func(ctx context.Context) (func(*record.Environment), error) {
			snap, err := e.AirQuality.Fetch(ctx, lat, lng)
			if err != nil || snap == nil {
				return nil, err
			}
			return func(env *record.Environment) { env.AirQuality = snap }, nil
		}})
	}
	if e.Pollen != nil {
		branches = append(branches, branch{"pollen", func(ctx context.Context) (func(*record.Environment), error) {
			snap, err := e.Pollen.Fetch(ctx, lat, lng)
			if err != nil || snap == nil {
				return nil, err
			}
			return func(env *record.Environment) { env.Pollen = snap }, nil
		}})
	}
	if e.Elevation != nil {
		branches = append(branches, branch{"elevation", func(ctx context.Context) (func(*record.Environment), error) {
			snap, err := e.Elevation.Fetch(ctx, lat, lng)
			if err != nil || snap == nil {
				return nil, err
			}
			return func(env *record.Environment) { env.Elevation = snap }, nil
		}})
	}
	if e.Geocode != nil {
		branches = append(branches, branch{"geocoding", func(ctx context.Context) (func(*record.Environment), error) {
			snap, err := e.Geocode.ReverseGeocode(ctx, lat, lng)
			if err != nil || snap == nil {
				return nil, err
			}
			return func(env *record.Environment) { env.Geocoding = snap }, nil
		}})
	}
	if e.Places != nil {
		branches = append(branches, branch{"nearby_places", func(ctx context.Context) (func(*record.Environment), error) {
			snap, err := e.Places.Nearby(ctx, lat, lng, 0)
			if err != nil || snap == nil {
				return nil, err
			}
			return func(env *record.Environment) { env.NearbyPlaces = snap }, nil
		}})
	}
	if e.Places != nil && place.ProviderID() != "" {
		branches = append(branches, branch{"place", func(ctx context.Context) (func(*record.Environment), error) {
			snap := placeSnap
			if snap == nil {
				var err error
				snap, err = e.Places.Details(ctx, place.ProviderID())
				if err != nil {
					return nil, err
				}
			}
			return func(env *record.Environment) { env.Place = snap }, nil
		}})
	}

	results := make([]branchResult, len(branches))

	g := &errgroup.Group{}
	g.SetLimit(fanOutConcurrency)
	for i, b := range branches {
		g.Go(func() error {
			apply, err := b.run(ctx)
			results[i] = branchResult{branch: b.name, apply: apply, err: err}
			return nil
		})
	}
	g.Wait() // branches record their own errors

	env := &record.Environment{}
	for _, r := range results {
		if r.err != nil {
			e.log().Warn("enrichment branch failed", "branch", r.branch, "error", r.err)
			continue
		}
		if r.apply != nil {
			r.apply(env)
		}
	}
	return env
}

// EnvironmentForImage enriches an image's GPS location. Images get the
// weather, elevation, geocoding and nearby-places branches; air quality
// and pollen only make sense for in-the-moment chatter. A zero takenAt
// skips the weather branch since there is no moment to look up.
func (e *Enricher) EnvironmentForImage(ctx context.Context, lat, lng float64, takenAt time.Time) *record.Environment {
	scoped := &Enricher{
		Weather:   e.Weather,
		Elevation: e.Elevation,
		Geocode:   e.Geocode,
		Places:    e.Places,
		Logger:    e.Logger,
		Now:       e.Now,
	}
	if takenAt.IsZero() {
		scoped.Weather = nil
		takenAt = e.now()
	}
	return scoped.fanOut(ctx, lat, lng, takenAt, nil, nil)
}

// lookupWatched resolves a movie/TV reference, searching by title when
// no id is given. Failures are logged and drop the key.
func (e *Enricher) lookupWatched(ctx context.Context, watched *record.WatchedInput) *record.Snapshot[record.MediaSummary] {
	if e.Media == nil {
		return nil
	}

	id := watched.TMDBID
	if id == 0 && watched.TMDBTitle != "" {
		found, err := e.Media.Search(ctx, watched.MediaType, watched.TMDBTitle)
		if err != nil {
			e.log().Warn("media search failed", "title", watched.TMDBTitle, "error", err)
			return nil
		}
		id = found
	}
	if id == 0 {
		return nil
	}

	snap, err := e.Media.Details(ctx, watched.MediaType, id)
	if err != nil {
		e.log().Warn("media details failed", "id", id, "error", err)
		return nil
	}
	return snap
}

// extractCoordinates prefers the explicit hint over the place location.
func extractCoordinates(hint *record.LocationHint, place *record.PlaceInput) *record.Coordinates {
	if hint != nil {
		return &record.Coordinates{Lat: hint.Lat, Lng: hint.Lng}
	}
	if place != nil && place.Location != nil {
		return place.Location
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
