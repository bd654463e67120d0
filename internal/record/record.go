// Package record defines the persisted record shapes shared by all
// content kinds: the outer envelope, the provider snapshot wrapper, and
// the normalized per-provider summaries. Summaries carry imperial units
// only; conversions happen at the provider adapter boundary.
package record

import (
	"errors"
	"time"
)

// SchemaVersion is stamped on every assembled envelope.
const SchemaVersion = "1.0.0"

// Record kinds.
const (
	KindChatter          = "chatter"
	KindImage            = "image"
	KindBookmark         = "bookmark"
	KindBookmarkArtifact = "bookmark-artifact"
)

// Envelope is the immutable outer wrapper shared by chatter, image and
// bookmark records. ID is always "sha256:" + SHA256 and both are derived
// from the canonical form of Data — never client-supplied.
type Envelope struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	SchemaVersion string `json:"schema_version"`
	CreatedAt     string `json:"created_at"`
	SHA256        string `json:"sha256"`
	Data          any    `json:"data"`
}

// Provider identifies the upstream source of a snapshot.
type Provider struct {
	Name    string `json:"name"`
	Product string `json:"product"`
	Version string `json:"version,omitempty"`
}

// Snapshot is the uniform wrapper around any third-party API result.
type Snapshot[T any] struct {
	CapturedAt string   `json:"captured_at"`
	Provider   Provider `json:"provider"`
	Summary    T        `json:"summary"`
}

// WeatherSummary covers both current/hourly conditions and daily
// historical summaries; the two sources populate disjoint field subsets.
type WeatherSummary struct {
	TempF            *float64 `json:"temp_f,omitempty"`
	TempFeelsF       *float64 `json:"temp_feels_f,omitempty"`
	ConditionText    string   `json:"condition_text,omitempty"`
	ConditionCode    string   `json:"condition_code,omitempty"`
	IsDaytime        *bool    `json:"is_daytime,omitempty"`
	HumidityPct      *float64 `json:"humidity_pct,omitempty"`
	PressureInHg     *float64 `json:"pressure_inhg,omitempty"`
	WindSpeedMph     *float64 `json:"wind_speed_mph,omitempty"`
	WindGustMph      *float64 `json:"wind_gust_mph,omitempty"`
	WindDirDeg       *float64 `json:"wind_dir_deg,omitempty"`
	PrecipChancePct  *float64 `json:"precip_chance_pct,omitempty"`
	PrecipType       string   `json:"precip_type,omitempty"`
	PrecipQuantityIn *float64 `json:"precip_quantity_in,omitempty"`
	CloudPct         *float64 `json:"cloud_pct,omitempty"`
	VisibilityMiles  *float64 `json:"visibility_miles,omitempty"`
	UVIndex          *float64 `json:"uv_index,omitempty"`
	DewpointF        *float64 `json:"dewpoint_f,omitempty"`

	// Daily historical fields.
	TempFMax              *float64 `json:"temp_f_max,omitempty"`
	TempFMin              *float64 `json:"temp_f_min,omitempty"`
	TempFMean             *float64 `json:"temp_f_mean,omitempty"`
	WeatherCode           *int     `json:"weather_code,omitempty"`
	PrecipitationSumIn    *float64 `json:"precipitation_sum,omitempty"`
	WindSpeedMphMax       *float64 `json:"wind_speed_mph_max,omitempty"`
	Sunrise               string   `json:"sunrise,omitempty"`
	Sunset                string   `json:"sunset,omitempty"`
	DaylightDurationHours *float64 `json:"daylight_duration_hours,omitempty"`
	IsHistorical          bool     `json:"is_historical,omitempty"`
}

type AirQualitySummary struct {
	AQI               *float64 `json:"aqi,omitempty"`
	AQIScale          string   `json:"aqi_scale,omitempty"`
	AQICategory       string   `json:"aqi_category,omitempty"`
	DominantPollutant string   `json:"dominant_pollutant,omitempty"`
	PM25UgM3          *float64 `json:"pm25_ugm3,omitempty"`
	PM10UgM3          *float64 `json:"pm10_ugm3,omitempty"`
	O3Ppb             *float64 `json:"o3_ppb,omitempty"`
	NO2Ppb            *float64 `json:"no2_ppb,omitempty"`
	SO2Ppb            *float64 `json:"so2_ppb,omitempty"`
	COPpm             *float64 `json:"co_ppm,omitempty"`
}

// PollenTypeInfo is the index for one pollen category.
type PollenTypeInfo struct {
	Index    *float64 `json:"index,omitempty"`
	Category string   `json:"category,omitempty"`
	InSeason *bool    `json:"in_season,omitempty"`
}

type PollenSummary struct {
	Grass        *PollenTypeInfo `json:"grass,omitempty"`
	Tree         *PollenTypeInfo `json:"tree,omitempty"`
	Weed         *PollenTypeInfo `json:"weed,omitempty"`
	DominantType string          `json:"dominant_type,omitempty"`
}

type ElevationSummary struct {
	ElevationM  float64 `json:"elevation_m"`
	ElevationFt float64 `json:"elevation_ft"`
}

type GeocodingSummary struct {
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Country   string `json:"country,omitempty"`
	Formatted string `json:"formatted,omitempty"`
}

type NearbyPlace struct {
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	ShortAddress     string   `json:"short_address"`
	Lat              float64  `json:"lat"`
	Lng              float64  `json:"lng"`
	DistanceM        int      `json:"distance_m"`
	PlaceID          string   `json:"place_id,omitempty"`
	MapsURL          string   `json:"maps_url,omitempty"`
	Types            []string `json:"types,omitempty"`
}

type NearbyPlacesSummary struct {
	Lat     float64       `json:"lat"`
	Lng     float64       `json:"lng"`
	RadiusM float64       `json:"radius_m"`
	Places  []NearbyPlace `json:"places"`
}

type PlaceSummary struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	ShortAddress     string   `json:"short_address,omitempty"`
	Lat              float64  `json:"lat"`
	Lng              float64  `json:"lng"`
	Types            []string `json:"types,omitempty"`
	MapsURL          string   `json:"maps_url,omitempty"`
}

type MediaSummary struct {
	MediaType   string   `json:"media_type"`
	TMDBID      int      `json:"tmdb_id"`
	Title       string   `json:"title"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Overview    string   `json:"overview,omitempty"`
	PosterURL   string   `json:"poster_url,omitempty"`
	BackdropURL string   `json:"backdrop_url,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	TMDBRating  *float64 `json:"tmdb_rating,omitempty"`
	VoteCount   *int     `json:"vote_count,omitempty"`
	TMDBURL     string   `json:"tmdb_url,omitempty"`
	RuntimeMin  *int     `json:"runtime,omitempty"`
	Director    string   `json:"director,omitempty"`
	Cast        []string `json:"cast,omitempty"`
}

// Environment is the merged bag of enrichment snapshots. A nil field
// means the provider failed or was not applicable; the JSON form omits
// it entirely rather than carrying a placeholder.
type Environment struct {
	Weather      *Snapshot[WeatherSummary]      `json:"weather,omitempty"`
	AirQuality   *Snapshot[AirQualitySummary]   `json:"air_quality,omitempty"`
	Pollen       *Snapshot[PollenSummary]       `json:"pollen,omitempty"`
	Elevation    *Snapshot[ElevationSummary]    `json:"elevation,omitempty"`
	Geocoding    *Snapshot[GeocodingSummary]    `json:"geocoding,omitempty"`
	NearbyPlaces *Snapshot[NearbyPlacesSummary] `json:"nearby_places,omitempty"`
	Place        *Snapshot[PlaceSummary]        `json:"place,omitempty"`
}

// Empty reports whether no enrichment branch contributed anything.
func (e *Environment) Empty() bool {
	return e == nil || *e == Environment{}
}

// LocationHint is an explicit coordinate supplied by the caller. It takes
// priority over coordinates resolved from a place reference.
type LocationHint struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	AccuracyM *float64 `json:"accuracy_m,omitempty"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ErrInvalidPlace is returned when a place reference carries neither a
// provider id nor the full manual field set.
var ErrInvalidPlace = errors.New("place requires a provider id or all of name, formatted_address, short_address and location")

// PlaceInput is a caller-supplied place reference: either a provider id
// (resolved by enrichment) or a fully manual description.
type PlaceInput struct {
	Name             string            `json:"name,omitempty"`
	FormattedAddress string            `json:"formatted_address,omitempty"`
	ShortAddress     string            `json:"short_address,omitempty"`
	Location         *Coordinates      `json:"location,omitempty"`
	ProviderIDs      map[string]string `json:"provider_ids,omitempty"`
}

// ProviderID returns the place-provider id, if any.
func (p *PlaceInput) ProviderID() string {
	if p == nil {
		return ""
	}
	return p.ProviderIDs["google_places"]
}

// Resolved reports whether the manual display fields are populated.
func (p *PlaceInput) Resolved() bool {
	return p != nil && p.Name != "" && p.FormattedAddress != "" && p.ShortAddress != "" && p.Location != nil
}

// Validate enforces the id-or-manual-fields contract before any
// enrichment work starts.
func (p *PlaceInput) Validate() error {
	if p == nil {
		return nil
	}
	if p.ProviderID() != "" || p.Resolved() {
		return nil
	}
	return ErrInvalidPlace
}

// Link is a URL with optional preview metadata. Enrichment fills the
// optional fields; caller-supplied values are never overwritten.
type Link struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Domain      string `json:"domain,omitempty"`
}

// HasMetadata reports whether the link already carries preview data, in
// which case the preview fetch is skipped.
func (l Link) HasMetadata() bool {
	return l.Title != "" || l.Description != "" || l.Image != ""
}

// WatchedInput references a movie or TV show either by provider id or by
// a title to search for.
type WatchedInput struct {
	MediaType string `json:"media_type"`
	TMDBID    int    `json:"tmdb_id,omitempty"`
	TMDBTitle string `json:"tmdb_title,omitempty"`
}

// CreateChatterRequest is the admin-facing creation payload.
type CreateChatterRequest struct {
	Kind         string        `json:"kind"`
	Content      string        `json:"content,omitempty"`
	Comment      string        `json:"comment,omitempty"`
	Title        string        `json:"title,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	Images       []string      `json:"images,omitempty"`
	Links        LinkList      `json:"links,omitempty"`
	Publish      *bool         `json:"publish,omitempty"`
	LocationHint *LocationHint `json:"location_hint,omitempty"`
	Place        *PlaceInput   `json:"place,omitempty"`
	Watched      *WatchedInput `json:"watched,omitempty"`
	CreatedAt    string        `json:"created_at,omitempty"`
}

// ChatterData is the enriched payload that gets hashed and persisted.
type ChatterData struct {
	Kind         string                  `json:"kind"`
	Content      string                  `json:"content,omitempty"`
	Comment      string                  `json:"comment,omitempty"`
	Title        string                  `json:"title,omitempty"`
	Tags         []string                `json:"tags"`
	Images       []string                `json:"images"`
	Links        []Link                  `json:"links,omitempty"`
	Publish      bool                    `json:"publish"`
	LocationHint *LocationHint           `json:"location_hint,omitempty"`
	Place        *PlaceInput             `json:"place,omitempty"`
	Watched      *Snapshot[MediaSummary] `json:"watched,omitempty"`
	Environment  *Environment            `json:"environment,omitempty"`
}

// ParseTime parses an envelope/request timestamp, accepting RFC 3339
// with or without sub-second precision.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
