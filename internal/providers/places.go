package providers

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/coffey/internal/record"
)

const (
	defaultPlacesBaseURL = "https://places.googleapis.com/v1"

	// earthRadiusM is the mean Earth radius used for haversine distances.
	earthRadiusM = 6371000

	defaultNearbyRadiusM = 500
	maxNearbyResults     = 20
)

// poiTypes filters nearby search to point-of-interest categories.
var poiTypes = []string{
	"tourist_attraction", "museum", "art_gallery", "park", "amusement_park",
	"aquarium", "zoo", "restaurant", "cafe", "bar", "shopping_mall", "store",
	"movie_theater", "performing_arts_theater", "night_club", "casino",
	"stadium", "church", "hindu_temple", "mosque", "synagogue",
}

// PlacesClient wraps the place-details and nearby-search endpoints.
type PlacesClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewPlacesClient(apiKey string) *PlacesClient {
	return &PlacesClient{
		apiKey:     apiKey,
		baseURL:    defaultPlacesBaseURL,
		httpClient: newHTTPClient(),
		now:        time.Now,
	}
}

func NewPlacesClientForTest(apiKey, baseURL string) *PlacesClient {
	c := NewPlacesClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type placeResult struct {
	ID          string `json:"id"`
	DisplayName *struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string `json:"formattedAddress"`
	Location         *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Types []string `json:"types"`
}

type nearbyResponse struct {
	Places []placeResult `json:"places"`
}

// Nearby searches points of interest around (lat, lng), computing the
// great-circle distance to each result. radiusM <= 0 uses the default.
func (c *PlacesClient) Nearby(ctx context.Context, lat, lng float64, radiusM float64) (*record.Snapshot[record.NearbyPlacesSummary], error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Key: "places API key"}
	}
	if radiusM <= 0 {
		radiusM = defaultNearbyRadiusM
	}

	body := map[string]any{
		"locationRestriction": map[string]any{
			"circle": map[string]any{
				"center": map[string]float64{"latitude": lat, "longitude": lng},
				"radius": radiusM,
			},
		},
		"includedTypes":  poiTypes,
		"maxResultCount": maxNearbyResults,
		"rankPreference": "POPULARITY",
	}
	headers := map[string]string{
		"X-Goog-Api-Key":   c.apiKey,
		"X-Goog-FieldMask": "places.id,places.displayName,places.formattedAddress,places.location,places.types",
	}

	var resp nearbyResponse
	if err := postJSON(ctx, c.httpClient, "places nearby", c.baseURL+"/places:searchNearby", body, headers, &resp); err != nil {
		return nil, err
	}

	places := make([]record.NearbyPlace, 0, len(resp.Places))
	for _, p := range resp.Places {
		np := record.NearbyPlace{
			Name:             "Unknown Place",
			FormattedAddress: p.FormattedAddress,
			ShortAddress:     ShortAddress(p.FormattedAddress),
			PlaceID:          p.ID,
			Types:            p.Types,
		}
		if p.DisplayName != nil && p.DisplayName.Text != "" {
			np.Name = p.DisplayName.Text
		}
		if p.Location != nil {
			np.Lat = p.Location.Latitude
			np.Lng = p.Location.Longitude
		}
		np.DistanceM = int(math.Round(Haversine(lat, lng, np.Lat, np.Lng)))
		if p.ID != "" {
			np.MapsURL = "https://www.google.com/maps/place/?q=place_id:" + p.ID
		}
		places = append(places, np)
	}

	return &record.Snapshot[record.NearbyPlacesSummary]{
		CapturedAt: timestamp(c.now()),
		Provider:   record.Provider{Name: "google", Product: "places-nearby", Version: "v1"},
		Summary: record.NearbyPlacesSummary{
			Lat:     lat,
			Lng:     lng,
			RadiusM: radiusM,
			Places:  places,
		},
	}, nil
}

// Details fetches a single place by its provider id.
func (c *PlacesClient) Details(ctx context.Context, placeID string) (*record.Snapshot[record.PlaceSummary], error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Key: "places API key"}
	}

	headers := map[string]string{
		"X-Goog-Api-Key":   c.apiKey,
		"X-Goog-FieldMask": "id,displayName,formattedAddress,location,types",
	}

	var resp placeResult
	u := c.baseURL + "/places/" + url.PathEscape(placeID)
	if err := getJSON(ctx, c.httpClient, "place details", u, headers, &resp); err != nil {
		return nil, err
	}

	s := record.PlaceSummary{
		PlaceID:          resp.ID,
		FormattedAddress: resp.FormattedAddress,
		ShortAddress:     ShortAddress(resp.FormattedAddress),
		Types:            resp.Types,
	}
	if resp.DisplayName != nil {
		s.Name = resp.DisplayName.Text
	}
	if resp.Location != nil {
		s.Lat = resp.Location.Latitude
		s.Lng = resp.Location.Longitude
	}
	if resp.ID != "" {
		s.MapsURL = "https://www.google.com/maps/place/?q=place_id:" + resp.ID
	}

	return &record.Snapshot[record.PlaceSummary]{
		CapturedAt: timestamp(c.now()),
		Provider:   record.Provider{Name: "google", Product: "places", Version: "v1"},
		Summary:    s,
	}, nil
}

// Haversine returns the great-circle distance in meters between two
// coordinates.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// ShortAddress extracts the street segment of a formatted address:
// "66 Mint St, San Francisco, CA 94103, USA" -> "66 Mint St".
func ShortAddress(formatted string) string {
	part, _, _ := strings.Cut(formatted, ",")
	if trimmed := strings.TrimSpace(part); trimmed != "" {
		return trimmed
	}
	return formatted
}
