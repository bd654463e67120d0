package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/coffey/internal/record"
)

// GeocodeClient reverse-geocodes a point into city/state/country.
type GeocodeClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewGeocodeClient(apiKey string) *GeocodeClient {
	return &GeocodeClient{
		apiKey:     apiKey,
		baseURL:    defaultMapsBaseURL,
		httpClient: newHTTPClient(),
		now:        time.Now,
	}
}

func NewGeocodeClientForTest(apiKey, baseURL string) *GeocodeClient {
	c := NewGeocodeClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress  string `json:"formatted_address"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// ReverseGeocode resolves (lat, lng) to a locality summary. The city
// falls back to sublocality/neighborhood when no locality component is
// present (common for unincorporated areas).
func (c *GeocodeClient) ReverseGeocode(ctx context.Context, lat, lng float64) (*record.Snapshot[record.GeocodingSummary], error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Key: "geocoding API key"}
	}

	u := fmt.Sprintf("%s/maps/api/geocode/json?latlng=%v,%v&key=%s",
		c.baseURL, lat, lng, url.QueryEscape(c.apiKey))

	var resp geocodeResponse
	if err := getJSON(ctx, c.httpClient, "geocoding", u, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = resp.Status
		}
		return nil, &ProviderError{Provider: "geocoding", Status: 200, Body: msg}
	}
	if len(resp.Results) == 0 {
		return nil, &ProviderError{Provider: "geocoding", Status: 200, Body: "no results"}
	}

	var s record.GeocodingSummary
	components := resp.Results[0].AddressComponents
	for _, comp := range components {
		switch {
		case contains(comp.Types, "locality"):
			s.City = comp.LongName
		case contains(comp.Types, "administrative_area_level_1"):
			s.State = comp.ShortName
		case contains(comp.Types, "country"):
			s.Country = comp.LongName
		}
	}
	if s.City == "" {
		for _, comp := range components {
			if contains(comp.Types, "sublocality") || contains(comp.Types, "neighborhood") {
				s.City = comp.LongName
				break
			}
		}
	}

	s.Formatted = s.City
	if s.City != "" && s.State != "" {
		s.Formatted = s.City + ", " + s.State
	} else if s.State != "" {
		s.Formatted = s.State
	}

	return &record.Snapshot[record.GeocodingSummary]{
		CapturedAt: timestamp(c.now()),
		Provider:   record.Provider{Name: "google", Product: "geocoding", Version: "v1"},
		Summary:    s,
	}, nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
