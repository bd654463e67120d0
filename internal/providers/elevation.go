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

const defaultMapsBaseURL = "https://maps.googleapis.com"

const feetPerMeter = 3.28084

// ElevationClient fetches terrain elevation for a point.
type ElevationClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewElevationClient(apiKey string) *ElevationClient {
	return &ElevationClient{
		apiKey:     apiKey,
		baseURL:    defaultMapsBaseURL,
		httpClient: newHTTPClient(),
		now:        time.Now,
	}
}

func NewElevationClientForTest(apiKey, baseURL string) *ElevationClient {
	c := NewElevationClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type elevationResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

func (c *ElevationClient) Fetch(ctx context.Context, lat, lng float64) (*record.Snapshot[record.ElevationSummary], error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Key: "elevation API key"}
	}

	u := fmt.Sprintf("%s/maps/api/elevation/json?locations=%v,%v&key=%s",
		c.baseURL, lat, lng, url.QueryEscape(c.apiKey))

	var resp elevationResponse
	if err := getJSON(ctx, c.httpClient, "elevation", u, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return nil, &ProviderError{Provider: "elevation", Status: 200, Body: resp.Status}
	}

	m := resp.Results[0].Elevation
	return &record.Snapshot[record.ElevationSummary]{
		CapturedAt: timestamp(c.now()),
		Provider:   record.Provider{Name: "google", Product: "elevation", Version: "v1"},
		Summary: record.ElevationSummary{
			ElevationM:  m,
			ElevationFt: m * feetPerMeter,
		},
	}, nil
}
