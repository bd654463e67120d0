package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/coffey/internal/record"
)

const defaultAirQualityBaseURL = "https://airquality.googleapis.com/v1"

// AirQualityClient fetches current air-quality conditions for a point.
type AirQualityClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewAirQualityClient(apiKey string) *AirQualityClient {
	return &AirQualityClient{
		apiKey:     apiKey,
		baseURL:    defaultAirQualityBaseURL,
		httpClient: newHTTPClient(),
		now:        time.Now,
	}
}

func NewAirQualityClientForTest(apiKey, baseURL string) *AirQualityClient {
	c := NewAirQualityClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type airQualityResponse struct {
	Indexes []struct {
		AQI               *float64 `json:"aqi"`
		Category          string   `json:"category"`
		DominantPollutant string   `json:"dominantPollutant"`
	} `json:"indexes"`
	Pollutants []struct {
		Code          string `json:"code"`
		Concentration *struct {
			Value *float64 `json:"value"`
		} `json:"concentration"`
	} `json:"pollutants"`
}

func (c *AirQualityClient) Fetch(ctx context.Context, lat, lng float64) (*record.Snapshot[record.AirQualitySummary], error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Key: "air quality API key"}
	}

	body := map[string]any{
		"location":     map[string]float64{"latitude": lat, "longitude": lng},
		"universalAqi": true,
	}

	var resp airQualityResponse
	u := c.baseURL + "/currentConditions:lookup?key=" + url.QueryEscape(c.apiKey)
	if err := postJSON(ctx, c.httpClient, "air quality", u, body, nil, &resp); err != nil {
		return nil, err
	}

	s := record.AirQualitySummary{AQIScale: "US EPA"}
	if len(resp.Indexes) > 0 {
		s.AQI = resp.Indexes[0].AQI
		s.AQICategory = resp.Indexes[0].Category
		s.DominantPollutant = resp.Indexes[0].DominantPollutant
	}
	for _, p := range resp.Pollutants {
		if p.Concentration == nil {
			continue
		}
		v := p.Concentration.Value
		switch p.Code {
		case "pm25":
			s.PM25UgM3 = v
		case "pm10":
			s.PM10UgM3 = v
		case "o3":
			s.O3Ppb = v
		case "no2":
			s.NO2Ppb = v
		case "so2":
			s.SO2Ppb = v
		case "co":
			s.COPpm = v
		}
	}

	return &record.Snapshot[record.AirQualitySummary]{
		CapturedAt: timestamp(c.now()),
		Provider:   record.Provider{Name: "google", Product: "air_quality", Version: "v1"},
		Summary:    s,
	}, nil
}
