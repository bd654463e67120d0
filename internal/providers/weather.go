package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/coffey/internal/record"
)

const (
	defaultWeatherBaseURL = "https://weather.googleapis.com/v1"
	defaultArchiveBaseURL = "https://archive-api.open-meteo.com/v1"

	// hourlyWindow is the routing boundary: targets within this window
	// of now use the hourly-history source, older ones the archive.
	hourlyWindow = 24 * time.Hour
)

// wmoConditions maps WMO weather codes to descriptions for the archive
// source, which returns bare codes.
var wmoConditions = map[int]string{
	0: "Clear sky", 1: "Mainly clear", 2: "Partly cloudy", 3: "Overcast",
	45: "Fog", 48: "Depositing rime fog",
	51: "Light drizzle", 53: "Moderate drizzle", 55: "Dense drizzle",
	56: "Light freezing drizzle", 57: "Dense freezing drizzle",
	61: "Slight rain", 63: "Moderate rain", 65: "Heavy rain",
	66: "Light freezing rain", 67: "Heavy freezing rain",
	71: "Slight snow fall", 73: "Moderate snow fall", 75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers", 81: "Moderate rain showers", 82: "Violent rain showers",
	85: "Slight snow showers", 86: "Heavy snow showers",
	95: "Thunderstorm", 96: "Thunderstorm with slight hail", 99: "Thunderstorm with heavy hail",
}

// WeatherClient fetches weather for a point and target time, routing
// between the near-real-time hourly source and the historical archive.
type WeatherClient struct {
	apiKey     string
	baseURL    string
	archiveURL string
	httpClient *http.Client
	now        func() time.Time
}

func NewWeatherClient(apiKey string) *WeatherClient {
	return &WeatherClient{
		apiKey:     apiKey,
		baseURL:    defaultWeatherBaseURL,
		archiveURL: defaultArchiveBaseURL,
		httpClient: newHTTPClient(),
		now:        time.Now,
	}
}

// NewWeatherClientForTest returns a client pointing at test servers with
// a fixed clock.
func NewWeatherClientForTest(apiKey, baseURL, archiveURL string, now func() time.Time) *WeatherClient {
	c := NewWeatherClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.archiveURL = strings.TrimRight(archiveURL, "/")
	if now != nil {
		c.now = now
	}
	return c
}

// Fetch returns weather for the target time at (lat, lng). A target in
// the future yields (nil, nil): there is no forecast source, and the
// caller treats nil as "omit the weather key", not as a failure.
func (c *WeatherClient) Fetch(ctx context.Context, lat, lng float64, target time.Time) (*record.Snapshot[record.WeatherSummary], error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Key: "weather API key"}
	}

	now := c.now()
	if target.After(now) {
		return nil, nil
	}
	if now.Sub(target) <= hourlyWindow {
		return c.fetchHourly(ctx, lat, lng, target)
	}
	return c.fetchArchive(ctx, lat, lng, target)
}

// hourlyResponse is the loosely-typed boundary shape of the hourly
// history source. Field-presence games stay in this file.
type hourlyResponse struct {
	HistoryHours []hourlyEntry `json:"historyHours"`
}

type hourlyEntry struct {
	Interval struct {
		StartTime string `json:"startTime"`
	} `json:"interval"`
	Temperature          *degrees `json:"temperature"`
	FeelsLikeTemperature *degrees `json:"feelsLikeTemperature"`
	DewPoint             *degrees `json:"dewPoint"`
	WeatherCondition     *struct {
		Description struct {
			Text string `json:"text"`
		} `json:"description"`
		Type string `json:"type"`
	} `json:"weatherCondition"`
	IsDaytime        *bool    `json:"isDaytime"`
	RelativeHumidity *float64 `json:"relativeHumidity"`
	AirPressure      *struct {
		MeanSeaLevelMillibars *float64 `json:"meanSeaLevelMillibars"`
	} `json:"airPressure"`
	Wind *struct {
		Speed     *unitValue `json:"speed"`
		Gust      *unitValue `json:"gust"`
		Direction *struct {
			Degrees *float64 `json:"degrees"`
		} `json:"direction"`
	} `json:"wind"`
	Precipitation *struct {
		Probability *struct {
			Percent *float64 `json:"percent"`
			Type    string   `json:"type"`
		} `json:"probability"`
		QPF *struct {
			Quantity *float64 `json:"quantity"`
		} `json:"qpf"`
	} `json:"precipitation"`
	CloudCover *float64 `json:"cloudCover"`
	Visibility *struct {
		Distance *float64 `json:"distance"`
	} `json:"visibility"`
	UVIndex *float64 `json:"uvIndex"`
}

type degrees struct {
	Degrees *float64 `json:"degrees"`
}

type unitValue struct {
	Value *float64 `json:"value"`
}

func (c *WeatherClient) fetchHourly(ctx context.Context, lat, lng float64, target time.Time) (*record.Snapshot[record.WeatherSummary], error) {
	u := fmt.Sprintf("%s/history/hours:lookup?location.latitude=%v&location.longitude=%v&hours=24&key=%s",
		c.baseURL, lat, lng, url.QueryEscape(c.apiKey))

	var resp hourlyResponse
	if err := getJSON(ctx, c.httpClient, "weather hourly", u, nil, &resp); err != nil {
		return nil, err
	}

	// Pick the hour closest to the target time.
	var closest *hourlyEntry
	minDiff := time.Duration(math.MaxInt64)
	for i := range resp.HistoryHours {
		h := &resp.HistoryHours[i]
		start, err := time.Parse(time.RFC3339, h.Interval.StartTime)
		if err != nil {
			continue
		}
		diff := target.Sub(start)
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff {
			minDiff = diff
			closest = h
		}
	}
	if closest == nil {
		return nil, &ProviderError{Provider: "weather hourly", Status: 200, Body: "no hourly data available"}
	}

	s := record.WeatherSummary{
		TempF:       cToF(closest.Temperature.value()),
		TempFeelsF:  cToF(closest.FeelsLikeTemperature.value()),
		DewpointF:   cToF(closest.DewPoint.value()),
		IsDaytime:   closest.IsDaytime,
		HumidityPct: closest.RelativeHumidity,
		CloudPct:    closest.CloudCover,
		UVIndex:     closest.UVIndex,
	}
	if wc := closest.WeatherCondition; wc != nil {
		s.ConditionText = wc.Description.Text
		s.ConditionCode = wc.Type
	}
	if ap := closest.AirPressure; ap != nil {
		s.PressureInHg = mbToInHg(ap.MeanSeaLevelMillibars)
	}
	if w := closest.Wind; w != nil {
		if w.Speed != nil {
			s.WindSpeedMph = kmToMi(w.Speed.Value)
		}
		if w.Gust != nil {
			s.WindGustMph = kmToMi(w.Gust.Value)
		}
		if w.Direction != nil {
			s.WindDirDeg = w.Direction.Degrees
		}
	}
	if p := closest.Precipitation; p != nil {
		if p.Probability != nil {
			s.PrecipChancePct = p.Probability.Percent
			s.PrecipType = p.Probability.Type
		}
		if p.QPF != nil {
			s.PrecipQuantityIn = mmToIn(p.QPF.Quantity)
		}
	}
	if v := closest.Visibility; v != nil {
		s.VisibilityMiles = kmToMi(v.Distance)
	}

	return &record.Snapshot[record.WeatherSummary]{
		CapturedAt: closest.Interval.StartTime,
		Provider:   record.Provider{Name: "google", Product: "weather_historical", Version: "v1"},
		Summary:    s,
	}, nil
}

type archiveResponse struct {
	Daily struct {
		TemperatureMax   []float64 `json:"temperature_2m_max"`
		TemperatureMin   []float64 `json:"temperature_2m_min"`
		TemperatureMean  []float64 `json:"temperature_2m_mean"`
		WeatherCode      []int     `json:"weather_code"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
		WindSpeedMax     []float64 `json:"wind_speed_10m_max"`
		Sunrise          []string  `json:"sunrise"`
		Sunset           []string  `json:"sunset"`
		DaylightDuration []float64 `json:"daylight_duration"`
	} `json:"daily"`
}

func (c *WeatherClient) fetchArchive(ctx context.Context, lat, lng float64, target time.Time) (*record.Snapshot[record.WeatherSummary], error) {
	day := target.UTC().Format("2006-01-02")

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%v", lat))
	q.Set("longitude", fmt.Sprintf("%v", lng))
	q.Set("start_date", day)
	q.Set("end_date", day)
	q.Set("temperature_unit", "fahrenheit")
	q.Set("wind_speed_unit", "mph")
	q.Set("precipitation_unit", "inch")
	q.Set("daily", strings.Join([]string{
		"temperature_2m_max", "temperature_2m_min", "temperature_2m_mean",
		"weather_code", "precipitation_sum", "wind_speed_10m_max",
		"sunrise", "sunset", "daylight_duration",
	}, ","))

	var resp archiveResponse
	u := c.archiveURL + "/archive?" + q.Encode()
	if err := getJSON(ctx, c.httpClient, "weather archive", u, nil, &resp); err != nil {
		return nil, err
	}

	d := resp.Daily
	s := record.WeatherSummary{
		TempFMax:           first(d.TemperatureMax),
		TempFMin:           first(d.TemperatureMin),
		TempFMean:          first(d.TemperatureMean),
		PrecipitationSumIn: first(d.PrecipitationSum),
		WindSpeedMphMax:    first(d.WindSpeedMax),
		IsHistorical:       true,
	}
	if len(d.WeatherCode) > 0 {
		code := d.WeatherCode[0]
		s.WeatherCode = &code
		s.ConditionText = wmoConditions[code]
	}
	if len(d.Sunrise) > 0 {
		s.Sunrise = d.Sunrise[0]
	}
	if len(d.Sunset) > 0 {
		s.Sunset = d.Sunset[0]
	}
	if len(d.DaylightDuration) > 0 {
		hours := d.DaylightDuration[0] / 3600
		s.DaylightDurationHours = &hours
	}

	return &record.Snapshot[record.WeatherSummary]{
		CapturedAt: timestamp(c.now()),
		Provider:   record.Provider{Name: "open-meteo", Product: "archive", Version: "v1"},
		Summary:    s,
	}, nil
}

func (d *degrees) value() *float64 {
	if d == nil {
		return nil
	}
	return d.Degrees
}

func first(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	return &vals[0]
}

func cToF(c *float64) *float64 {
	if c == nil {
		return nil
	}
	f := *c*9/5 + 32
	return &f
}

func kmToMi(km *float64) *float64 {
	if km == nil {
		return nil
	}
	mi := *km * 0.621371
	return &mi
}

func mmToIn(mm *float64) *float64 {
	if mm == nil {
		return nil
	}
	in := *mm * 0.0393701
	return &in
}

func mbToInHg(mb *float64) *float64 {
	if mb == nil {
		return nil
	}
	inhg := *mb * 0.02953
	return &inhg
}
