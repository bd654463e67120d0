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

const defaultPollenBaseURL = "https://pollen.googleapis.com/v1"

// PollenClient fetches the current-day pollen forecast for a point.
type PollenClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewPollenClient(apiKey string) *PollenClient {
	return &PollenClient{
		apiKey:     apiKey,
		baseURL:    defaultPollenBaseURL,
		httpClient: newHTTPClient(),
		now:        time.Now,
	}
}

func NewPollenClientForTest(apiKey, baseURL string) *PollenClient {
	c := NewPollenClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type pollenResponse struct {
	DailyInfo []struct {
		PollenTypeInfo []struct {
			Code      string `json:"code"`
			InSeason  *bool  `json:"inSeason"`
			IndexInfo *struct {
				Value    *float64 `json:"value"`
				Category string   `json:"category"`
			} `json:"indexInfo"`
		} `json:"pollenTypeInfo"`
	} `json:"dailyInfo"`
}

func (c *PollenClient) Fetch(ctx context.Context, lat, lng float64) (*record.Snapshot[record.PollenSummary], error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Key: "pollen API key"}
	}

	u := fmt.Sprintf("%s/forecast:lookup?location.latitude=%v&location.longitude=%v&days=1&key=%s",
		c.baseURL, lat, lng, url.QueryEscape(c.apiKey))

	var resp pollenResponse
	if err := getJSON(ctx, c.httpClient, "pollen", u, nil, &resp); err != nil {
		return nil, err
	}

	var s record.PollenSummary
	if len(resp.DailyInfo) > 0 {
		var dominant string
		var dominantIndex float64
		for _, t := range resp.DailyInfo[0].PollenTypeInfo {
			info := &record.PollenTypeInfo{InSeason: t.InSeason}
			if t.IndexInfo != nil {
				info.Index = t.IndexInfo.Value
				info.Category = t.IndexInfo.Category
			}
			switch t.Code {
			case "GRASS":
				s.Grass = info
			case "TREE":
				s.Tree = info
			case "WEED":
				s.Weed = info
			default:
				continue
			}
			if info.Index != nil && *info.Index > dominantIndex {
				dominantIndex = *info.Index
				dominant = strings.ToLower(t.Code)
			}
		}
		s.DominantType = dominant
	}

	return &record.Snapshot[record.PollenSummary]{
		CapturedAt: timestamp(c.now()),
		Provider:   record.Provider{Name: "google", Product: "pollen", Version: "v1"},
		Summary:    s,
	}, nil
}
