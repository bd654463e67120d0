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

const (
	defaultMediaBaseURL  = "https://api.themoviedb.org/3"
	defaultMediaImageURL = "https://image.tmdb.org/t/p/original"

	maxCastMembers = 5
)

// Media types accepted by WatchedInput.
const (
	MediaTypeMovie = "movie"
	MediaTypeTV    = "tv"
)

// MediaClient looks up movie/TV metadata from a TMDB-compatible API.
type MediaClient struct {
	apiKey     string
	baseURL    string
	imageURL   string
	httpClient *http.Client
	now        func() time.Time
}

func NewMediaClient(apiKey string) *MediaClient {
	return &MediaClient{
		apiKey:     apiKey,
		baseURL:    defaultMediaBaseURL,
		imageURL:   defaultMediaImageURL,
		httpClient: newHTTPClient(),
		now:        time.Now,
	}
}

func NewMediaClientForTest(apiKey, baseURL string) *MediaClient {
	c := NewMediaClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type mediaSearchResponse struct {
	Results []struct {
		ID    int    `json:"id"`
		Title string `json:"title"` // movies
		Name  string `json:"name"`  // tv shows
	} `json:"results"`
}

// Search resolves a title to the first (most relevant) match id.
func (c *MediaClient) Search(ctx context.Context, mediaType, title string) (int, error) {
	if c.apiKey == "" {
		return 0, &ConfigError{Key: "media API key"}
	}

	u := fmt.Sprintf("%s/search/%s?query=%s&api_key=%s",
		c.baseURL, mediaType, url.QueryEscape(title), url.QueryEscape(c.apiKey))

	var resp mediaSearchResponse
	if err := getJSON(ctx, c.httpClient, "media search", u, nil, &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("no %s found for title %q", mediaType, title)
	}
	return resp.Results[0].ID, nil
}

type mediaDetailsResponse struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Name         string   `json:"name"`
	ReleaseDate  string   `json:"release_date"`
	FirstAirDate string   `json:"first_air_date"`
	Overview     string   `json:"overview"`
	PosterPath   string   `json:"poster_path"`
	BackdropPath string   `json:"backdrop_path"`
	VoteAverage  *float64 `json:"vote_average"`
	VoteCount    *int     `json:"vote_count"`
	Runtime      *int     `json:"runtime"`
	Genres       []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Credits struct {
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
		Cast []struct {
			Name string `json:"name"`
		} `json:"cast"`
	} `json:"credits"`
}

// Details fetches full metadata (with credits) for a movie or TV show.
func (c *MediaClient) Details(ctx context.Context, mediaType string, id int) (*record.Snapshot[record.MediaSummary], error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Key: "media API key"}
	}

	u := fmt.Sprintf("%s/%s/%d?api_key=%s&append_to_response=credits",
		c.baseURL, mediaType, id, url.QueryEscape(c.apiKey))

	var resp mediaDetailsResponse
	if err := getJSON(ctx, c.httpClient, "media details", u, nil, &resp); err != nil {
		return nil, err
	}

	s := record.MediaSummary{
		MediaType:  mediaType,
		TMDBID:     resp.ID,
		Title:      resp.Title,
		Overview:   resp.Overview,
		TMDBRating: resp.VoteAverage,
		VoteCount:  resp.VoteCount,
		RuntimeMin: resp.Runtime,
		TMDBURL:    fmt.Sprintf("https://www.themoviedb.org/%s/%d", mediaType, resp.ID),
	}
	s.ReleaseDate = resp.ReleaseDate
	if mediaType == MediaTypeTV {
		s.Title = resp.Name
		s.ReleaseDate = resp.FirstAirDate
	}
	if resp.PosterPath != "" {
		s.PosterURL = c.imageURL + resp.PosterPath
	}
	if resp.BackdropPath != "" {
		s.BackdropURL = c.imageURL + resp.BackdropPath
	}
	for _, g := range resp.Genres {
		s.Genres = append(s.Genres, g.Name)
	}
	for _, crew := range resp.Credits.Crew {
		if crew.Job == "Director" {
			s.Director = crew.Name
			break
		}
	}
	for i, cast := range resp.Credits.Cast {
		if i == maxCastMembers {
			break
		}
		s.Cast = append(s.Cast, cast.Name)
	}

	return &record.Snapshot[record.MediaSummary]{
		CapturedAt: timestamp(c.now()),
		Provider:   record.Provider{Name: "themoviedb", Product: "api", Version: "3"},
		Summary:    s,
	}, nil
}
