// Package bookmark syncs a raindrop.io-compatible bookmark service into
// local content-addressed storage: a producer that discovers new
// bookmarks and a queue worker that archives them with their permanent
// copies.
package bookmark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.raindrop.io/rest/v1"

// syncPageSize is how many of the newest bookmarks each sync pass
// inspects.
const syncPageSize = 50

// Raindrop is the upstream bookmark object, reduced to the fields the
// archive keeps.
type Raindrop struct {
	ID         int64      `json:"_id"`
	Link       string     `json:"link"`
	Title      string     `json:"title"`
	Excerpt    string     `json:"excerpt,omitempty"`
	Domain     string     `json:"domain,omitempty"`
	Type       string     `json:"type,omitempty"`
	Cover      string     `json:"cover,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Created    string     `json:"created"`
	LastUpdate string     `json:"lastUpdate,omitempty"`
	Collection CollRef    `json:"collection"`
	Cache      *CacheInfo `json:"cache,omitempty"`
}

type CollRef struct {
	ID int64 `json:"$id"`
}

// CacheInfo describes the upstream permanent copy.
type CacheInfo struct {
	Status  string `json:"status"` // "ready", "retry", "failed", ...
	Created string `json:"created,omitempty"`
	Size    int64  `json:"size,omitempty"`
}

// CacheReady reports whether the permanent copy can be downloaded.
func (r *Raindrop) CacheReady() bool {
	return r.Cache != nil && r.Cache.Status == "ready"
}

// Collection is an upstream bookmark collection.
type Collection struct {
	ID     int64  `json:"_id"`
	Title  string `json:"title"`
	Parent *struct {
		ID int64 `json:"$id"`
	} `json:"parent,omitempty"`
}

// Client talks to a raindrop.io-compatible REST API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Permanent-copy lookups need the raw 307 Location.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func NewClientForTest(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.token == "" {
		return fmt.Errorf("bookmark API token not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bookmark API %s returned %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListNewest returns the newest bookmarks across all collections,
// newest first, capped at the sync page size.
func (c *Client) ListNewest(ctx context.Context) ([]Raindrop, error) {
	params := url.Values{
		"perpage": {strconv.Itoa(syncPageSize)},
		"page":    {"0"},
		"sort":    {"-created"},
	}
	var out struct {
		Items []Raindrop `json:"items"`
	}
	if err := c.get(ctx, "/raindrops/0?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Get fetches one bookmark by id.
func (c *Client) Get(ctx context.Context, id int64) (*Raindrop, error) {
	var out struct {
		Item Raindrop `json:"item"`
	}
	if err := c.get(ctx, fmt.Sprintf("/raindrop/%d", id), &out); err != nil {
		return nil, err
	}
	return &out.Item, nil
}

// Collections fetches root and child collections in one flat list.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	var collections []Collection
	for _, path := range []string{"/collections", "/collections/childrens"} {
		var out struct {
			Items []Collection `json:"items"`
		}
		if err := c.get(ctx, path, &out); err != nil {
			return nil, err
		}
		collections = append(collections, out.Items...)
	}
	return collections, nil
}

// PermanentCopyURL resolves the download URL of a bookmark's permanent
// copy. The API answers with a 307 whose Location is the real object;
// 404 and 400 mean no copy exists, which is not an error.
func (c *Client) PermanentCopyURL(ctx context.Context, id int64) (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("bookmark API token not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/raindrop/%d/cache", c.baseURL, id), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusTemporaryRedirect:
		return resp.Header.Get("Location"), nil
	case http.StatusNotFound, http.StatusBadRequest:
		return "", nil
	default:
		return "", fmt.Errorf("permanent copy endpoint returned %d", resp.StatusCode)
	}
}
