package providers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/coffey/internal/record"
)

const (
	// linkFetchTimeout is a hard cap; arbitrary pages can hang.
	linkFetchTimeout = 10 * time.Second

	// maxPreviewBytes is enough HTML to reach the head meta tags.
	maxPreviewBytes = 100 * 1024

	previewUserAgent = "Mozilla/5.0 (compatible; CoffeyBot/1.0)"

	linkFetchConcurrency = 4
)

// LinkPreviewer fetches OpenGraph/meta metadata for links. Failures are
// never fatal: a link that cannot be previewed keeps its URL and domain.
type LinkPreviewer struct {
	httpClient *http.Client
}

func NewLinkPreviewer() *LinkPreviewer {
	return &LinkPreviewer{
		httpClient: &http.Client{Timeout: linkFetchTimeout},
	}
}

// EnrichLinks fills preview metadata for each link concurrently. Links
// that already carry caller-supplied metadata are left untouched apart
// from domain derivation — enrichment is additive, never overwriting.
func (p *LinkPreviewer) EnrichLinks(ctx context.Context, links []record.Link) []record.Link {
	out := make([]record.Link, len(links))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(linkFetchConcurrency)
	for i, link := range links {
		g.Go(func() error {
			if link.HasMetadata() {
				if link.Domain == "" {
					link.Domain = domainOf(link.URL)
				}
				out[i] = link
				return nil
			}
			out[i] = p.Fetch(gCtx, link.URL)
			return nil
		})
	}
	g.Wait() // branches never return errors

	return out
}

// Fetch returns preview metadata for one URL, degrading to URL+domain on
// any failure.
func (p *LinkPreviewer) Fetch(ctx context.Context, rawURL string) record.Link {
	link := record.Link{URL: rawURL, Domain: domainOf(rawURL)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return link
	}
	req.Header.Set("User-Agent", previewUserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Warn("link preview fetch failed", "url", rawURL, "error", err)
		return link
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return link
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") {
		return link
	}

	body := io.LimitReader(resp.Body, maxPreviewBytes)
	reader, err := charset.NewReader(body, contentType)
	if err != nil {
		return link
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		slog.Warn("link preview parse failed", "url", rawURL, "error", err)
		return link
	}

	link.Title = metaProperty(doc, "og:title")
	link.Description = metaProperty(doc, "og:description")
	link.Image = metaProperty(doc, "og:image")

	if link.Description == "" {
		link.Description, _ = doc.Find(`meta[name="description"]`).Attr("content")
	}
	if link.Title == "" {
		link.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	return link
}

func metaProperty(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).Attr("content")
	return content
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
