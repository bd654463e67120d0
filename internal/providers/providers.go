// Package providers holds one adapter per external enrichment source.
// Every adapter normalizes its provider's wire format into one of the
// record summary shapes at this boundary — downstream code never sees
// provider-native field names or metric units.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// ConfigError indicates a required credential is missing. It is never
// retried; the caller decides whether it is fatal.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return e.Key + " is not configured"
}

// ProviderError indicates a non-2xx or malformed response from an
// external source. The enrichment orchestrator degrades the affected
// environment key on this error rather than failing the request.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("%s API error: %d", e.Provider, e.Status)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// getJSON performs a GET and decodes a 2xx JSON response into out.
func getJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return doJSON(client, req, provider, headers, out)
}

// postJSON performs a POST with a JSON body and decodes a 2xx JSON
// response into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, body any, headers map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, req, provider, headers, out)
}

func doJSON(client *http.Client, req *http.Request, provider string, headers map[string]string, out any) error {
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{Provider: provider, Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", provider, err)
	}
	return nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
