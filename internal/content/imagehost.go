package content

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// signedURLTTL bounds how long a delivery redirect stays valid.
const signedURLTTL = time.Hour

// Uploader pushes image bytes to an external image host and returns the
// host-assigned UUID.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte, contentType string, metadata map[string]string) (string, error)
	Delete(ctx context.Context, uuid string) error
}

// HostedImages is a client for a Cloudflare-Images-compatible hosting
// API: multipart uploads, deletes by UUID and HMAC-signed delivery URLs.
type HostedImages struct {
	accountID   string
	accountHash string
	apiToken    string
	signingKey  string
	apiBaseURL  string
	deliveryURL string
	httpClient  *http.Client
	now         func() time.Time
}

func NewHostedImages(accountID, accountHash, apiToken, signingKey string) *HostedImages {
	return &HostedImages{
		accountID:   accountID,
		accountHash: accountHash,
		apiToken:    apiToken,
		signingKey:  signingKey,
		apiBaseURL:  "https://api.cloudflare.com/client/v4",
		deliveryURL: "https://imagedelivery.net",
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		now:         time.Now,
	}
}

func NewHostedImagesForTest(apiBaseURL, deliveryURL string) *HostedImages {
	h := NewHostedImages("acct", "acct-hash", "token", "signing-key")
	h.apiBaseURL = strings.TrimRight(apiBaseURL, "/")
	h.deliveryURL = strings.TrimRight(deliveryURL, "/")
	return h
}

type hostUploadResponse struct {
	Success bool `json:"success"`
	Result  struct {
		ID string `json:"id"`
	} `json:"result"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Upload pushes the file with its custom metadata and requires signed
// delivery URLs on the host side.
func (h *HostedImages) Upload(ctx context.Context, filename string, data []byte, contentType string, metadata map[string]string) (string, error) {
	if h.apiToken == "" {
		return "", fmt.Errorf("image host API token not configured")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.WriteField("requireSignedURLs", "true"); err != nil {
		return "", err
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	if err := w.WriteField("metadata", string(metaJSON)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/accounts/%s/images/v1", h.apiBaseURL, h.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+h.apiToken)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("image host returned %d: %s", resp.StatusCode, text)
	}

	var out hostUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding image host response: %w", err)
	}
	if !out.Success || out.Result.ID == "" {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		if len(msgs) == 0 {
			msgs = append(msgs, "unknown error")
		}
		return "", fmt.Errorf("image host upload rejected: %s", strings.Join(msgs, ", "))
	}
	return out.Result.ID, nil
}

// Delete removes the hosted copy. Callers treat failures as advisory;
// the index soft-delete is what actually hides an image.
func (h *HostedImages) Delete(ctx context.Context, uuid string) error {
	url := fmt.Sprintf("%s/accounts/%s/images/v1/%s", h.apiBaseURL, h.accountID, uuid)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.apiToken)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("image host delete returned %d: %s", resp.StatusCode, text)
	}
	return nil
}

// SignedURL builds a time-limited delivery URL for a variant, signed
// with HMAC-SHA256 over the path and expiry (hex signature).
func (h *HostedImages) SignedURL(uuid, variant string) (string, error) {
	if h.signingKey == "" {
		return "", fmt.Errorf("image host signing key not configured")
	}
	expiry := h.now().Add(signedURLTTL).Unix()
	urlPath := fmt.Sprintf("/%s/%s/%s", h.accountHash, uuid, variant)
	stringToSign := fmt.Sprintf("%s?exp=%d", urlPath, expiry)

	mac := hmac.New(sha256.New, []byte(h.signingKey))
	mac.Write([]byte(stringToSign))
	sig := hex.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("%s%s?exp=%d&sig=%s", h.deliveryURL, urlPath, expiry, sig), nil
}
