// Package upload fetches source images and pushes them to the configured
// upload endpoint.
//
// Fetching and uploading share one Client so they share the HTTP transport,
// its timeout, and the optional request rate limiter. Per-image failures
// are plain errors; the orchestrator converts them into outcomes at the
// item boundary.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/imgmark/imgmark/internal/jsonpath"
	"github.com/imgmark/imgmark/internal/settings"
)

// defaultTimeout is the HTTP client timeout applied to every fetch and
// upload request. A hung source host or endpoint fails the item rather
// than the whole run.
const defaultTimeout = 30 * time.Second

// ErrNotConfigured reports that the endpoint is still the shipped
// placeholder. It aborts an upload before any network call is made.
var ErrNotConfigured = errors.New("upload endpoint not configured: set api_url in the config file")

// extensionMIME is the fallback MIME table used when the source response
// carries no Content-Type header.
var extensionMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// Image is a fetched source image ready for upload.
type Image struct {
	Data     []byte
	Filename string
	MIMEType string
}

// Client talks to source image hosts and the configured upload endpoint.
type Client struct {
	httpClient *http.Client
	settings   settings.Settings
	limiter    *rate.Limiter
}

// NewClient creates a client for one settings snapshot.
func NewClient(s settings.Settings) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		settings: s,
	}
}

// SetTimeout overrides the default per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// SetLimiter installs a token-bucket limiter applied before every fetch
// and upload request.
func (c *Client) SetLimiter(requestsPerSecond float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Fetch retrieves the raw bytes of a remote image, inferring filename and
// MIME type. A non-200 response is a failure carrying the status code.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	log.Debug().Str("url", rawURL).Int("statusCode", resp.StatusCode).Dur("duration", time.Since(start)).Msg("Image fetch response")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	name := filenameFromURL(rawURL)
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mimeFromExtension(name)
	}

	return &Image{Data: data, Filename: name, MIMEType: mimeType}, nil
}

// Upload sends image bytes to the configured endpoint as a multipart form
// (field name "image") and returns the hosted URL extracted from the JSON
// response via the configured dot-path.
func (c *Client) Upload(ctx context.Context, img *Image) (string, error) {
	if !c.settings.IsConfigured() {
		return "", ErrNotConfigured
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", img.Filename)
	if err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}

	method := http.MethodPost
	if strings.EqualFold(c.settings.Method, http.MethodPut) {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, c.settings.APIURL, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	applyCustomHeaders(req, c.settings.CustomHeaders)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()
	log.Debug().Str("method", method).Str("filename", img.Filename).Int("statusCode", resp.StatusCode).Dur("duration", time.Since(start)).Msg("Upload response")

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	resultURL, err := jsonpath.ExtractString(respBody, c.settings.JSONPath)
	if err != nil {
		return "", fmt.Errorf("empty upload URL: %w (body: %s)", err, truncate(string(respBody), 200))
	}
	if resultURL == "" {
		return "", fmt.Errorf("empty upload URL (body: %s)", truncate(string(respBody), 200))
	}

	return resultURL, nil
}

// wait blocks on the rate limiter, if one is installed.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// applyCustomHeaders merges configured "Key: Value" strings into the
// request. Each string is split on the first colon and trimmed; entries
// with an empty key or value are dropped.
func applyCustomHeaders(req *http.Request, headers []string) {
	for _, h := range headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		req.Header.Set(key, value)
	}
}

// filenameFromURL takes the path segment after the last slash, defaulting
// to image.jpg when the URL has no usable name.
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "image.jpg"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "image.jpg"
	}
	return name
}

// mimeFromExtension infers a MIME type from the filename extension,
// defaulting to image/jpeg for anything unknown.
func mimeFromExtension(name string) string {
	if m, ok := extensionMIME[strings.ToLower(path.Ext(name))]; ok {
		return m
	}
	return "image/jpeg"
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
