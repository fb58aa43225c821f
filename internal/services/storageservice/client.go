// Package storageservice downloads packages from the Archivematica Storage
// Service REST API and fetches dashboard documents outside the browser.
package storageservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/amsc/pkg/models"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10
)

// Client is a Storage Service API client.
type Client struct {
	baseURL    string
	username   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *RetryPolicy
	logger     arbor.ILogger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithRetryPolicy replaces the download retry policy.
func WithRetryPolicy(p *RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the Storage Service at baseURL,
// authenticating API calls with username and apiKey.
func NewClient(baseURL, username, apiKey string, opts ...ClientOption) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Client{
		baseURL:  baseURL,
		username: username,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		retry:   NewRetryPolicy(),
		logger:  arbor.NewLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// FileURL returns the API URL of a package file endpoint, e.g.
// FileURL(uuid, "download").
func (c *Client) FileURL(packageUUID, endpoint string) string {
	return fmt.Sprintf("%sapi/v2/file/%s/%s/", c.baseURL, packageUUID, endpoint)
}

// DownloadAIP saves the AIP with the given UUID to destPath.
func (c *Client) DownloadAIP(ctx context.Context, aipUUID, destPath string) error {
	if err := c.download(ctx, c.FileURL(aipUUID, "download"), destPath); err != nil {
		return fmt.Errorf("%w: AIP %s: %w", models.ErrDownloadFailed, aipUUID, err)
	}
	return nil
}

// DownloadPointerFile saves the pointer file of the AIP with the given UUID
// to destPath.
func (c *Client) DownloadPointerFile(ctx context.Context, aipUUID, destPath string) error {
	if err := c.download(ctx, c.FileURL(aipUUID, "pointer_file"), destPath); err != nil {
		return fmt.Errorf("%w: AIP %s pointer file: %w", models.ErrDownloadFailed, aipUUID, err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, endpoint, destPath string) error {
	params := url.Values{}
	params.Set("username", c.username)
	params.Set("api_key", c.apiKey)
	reqURL := endpoint + "?" + params.Encode()

	return c.retry.Do(ctx, c.logger, func() (int, error) {
		resp, err := c.get(ctx, reqURL, nil)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp.StatusCode, errorFromResponse(resp, endpoint)
		}
		if err := save(resp.Body, destPath); err != nil {
			return resp.StatusCode, err
		}
		c.logger.Info().Str("url", endpoint).Str("path", destPath).Msg("Downloaded package file")
		return resp.StatusCode, nil
	})
}

// Fetch retrieves rawURL with the given cookies attached and returns the
// response body. It is used for dashboard documents the browser session can
// read, such as METS files.
func (c *Client) Fetch(ctx context.Context, rawURL string, cookies []*http.Cookie) ([]byte, error) {
	resp, err := c.get(ctx, rawURL, cookies)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(resp, rawURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL string, cookies []*http.Cookie) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	c.logger.Debug().Str("url", redact(rawURL)).Msg("Storage Service request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error prints the request URL, api_key included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redact(urlErr.URL)
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func errorFromResponse(resp *http.Response, endpoint string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		URL:        endpoint,
		Body:       strings.TrimSpace(string(body)),
	}
}

// save writes r to path through a temporary file in the same directory so a
// failed transfer never leaves a partial file at path.
func save(r io.Reader, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// redact hides the api_key query parameter.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
