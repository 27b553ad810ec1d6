// Package fetch performs the bearer-authenticated HTTP calls of an export run:
// JSON API requests and raw document downloads.
//
// Calls are never retried. Every call runs under its own timeout so that a
// slow document download cannot stall the rest of the run.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnsafeURL is returned for URLs that are not absolute http(s) URLs.
var ErrUnsafeURL = errors.New("fetch: only absolute http and https URLs are allowed")

// ErrTooLarge is returned when a response body exceeds Config.MaxBytes.
var ErrTooLarge = errors.New("fetch: response body too large")

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string // first bytes of the response, for diagnostics
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("fetch: http %d from %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("fetch: http %d from %s", e.StatusCode, e.URL)
}

// Result contains the outcome of a successful call.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string // lowercased Content-Type header
}

// Config configures the fetcher.
type Config struct {
	// MaxBytes caps response bodies. Default: 512 MB.
	MaxBytes int64
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before each request. Default: ValidateURL.
	URLValidator func(string) error
	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper
}

func (c *Config) defaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 512 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "sugos/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = ValidateURL
	}
}

// Fetcher performs HTTP requests with a bearer token.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher. Redirects are followed up to 5 hops and re-validated.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Transport: cfg.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Request describes one call.
type Request struct {
	Method  string
	URL     string
	Token   string        // bearer token, omitted when empty
	JSON    any           // encoded as the request body when non-nil
	Timeout time.Duration // per-call timeout, none when zero
}

// Get downloads rawURL with the bearer token.
func (f *Fetcher) Get(ctx context.Context, rawURL, token string, timeout time.Duration) (*Result, error) {
	return f.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Token: token, Timeout: timeout})
}

// Do performs r. Any non-2xx status is returned as a *StatusError.
func (f *Fetcher) Do(ctx context.Context, r Request) (*Result, error) {
	if err := f.config.URLValidator(r.URL); err != nil {
		return nil, err
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.JSON != nil {
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("fetch: encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	if r.JSON != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s %s: %w", method, r.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        r.URL,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	data, err := limitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body of %s: %w", r.URL, err)
	}

	return &Result{
		Body:        data,
		StatusCode:  resp.StatusCode,
		ContentType: strings.ToLower(resp.Header.Get("Content-Type")),
	}, nil
}

// ValidateURL accepts absolute http and https URLs with a host.
// Private addresses are allowed: case-management tenants are often on-premises.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: %q", ErrUnsafeURL, rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: no host in %q", ErrUnsafeURL, rawURL)
	}
	return nil
}

// limitedReadAll reads at most maxBytes from r.
func limitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
