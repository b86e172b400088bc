// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pdiddy/paperharvest/pkg/types"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRate     = 3.0
	defaultBurst    = 3
	defaultRetries  = 2
	defaultDelay    = 1 * time.Second
	maxResponseSize = 10 << 20
)

// FetchError wraps a transient HTTP failure that survived the retry
// budget. Callers are expected to log and skip rather than abort.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s (after %d attempts): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Response is the subset of an HTTP response the pipeline consumes.
type Response struct {
	// URL is the final URL after redirect following.
	URL string

	// Status is the HTTP status code.
	Status int

	// ContentType is the response Content-Type header.
	ContentType string

	// Body is the response body, capped at 10 MiB.
	Body []byte
}

// NewClient builds an HTTP client from the given transport configuration.
// When cfg.ProxyURL is set all requests route through it; otherwise the
// standard environment proxy variables apply.
func NewClient(cfg types.HTTPConfig) (*http.Client, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL %q: %w", cfg.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// Fetcher executes GET and HEAD requests with rate limiting and bounded
// fixed-delay retry. Transient failures (network errors, non-2xx statuses,
// malformed payloads in the decoding variants) are retried and then
// surfaced as a *FetchError.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retries   int
	delay     time.Duration
	userAgent string
	log       zerolog.Logger
}

// NewFetcher builds a Fetcher from the given transport configuration.
func NewFetcher(cfg types.HTTPConfig, log zerolog.Logger) (*Fetcher, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	retries := cfg.RetryAttempts
	if retries <= 0 {
		retries = defaultRetries
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultDelay
	}

	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		retries:   retries,
		delay:     delay,
		userAgent: cfg.UserAgent,
		log:       log,
	}, nil
}

// Client exposes the underlying HTTP client for callers that need to
// stream large bodies themselves.
func (f *Fetcher) Client() *http.Client { return f.client }

// Get fetches rawURL, following redirects.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	return f.fetch(ctx, http.MethodGet, rawURL)
}

// Head issues a HEAD request for rawURL, following redirects.
func (f *Fetcher) Head(ctx context.Context, rawURL string) (*Response, error) {
	return f.fetch(ctx, http.MethodHead, rawURL)
}

// GetXML fetches rawURL and decodes the XML payload into v. A payload
// that does not decode counts as a transient failure and is retried.
func (f *Fetcher) GetXML(ctx context.Context, rawURL string, v any) error {
	_, err := Try(ctx, f.retries, f.delay, func() (struct{}, error) {
		resp, err := f.once(ctx, http.MethodGet, rawURL)
		if err != nil {
			return struct{}{}, err
		}
		if err := xml.Unmarshal(resp.Body, v); err != nil {
			return struct{}{}, fmt.Errorf("decoding XML payload: %w", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return f.wrap(rawURL, err)
	}
	return nil
}

// GetJSON fetches rawURL and decodes the JSON payload into v. A payload
// that does not decode counts as a transient failure and is retried.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, v any) error {
	_, err := Try(ctx, f.retries, f.delay, func() (struct{}, error) {
		resp, err := f.once(ctx, http.MethodGet, rawURL)
		if err != nil {
			return struct{}{}, err
		}
		if err := json.Unmarshal(resp.Body, v); err != nil {
			return struct{}{}, fmt.Errorf("decoding JSON payload: %w", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return f.wrap(rawURL, err)
	}
	return nil
}

func (f *Fetcher) fetch(ctx context.Context, method, rawURL string) (*Response, error) {
	resp, err := Try(ctx, f.retries, f.delay, func() (*Response, error) {
		return f.once(ctx, method, rawURL)
	})
	if err != nil {
		return nil, f.wrap(rawURL, err)
	}
	return resp, nil
}

func (f *Fetcher) wrap(rawURL string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &FetchError{URL: rawURL, Attempts: f.retries + 1, Err: err}
}

// once executes a single rate-limited request attempt.
func (f *Fetcher) once(ctx context.Context, method, rawURL string) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
