// Package fetcher downloads remote resources with timeout, bounded redirects
// and exponential backoff on transient failures.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"news_crawler/internal/metrics"
)

// Config holds fetcher configuration.
type Config struct {
	Timeout        time.Duration
	MaxRedirects   int
	UserAgent      string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxBytes       int64
}

type Response struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

type Fetcher struct {
	httpClient     *http.Client
	userAgent      string
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxBytes       int64
	logger         *slog.Logger
}

// New creates a fetcher with its own http.Client.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	maxRedirects := cfg.MaxRedirects
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent:      cfg.UserAgent,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		maxBytes:       cfg.MaxBytes,
		logger:         logger.With("component", "fetcher"),
	}
}

// Fetch GETs rawURL. Retryable failures are retried up to MaxRetries times,
// waiting InitialBackoff*2^n before retry n. Anything else returns at once.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	var resp *Response
	var err error

	for attempt := 0; ; attempt++ {
		resp, err = f.doRequest(ctx, rawURL)
		if err == nil {
			return resp, nil
		}

		if !IsRetryable(ctx, err) {
			return nil, err
		}

		if attempt >= f.maxRetries {
			break
		}

		backoff := f.calculateBackoff(attempt)
		f.logger.Warn("request failed, retrying",
			"url", rawURL,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)
		metrics.ObserveFetchRetry()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d retries: %w", f.maxRetries, err)
}

// Head issues a single HEAD request and fails on transport errors or status >= 400.
func (f *Fetcher) Head(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	return nil
}

func (f *Fetcher) doRequest(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, f.maxBytes)
	}

	return &Response{
		Body:        data,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

func (f *Fetcher) calculateBackoff(attempt int) time.Duration {
	backoff := f.initialBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
	}
	if f.maxBackoff > 0 && backoff > f.maxBackoff {
		backoff = f.maxBackoff
	}
	return backoff
}

// ErrTooLarge is returned when a body exceeds the configured limit.
var ErrTooLarge = errors.New("response too large")
