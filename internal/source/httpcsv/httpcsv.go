// Package httpcsv fetches a spreadsheet published as CSV over HTTP.
package httpcsv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fundboard/internal/csvparse"
	"fundboard/internal/source"
)

// DefaultMaxBytes caps the response body.
const DefaultMaxBytes = 4 << 20

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrTooLarge         = errors.New("response body too large")
)

type Client struct {
	url      *url.URL
	http     *http.Client
	maxBytes int64
	now      func() time.Time
}

var _ source.RowSource = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithMaxBytes(n int64) Option {
	return func(cl *Client) { cl.maxBytes = n }
}

// WithClock sets the clock used for the cache-busting parameter.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// New returns a client for the published CSV at rawURL.
func New(rawURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse csv url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("csv url must be http or https, got %q", u.Scheme)
	}

	c := &Client{
		url:      u,
		http:     source.NewPooledHTTPClient(timeout),
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Name() string { return "csv" }

// FetchText downloads the CSV text. Every request carries a fresh t=<unix
// millis> query parameter and no-cache headers so intermediaries never serve
// a stale export.
func (c *Client) FetchText(ctx context.Context) (string, error) {
	u := *c.url
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch csv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("fetch csv: %w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read csv body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return "", fmt.Errorf("read csv body: %w (limit %d bytes)", ErrTooLarge, c.maxBytes)
	}
	return string(body), nil
}

// ReadRows fetches and parses the CSV.
func (c *Client) ReadRows(ctx context.Context) ([]csvparse.Row, error) {
	text, err := c.FetchText(ctx)
	if err != nil {
		return nil, err
	}
	return csvparse.ParseStrict(text)
}
