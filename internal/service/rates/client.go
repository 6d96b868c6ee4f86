// Package rates looks up the currency conversion rate used to price payment requests.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"accountmart-api/internal/cache"

	"github.com/andybalholm/brotli"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultURL      = "https://api.exchangerate-api.com/v4/latest/USD"
	DefaultTarget   = "TRY"
	DefaultTimeout  = 3 * time.Second
	DefaultCacheTTL = 5 * time.Minute
)

// DefaultFallback is used whenever the live lookup fails.
var DefaultFallback = decimal.RequireFromString("34.5")

type Config struct {
	URL      string
	Target   string
	Fallback decimal.Decimal
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client fetches the rate from an exchange-rate API and caches it.
// Rate never fails: any error yields the configured fallback.
type Client struct {
	client *http.Client
	config Config
	cache  cache.Cache
	group  singleflight.Group
}

// NewClient creates a rate client. A nil cache disables caching.
func NewClient(cfg Config, c cache.Cache) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	cfg.Target = strings.ToUpper(cfg.Target)
	if !cfg.Fallback.IsPositive() {
		cfg.Fallback = DefaultFallback
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	return &Client{
		client: &http.Client{
			Transport: &acceptTransport{Base: http.DefaultTransport},
			Timeout:   cfg.Timeout,
		},
		config: cfg,
		cache:  c,
	}
}

// acceptTransport asks for JSON, brotli-compressed when the server supports it.
type acceptTransport struct {
	Base http.RoundTripper
}

func (t *acceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	return t.Base.RoundTrip(req)
}

func (c *Client) cacheKey() string {
	return "rate:" + c.config.Target
}

// Fallback returns the configured fallback rate.
func (c *Client) Fallback() decimal.Decimal {
	return c.config.Fallback
}

// Rate returns the current rate, from cache when fresh.
func (c *Client) Rate(ctx context.Context) decimal.Decimal {
	if rate, ok := c.cached(ctx); ok {
		return rate
	}

	rate, err := c.Refresh(ctx)
	if err != nil {
		log.Printf("[RateClient] Using fallback %s: %v", c.config.Fallback, err)
		return c.config.Fallback
	}
	return rate
}

// Refresh fetches a live rate and stores it in the cache.
// Concurrent callers share one request, which outlives any single caller.
func (c *Client) Refresh(ctx context.Context) (decimal.Decimal, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.config.Target, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(shared, c.config.Timeout)
		defer cancel()

		rate, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(ctx, c.cacheKey(), []byte(rate.String()), c.config.CacheTTL); err != nil {
				log.Printf("[RateClient] Failed to cache rate: %v", err)
			}
		}
		return rate, nil
	})

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}

func (c *Client) cached(ctx context.Context) (decimal.Decimal, bool) {
	if c.cache == nil {
		return decimal.Zero, false
	}
	data, err := c.cache.Get(ctx, c.cacheKey())
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("[RateClient] Cache read failed: %v", err)
		}
		return decimal.Zero, false
	}
	rate, err := decimal.NewFromString(string(data))
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return rate, true
}

type latestResponse struct {
	Rates map[string]json.Number `json:"rates"`
}

func (c *Client) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}

	if resp.Header.Get("Content-Encoding") == "br" {
		resp.Body = &readCloserWrapper{Reader: brotli.NewReader(resp.Body), Closer: resp.Body}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var payload latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rates: %w", err)
	}

	raw, ok := payload.Rates[c.config.Target]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate for %s missing from response", c.config.Target)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q: %w", raw, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s", rate)
	}
	return rate, nil
}

type readCloserWrapper struct {
	io.Reader
	io.Closer
}

func (r *readCloserWrapper) Read(p []byte) (n int, err error) {
	return r.Reader.Read(p)
}

func (r *readCloserWrapper) Close() error {
	return r.Closer.Close()
}
