package esi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/logger"
)

const (
	DefaultBaseURL   = "https://esi.evetech.net/latest"
	defaultUserAgent = "eve-arbitrage/1.0 (github.com)"

	// ESI starts rejecting a client once its error budget is spent; back off
	// before that happens.
	errorLimitFloor = 20
	errorLimitPause = 2 * time.Second
)

// Observer receives one call per HTTP attempt. Implemented by the metrics
// package; nil is allowed.
type Observer interface {
	ObserveESIRequest(endpoint string, status int, elapsed time.Duration)
}

// Options configures a Client. Zero values fall back to DefaultOptions.
type Options struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration // per request
	RequestSpacing    time.Duration // minimum gap between requests
	MaxRetries        int           // network and gateway failures
	RetryBackoff      time.Duration
	RateLimitFallback time.Duration // used when a 420/429 carries no delay header
	Clock             clock.Clock
	HTTPClient        *http.Client
	Observer          Observer
}

func DefaultOptions() Options {
	return Options{
		BaseURL:           DefaultBaseURL,
		UserAgent:         defaultUserAgent,
		Timeout:           15 * time.Second,
		RequestSpacing:    100 * time.Millisecond,
		MaxRetries:        3,
		RetryBackoff:      2 * time.Second,
		RateLimitFallback: 60 * time.Second,
	}
}

// Client is a rate-limited ESI HTTP client.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	opts     Options
	clock    clock.Clock
	observer Observer
}

// NewClient creates an ESI client. Requests are spaced by RequestSpacing
// across all goroutines sharing the client.
func NewClient(opts Options) *Client {
	d := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = d.BaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = d.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RateLimitFallback <= 0 {
		opts.RateLimitFallback = d.RateLimitFallback
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	limit := rate.Inf
	if opts.RequestSpacing > 0 {
		limit = rate.Every(opts.RequestSpacing)
	}
	return &Client{
		http:     opts.HTTPClient,
		limiter:  rate.NewLimiter(limit, 1),
		opts:     opts,
		clock:    opts.Clock,
		observer: opts.Observer,
	}
}

// BaseURL returns the configured ESI root.
func (c *Client) BaseURL() string { return c.opts.BaseURL }

// HealthCheck pings ESI to verify connectivity.
func (c *Client) HealthCheck(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, c.opts.BaseURL+"/status/?datasource=tranquility", "status", nil)
	return err == nil && resp.status == http.StatusOK
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// request performs one logical call. Network failures and gateway errors
// (502/503/504) are retried up to MaxRetries times with a fixed backoff.
// A rate-limit response (420/429) is retried once after the delay the server
// asks for; a second consecutive one is returned as a rate-limited
// FetchError. Any other non-200 status fails immediately.
func (c *Client) request(ctx context.Context, method, url, endpoint string, body []byte) (*response, error) {
	retries := 0
	rateLimited := false
	for {
		resp, err := c.do(ctx, method, url, endpoint, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &FetchError{Err: ctx.Err()}
			}
			var fe *FetchError
			if errors.As(err, &fe) {
				return nil, fe
			}
			if retries >= c.opts.MaxRetries {
				return nil, &FetchError{Err: err}
			}
			retries++
			logger.Warn("ESI", fmt.Sprintf("%s %s failed (%v), retry %d/%d in %s", method, endpoint, err, retries, c.opts.MaxRetries, c.opts.RetryBackoff))
			c.clock.Sleep(c.opts.RetryBackoff)
			continue
		}

		switch {
		case resp.status == http.StatusOK:
			return resp, nil

		case isRateLimit(resp.status):
			if rateLimited {
				return nil, &FetchError{Status: resp.status, RateLimited: true, Err: statusErr(resp)}
			}
			rateLimited = true
			delay := c.rateLimitDelay(resp.header)
			logger.Warn("ESI", fmt.Sprintf("%s rate limited (%d), waiting %s", endpoint, resp.status, delay))
			c.clock.Sleep(delay)

		case isGateway(resp.status):
			rateLimited = false
			if retries >= c.opts.MaxRetries {
				return nil, &FetchError{Status: resp.status, Err: statusErr(resp)}
			}
			retries++
			logger.Warn("ESI", fmt.Sprintf("%s returned %d, retry %d/%d in %s", endpoint, resp.status, retries, c.opts.MaxRetries, c.opts.RetryBackoff))
			c.clock.Sleep(c.opts.RetryBackoff)

		default:
			return nil, &FetchError{Status: resp.status, Err: statusErr(resp)}
		}
	}
}

// do sends a single attempt and reads the whole body under the per-request
// timeout.
func (c *Client) do(ctx context.Context, method, url, endpoint string, body []byte) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, rdr)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.clock.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, 0, start)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.observe(endpoint, resp.StatusCode, start)
	if err != nil {
		return nil, err
	}

	if remain := resp.Header.Get("X-ESI-Error-Limit-Remain"); remain != "" {
		if n, err := strconv.Atoi(remain); err == nil && n < errorLimitFloor {
			logger.Warn("ESI", fmt.Sprintf("error budget low (%d left), pausing %s", n, errorLimitPause))
			c.clock.Sleep(errorLimitPause)
		}
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) observe(endpoint string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveESIRequest(endpoint, status, c.clock.Now().Sub(start))
	}
}

// rateLimitDelay prefers Retry-After, then the ESI error window reset, then
// the configured fallback.
func (c *Client) rateLimitDelay(h http.Header) time.Duration {
	for _, key := range []string{"Retry-After", "X-ESI-Error-Limit-Reset"} {
		if v := h.Get(key); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return c.opts.RateLimitFallback
}

func isRateLimit(status int) bool {
	return status == 420 || status == http.StatusTooManyRequests
}

func isGateway(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

func statusErr(r *response) error {
	body := r.body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Errorf("ESI %d: %s", r.status, string(body))
}
