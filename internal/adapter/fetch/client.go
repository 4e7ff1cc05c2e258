// Package fetch is the HTTP layer shared by every provider client. It
// applies bounded retries with exponential backoff, separates transient
// failures (timeouts, connection errors, HTTP 429) from fatal ones, and
// trips a per-provider circuit breaker when a provider keeps failing.
//
// Every failure returned by this package wraps ErrUnavailable.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"

	"github.com/towerguard/site-health/internal/observability"
)

// maxBodyBytes bounds how much of a provider response is read.
const maxBodyBytes = 16 << 20

var (
	// ErrUnavailable marks every failure that leaves this package.
	ErrUnavailable = errors.New("source unavailable")
	// ErrMalformed marks a response that could not be decoded.
	ErrMalformed = errors.New("malformed response")
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Policy is the retry policy for one provider.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Timeout     time.Duration
}

// DefaultPolicy retries three times starting at one second, doubling.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2, Timeout: 30 * time.Second}
}

// Delay is the wait after the given zero-based failed attempt:
// BaseDelay × Multiplier^attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
}

// Request describes one provider call. Params are merged into the URL query.
type Request struct {
	Method string
	URL    string
	Params url.Values
	Header http.Header
	Body   []byte
}

// Client performs provider requests under a Policy.
type Client struct {
	provider   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	policy     Policy
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

// WithClock sets the clock used for backoff sleeps.
func WithClock(clock clockwork.Clock) Option { return func(c *Client) { c.clock = clock } }

// WithLogger sets the logger for retries and failures.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithMetrics records attempts and durations.
func WithMetrics(m *observability.Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// New creates a client for the named provider.
func New(provider string, policy Policy, opts ...Option) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	c := &Client{
		provider:   provider,
		httpClient: &http.Client{},
		policy:     policy,
		clock:      clockwork.NewRealClock(),
		logger:     slog.New(slog.DiscardHandler),
		userAgent:  "towerguard-site-health",
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// A rejected request says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Provider returns the provider name.
func (c *Client) Provider() string { return c.provider }

// GetJSON issues a GET and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, v any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, URL: rawURL, Params: params}, v)
}

// DoJSON performs req and decodes the JSON body into v. A body that does not
// decode is a fatal failure and is not retried.
func (c *Client) DoJSON(ctx context.Context, req Request, v any) error {
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.logger.Error("provider response malformed", "provider", c.provider, "error", err)
		return fmt.Errorf("%w: %w: decode %s response: %v", ErrUnavailable, ErrMalformed, c.provider, err)
	}
	return nil
}

// Do performs req, retrying transient failures with exponential backoff.
// It returns the response body on a 2xx status.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		attempts++
		start := c.clock.Now()
		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.once(ctx, req)
		})
		if c.metrics != nil {
			c.metrics.FetchDuration.WithLabelValues(c.provider).Observe(c.clock.Since(start).Seconds())
		}
		if err == nil {
			c.observe("success")
			return body, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.observe("breaker_open")
			return nil, fmt.Errorf("%w: %s circuit open: %w", ErrUnavailable, c.provider, err)
		}
		if ctx.Err() != nil {
			break
		}
		if !c.retryable(ctx, err) {
			c.observe("fatal")
			c.logger.Error("provider request failed", "provider", c.provider, "error", err)
			return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.provider, err)
		}
		if attempt == c.policy.MaxAttempts-1 {
			break
		}

		wait := c.policy.Delay(attempt)
		c.observe("retry")
		c.logger.Warn("provider request failed, retrying",
			"provider", c.provider,
			"attempt", attempt+1,
			"max_attempts", c.policy.MaxAttempts,
			"backoff", wait,
			"error", err,
		)
		if !c.sleep(ctx, wait) {
			break
		}
	}

	c.observe("exhausted")
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.provider, ctx.Err())
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, c.provider, attempts, lastErr)
}

func (c *Client) once(ctx context.Context, req Request) ([]byte, error) {
	if c.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(req.Params) > 0 {
		q := u.Query()
		for k, vs := range req.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	return data, nil
}

// retryable reports whether err is transient: a timeout, a connection
// failure, or a rate-limit response.
func (c *Client) retryable(ctx context.Context, err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests
	}
	// Per-attempt deadline, parent still alive.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func (c *Client) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.FetchAttempts.WithLabelValues(c.provider, outcome).Inc()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
