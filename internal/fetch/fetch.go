// Package fetch is the single gateway between the harvester and the network.
// Every request waits on its source's rate-limit token, and failures are
// retried according to a RetryPolicy before being classified with the
// harvest error taxonomy.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/ratelimit"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "animap-harvester/1.0"

	// Bodies larger than this are treated as malformed.
	maxBodyBytes = 32 << 20
)

// RetryPolicy describes how failures are retried.
type RetryPolicy struct {
	// MaxAttempts bounds attempts for transient failures (network errors,
	// timeouts, 5xx). Values below 1 mean a single attempt.
	MaxAttempts int
	// TransientBackoff is multiplied by the attempt number between
	// transient retries.
	TransientBackoff time.Duration
	// ThrottleCooldown is slept after a 429. A larger Retry-After wins.
	ThrottleCooldown time.Duration
	// MaxThrottleRetries caps consecutive 429 retries; 0 means unbounded.
	MaxThrottleRetries int
}

// DefaultRetryPolicy matches the pacing the remote catalogs tolerate.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		TransientBackoff: 10 * time.Second,
		ThrottleCooldown: 60 * time.Second,
	}
}

// Request is a logical request. It is rebuilt for every attempt, so Body is
// kept as bytes rather than a reader.
type Request struct {
	// Source is the rate-limit key, normally the catalog name.
	Source string
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Get is a convenience constructor for a GET request.
func Get(source, url string, header http.Header) Request {
	return Request{Source: source, Method: http.MethodGet, URL: url, Header: header}
}

// Doer is the subset of *http.Client the fetcher needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Fetcher issues rate-limited requests with retry.
type Fetcher struct {
	http      Doer
	limiter   *ratelimit.KeyedRateLimiter
	policy    RetryPolicy
	logger    *slog.Logger
	sleep     SleepFunc
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(d Doer) Option {
	return func(f *Fetcher) { f.http = d }
}

// WithSleep replaces the backoff sleep; tests use it to avoid real waits.
func WithSleep(s SleepFunc) Option {
	return func(f *Fetcher) { f.sleep = s }
}

// WithTimeout sets the per-attempt HTTP timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if c, ok := f.http.(*http.Client); ok && d > 0 {
			c.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// New creates a fetcher that paces requests with limiter.
func New(limiter *ratelimit.KeyedRateLimiter, policy RetryPolicy, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		http:      &http.Client{Timeout: defaultTimeout},
		limiter:   limiter,
		policy:    policy,
		logger:    logger,
		sleep:     sleepContext,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Policy returns the retry policy in use.
func (f *Fetcher) Policy() RetryPolicy {
	return f.policy
}

// Do executes req and returns the 2xx response body.
//
// Errors are *errors.Error values: KindThrottle when the throttle cap was hit,
// KindTransient when transient retries ran out, KindSource for any other
// non-2xx status. Context cancellation is returned as is.
func (f *Fetcher) Do(ctx context.Context, req Request) ([]byte, error) {
	maxAttempts := max(f.policy.MaxAttempts, 1)
	transientAttempts := 0
	throttleAttempts := 0

	for {
		// Every attempt consumes a slot, failed or not.
		if err := f.limiter.Wait(ctx, req.Source); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		body, retryAfter, err := f.attempt(ctx, req)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch herrors.KindOf(err) {
		case herrors.KindThrottle:
			throttleAttempts++
			if f.policy.MaxThrottleRetries > 0 && throttleAttempts > f.policy.MaxThrottleRetries {
				return nil, herrors.Throttled(req.Source, throttleAttempts)
			}
			wait := max(retryAfter, f.policy.ThrottleCooldown)
			f.logger.Warn("rate limited by source, cooling down",
				"source", req.Source,
				"wait", wait,
				"attempt", throttleAttempts,
			)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case herrors.KindTransient:
			transientAttempts++
			if transientAttempts >= maxAttempts {
				return nil, herrors.Transient(req.Source, transientAttempts, errors.Unwrap(err))
			}
			wait := f.policy.TransientBackoff * time.Duration(transientAttempts)
			f.logger.Warn("request failed, retrying",
				"source", req.Source,
				"url", req.URL,
				"attempt", transientAttempts,
				"max_attempts", maxAttempts,
				"wait", wait,
				"error", err,
			)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			return nil, err
		}
	}
}

// attempt performs one HTTP exchange and classifies the result.
func (f *Fetcher) attempt(ctx context.Context, req Request) ([]byte, time.Duration, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, 0, herrors.Internal("create request", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("User-Agent", f.userAgent)

	f.logger.Debug("fetch",
		"source", req.Source,
		"method", method,
		"url", req.URL,
	)

	resp, err := f.http.Do(httpReq)
	if err != nil {
		return nil, 0, transient(req.Source, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, transient(req.Source, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), &herrors.Error{
			Kind:   herrors.KindThrottle,
			Source: req.Source,
			Status: resp.StatusCode,
		}
	case resp.StatusCode >= 500:
		return nil, 0, transient(req.Source, herrors.SourceStatus(req.Source, resp.StatusCode, string(data)))
	default:
		return nil, 0, herrors.SourceStatus(req.Source, resp.StatusCode, string(data))
	}
}

// transient marks a single failed attempt as retryable. The cause is kept so
// the final error can carry it.
func transient(source string, cause error) error {
	return herrors.Wrap(herrors.KindTransient, source, "attempt failed", cause)
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
