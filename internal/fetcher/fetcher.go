// Package fetcher implements the HTTP Fetcher (C6): a connection-pooled,
// rate-limited retrier that turns an admitted URL into a Fetch-Result.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/huntlines/marketscout/internal/policy"
	"github.com/huntlines/marketscout/internal/ratelimit"
	"github.com/huntlines/marketscout/internal/types"
)

// Config parameterizes a Fetcher for a run.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	MaxBodySize  int64
	MaxAttempts  int
	BaseDelay    time.Duration
}

// DefaultConfig returns the spec's defaults: 5 MiB body cap, 3 total
// attempts, 100ms base backoff, 3 same-host redirects.
func DefaultConfig(userAgent string) Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRedirects: 3,
		UserAgent:    userAgent,
		MaxBodySize:  5 * 1024 * 1024,
		MaxAttempts:  3,
		BaseDelay:    100 * time.Millisecond,
	}
}

// Fetcher is reentrant: every call is isolated, but the connection pool
// (via the shared *http.Client) and the rate limiter are shared across
// calls.
type Fetcher struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	gate    *policy.Gate
	cfg     Config
	logger  *slog.Logger
}

// New builds a Fetcher. limiter provides per-host token buckets; gate is
// consulted to re-check a redirect's final URL and to receive 401/403
// denylist entries.
func New(cfg Config, limiter *ratelimit.Limiter, gate *policy.Gate, logger *slog.Logger) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{},
		// Decompression is handled ourselves so brotli is available.
		DisableCompression: true,
	}

	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > cfg.MaxRedirects {
				return fmt.Errorf("max redirects (%d) reached", cfg.MaxRedirects)
			}
			if !strings.EqualFold(req.URL.Host, via[0].URL.Host) {
				return fmt.Errorf("redirect changed host: %s -> %s", via[0].URL.Host, req.URL.Host)
			}
			return nil
		},
	}

	return &Fetcher{
		client:  client,
		limiter: limiter,
		gate:    gate,
		cfg:     cfg,
		logger:  logger.With("component", "fetcher"),
	}, nil
}

// Close releases pooled connections.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// Fetch retrieves rawURL, retrying 429/5xx/transport errors with
// exponential backoff up to cfg.MaxAttempts total attempts. It returns
// the terminal result plus one intermediate FetchResult per retried
// (non-terminal) attempt, so callers can emit a fetch.failed event for
// each retry and a single fetch.succeeded/fetch.failed for the outcome.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (types.FetchResult, []types.FetchResult) {
	return f.fetch(ctx, rawURL, http.MethodGet)
}

// Probe issues a HEAD request to confirm liveness without downloading
// the body, retrying under the same policy as Fetch. Discovery's
// liveness check uses this instead of Fetch so a dead candidate doesn't
// cost a full body download.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) (types.FetchResult, []types.FetchResult) {
	return f.fetch(ctx, rawURL, http.MethodHead)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, method string) (types.FetchResult, []types.FetchResult) {
	start := time.Now()
	host := hostOf(rawURL)

	var result types.FetchResult
	var retried []types.FetchResult
	attempt := 0
	for attempt < f.cfg.MaxAttempts {
		attempt++

		if err := f.limiter.Acquire(ctx, host); err != nil {
			result = types.FetchResult{URL: rawURL, Success: false, Error: err.Error()}
			break
		}

		var retry bool
		var retryAfter time.Duration
		result, retry, retryAfter = f.attempt(ctx, rawURL, method, attempt)
		if !retry || attempt >= f.cfg.MaxAttempts {
			break
		}
		retried = append(retried, result)

		delay := backoff(f.cfg.BaseDelay, attempt)
		if retryAfter > delay {
			delay = retryAfter
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result = types.FetchResult{URL: rawURL, Success: false, Error: ctx.Err().Error()}
			attempt = f.cfg.MaxAttempts
		case <-timer.C:
		}
	}

	result.Duration = time.Since(start)
	result.Attempts = attempt
	return result, retried
}

// attempt performs one HTTP round trip (including the client's own
// same-host redirect following) and classifies the outcome.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, method string, attemptNo int) (types.FetchResult, bool, time.Duration) {
	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return types.FetchResult{URL: rawURL, Success: false, Error: err.Error()}, false, 0
	}

	httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		retryable := isRetryableError(err)
		return types.FetchResult{URL: rawURL, Success: false, Error: err.Error()}, retryable, 0
	}
	defer httpResp.Body.Close()

	finalURL := rawURL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		f.gate.Deny(hostOf(finalURL))
		return types.FetchResult{
			URL:        finalURL,
			Success:    false,
			StatusCode: httpResp.StatusCode,
			Error:      fmt.Sprintf("HTTP %d", httpResp.StatusCode),
		}, false, 0

	case httpResp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"))
		return types.FetchResult{
			URL:        finalURL,
			Success:    false,
			StatusCode: httpResp.StatusCode,
			Error:      "HTTP 429: rate limited",
		}, true, retryAfter

	case httpResp.StatusCode >= 500:
		return types.FetchResult{
			URL:        finalURL,
			Success:    false,
			StatusCode: httpResp.StatusCode,
			Error:      fmt.Sprintf("HTTP %d", httpResp.StatusCode),
		}, true, 0

	case httpResp.StatusCode >= 400:
		return types.FetchResult{
			URL:        finalURL,
			Success:    false,
			StatusCode: httpResp.StatusCode,
			Error:      fmt.Sprintf("HTTP %d", httpResp.StatusCode),
		}, false, 0
	}

	// A redirect chain may terminate on a path the Policy Gate would
	// otherwise have rejected; the final URL is re-checked.
	if admit, reason := f.gate.Evaluate(ctx, finalURL, method); !admit {
		return types.BlockedResult(finalURL, reason), false, 0
	}

	reader, err := decompressReader(httpResp, io.LimitReader(httpResp.Body, f.cfg.MaxBodySize))
	if err != nil {
		return types.FetchResult{URL: finalURL, Success: false, StatusCode: httpResp.StatusCode, Error: err.Error()}, false, 0
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return types.FetchResult{URL: finalURL, Success: false, StatusCode: httpResp.StatusCode, Error: err.Error()}, isRetryableError(err), 0
	}

	f.logger.Debug("fetch succeeded", "url", finalURL, "status", httpResp.StatusCode, "bytes", len(body), "attempt", attemptNo)

	return types.FetchResult{
		URL:        finalURL,
		Success:    true,
		StatusCode: httpResp.StatusCode,
		Content:    body,
	}, false, 0
}

// backoff computes base_delay * 2^(attempt-1) + jitter, jitter in
// [0, base_delay].
func backoff(base time.Duration, attempt int) time.Duration {
	factor := 1 << (attempt - 1)
	d := base * time.Duration(factor)
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	return d + jitter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}

// decompressReader wraps reader with the decompressor matching the
// response's Content-Encoding (gzip, deflate, or brotli).
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError reports whether a transport-level error warrants a
// retry: timeouts, connection resets/refusals, and mid-stream closes.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) || errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses a Retry-After header (seconds or HTTP-date),
// capped at 120 seconds.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 0
}
