package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int
	RatePerDomain rate.Limit // requests/sec per source domain
	Burst         int
	Breaker       BreakerOptions
}

// HTTPFetcher implements Fetcher using net/http with retry and per-domain
// rate limiting. Limiters are keyed by host, not by scraper instance, so
// every worker touching the same domain serializes through the same limiter.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers *HostBreakers
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "market-cli/1.0"
	}
	if opts.RatePerDomain == 0 {
		opts.RatePerDomain = 2
	}
	if opts.Burst == 0 {
		opts.Burst = int(math.Max(1, float64(opts.RatePerDomain)))
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
		breakers: NewHostBreakers(opts.Breaker),
	}
}

// hostOf extracts the lowercased host from a URL, or "" if unparseable.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// limiterFor returns the shared limiter for the host, creating it on
// first use.
func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.opts.RatePerDomain, f.opts.Burst)
		f.limiters[host] = l
	}
	return l
}

// Fetch downloads the URL, retrying transient failures with jittered backoff.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "ftp://") {
		return NewFTPFetcher(FTPOptions{Timeout: f.opts.Timeout}).Fetch(ctx, rawURL)
	}

	host := hostOf(rawURL)
	if err := f.breakers.Allow(host); err != nil {
		return nil, err
	}
	limiter := f.limiterFor(host)

	var lastErr error
	lastRetryable := false
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			backoff += time.Duration(rand.IntN(500)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "fetcher: cancelled during backoff")
			case <-time.After(backoff):
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		body, retryable, err := f.doFetch(ctx, rawURL)
		if err == nil {
			f.breakers.Success(host)
			return body, nil
		}
		lastErr, lastRetryable = err, retryable
		if !retryable {
			break
		}
		zap.L().Debug("fetch retry",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	// Host health only counts blocks and exhausted transient failures.
	// A plain 404 says nothing about the host.
	if IsBlocked(lastErr) || lastRetryable {
		f.breakers.Failure(host)
	}
	return nil, eris.Wrapf(lastErr, "fetcher: fetch %s", rawURL)
}

// doFetch performs one request. The second return value reports whether the
// failure is worth retrying.
func (f *HTTPFetcher) doFetch(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, eris.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, eris.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	// A challenge page can arrive with any status, 200 included. Backoff
	// does not clear it, so report it as terminal for this URL.
	if kind, blocked := detectBlock(resp, body); blocked {
		return nil, false, &BlockError{URL: rawURL, Kind: kind}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, eris.Errorf("status %d", resp.StatusCode)
	default:
		return nil, false, eris.Errorf("status %d", resp.StatusCode)
	}

	if readErr != nil {
		return nil, true, eris.Wrap(readErr, "read body")
	}
	return body, false, nil
}
