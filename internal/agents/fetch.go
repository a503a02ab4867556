package agents

import (
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 512 * 1024

type fetcherOptions struct {
	UserAgent       string
	Timeout         time.Duration
	MaxRetries      int
	RateLimitPerSec float64
}

// fetcher is the shared polite HTTP client: per-host rate limiting, retry
// with jittered backoff on 429 and 5xx, and a hard body size cap.
type fetcher struct {
	client *http.Client
	opts   fetcherOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newFetcher(opts fetcherOptions) *fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "memberscope/1.0"
	}
	if opts.RateLimitPerSec <= 0 {
		opts.RateLimitPerSec = 2
	}
	return &fetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the limiter for a host, creating it on first use. Each
// host gets its own budget so one slow association never starves another.
func (f *fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.opts.RateLimitPerSec), 1)
		f.limiters[host] = lim
	}
	return lim
}

// get fetches a URL and returns the (capped) body and status code. Non-2xx
// statuses other than 429/5xx are returned to the caller, not retried.
func (f *fetcher) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}
	if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
		return nil, 0, eris.Wrap(err, "fetch: rate limiter wait")
	}

	var lastErr error
	for attempt := 0; attempt < f.opts.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, 0, eris.Wrap(err, "fetch: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			zap.L().Debug("fetch: request failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			f.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("fetch: http %d from %s", resp.StatusCode, rawURL)
			f.backoff(ctx, attempt)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if err != nil {
			return nil, resp.StatusCode, eris.Wrap(err, "fetch: read body")
		}
		return body, resp.StatusCode, nil
	}
	return nil, 0, eris.Wrap(lastErr, "fetch: all retries exhausted")
}

func (f *fetcher) backoff(ctx context.Context, attempt int) {
	base := 500 * time.Millisecond
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	d += time.Duration(rand.Int63n(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
