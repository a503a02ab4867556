package agents

import (
	"time"

	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newTestFetcher returns a fetcher tuned for local test servers: effectively
// unlimited rate so tests never sleep on the per-host limiter.
func newTestFetcher() *fetcher {
	return newFetcher(fetcherOptions{
		UserAgent:       "memberscope/1.0 (+https://github.com/sells-group/memberscope)",
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		RateLimitPerSec: 1000,
	})
}
