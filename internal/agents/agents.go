// Package agents contains the built-in task agents: access checking, link
// crawling, page classification, record extraction, enrichment, graph
// building, and export generation. Each agent is a self-contained unit
// behind the agent.Agent interface; the registry is open to replacements.
package agents

import (
	"time"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/config"
)

// All builds the full built-in agent set over one shared fetcher.
func All(cfg *config.Config) []agent.Agent {
	f := newFetcher(fetcherOptions{
		UserAgent:       cfg.Crawl.UserAgent,
		Timeout:         30 * time.Second,
		RateLimitPerSec: cfg.Crawl.RateLimitPerSec,
	})
	return []agent.Agent{
		NewAccessChecker(f),
		NewLinkCrawler(f),
		NewPageClassifier(),
		NewMemberExtractor(f),
		NewEventExtractor(f),
		NewFirmographicEnricher(f),
		NewQualityScorer(),
		NewGraphBuilder(),
		NewExportGenerator(cfg.Export.Dir),
	}
}
