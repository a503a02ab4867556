package agents

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/model"
)

// LinkCrawler fetches one page and harvests its same-host links as queue
// items one level deeper. Each link carries a provisional page type hint from
// URL structure, which discovery uses to decide what to crawl further versus
// hold for extraction; the classification phase later owns the final hint.
// Link filtering (dedup, depth cap, URL exclusivity) is the orchestrator's
// job; the crawler only reports what the page links to.
type LinkCrawler struct {
	fetcher *fetcher
}

func NewLinkCrawler(f *fetcher) *LinkCrawler {
	return &LinkCrawler{fetcher: f}
}

func (c *LinkCrawler) Type() string { return agent.TypeLinkCrawler }

func (c *LinkCrawler) Execute(ctx context.Context, task model.Task) (*model.TaskResult, error) {
	base, err := url.Parse(task.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: parse url %s", task.URL)
	}

	body, status, err := c.fetcher.get(ctx, task.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: fetch %s", task.URL)
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("crawl: http %d from %s", status, task.URL)
	}

	hrefs := parseLinks(string(body), base)
	links := make([]model.QueueItem, 0, len(hrefs))
	for _, href := range hrefs {
		hint := ""
		if u, err := url.Parse(href); err == nil {
			hint = classifyPath(strings.ToLower(u.Path))
		}
		links = append(links, model.QueueItem{
			URL:          href,
			Priority:     linkPriority(href),
			Depth:        task.Depth + 1,
			SourceURL:    task.URL,
			Association:  task.Association,
			PageTypeHint: hint,
		})
	}
	return &model.TaskResult{
		Success:          true,
		RecordsProcessed: 1,
		Links:            links,
	}, nil
}

// linkPriority boosts directory-looking paths so member listings surface
// before general site pages.
func linkPriority(rawURL string) int {
	path := strings.ToLower(rawURL)
	switch {
	case strings.Contains(path, "member") || strings.Contains(path, "directory") || strings.Contains(path, "roster"):
		return 10
	case strings.Contains(path, "event") || strings.Contains(path, "conference") || strings.Contains(path, "calendar"):
		return 5
	default:
		return 0
	}
}

// parseLinks extracts href attributes from HTML, resolves them against the
// base URL, and keeps only same-host links with fragments stripped.
func parseLinks(html string, base *url.URL) []string {
	var links []string
	seen := make(map[string]bool)

	idx := 0
	for {
		pos := strings.Index(html[idx:], `href="`)
		if pos == -1 {
			break
		}
		idx += pos + 6

		end := strings.Index(html[idx:], `"`)
		if end == -1 {
			break
		}
		href := html[idx : idx+end]
		idx += end + 1

		if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			continue
		}

		resolved, err := url.Parse(href)
		if err != nil {
			continue
		}
		absolute := base.ResolveReference(resolved)
		if absolute.Host != base.Host {
			continue
		}
		absolute.Fragment = ""
		normalized := absolute.String()
		if !seen[normalized] {
			seen[normalized] = true
			links = append(links, normalized)
		}
	}
	return links
}
