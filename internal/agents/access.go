package agents

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/model"
)

// AccessChecker decides whether a source root may be crawled. It fetches the
// site's robots.txt and blocks when the wildcard (or our own) user-agent
// group disallows the root. A missing or unreachable robots.txt allows.
type AccessChecker struct {
	fetcher *fetcher
}

func NewAccessChecker(f *fetcher) *AccessChecker {
	return &AccessChecker{fetcher: f}
}

func (a *AccessChecker) Type() string { return agent.TypeAccessChecker }

func (a *AccessChecker) Execute(ctx context.Context, task model.Task) (*model.TaskResult, error) {
	u, err := url.Parse(task.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "access: parse url %s", task.URL)
	}
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"

	body, status, err := a.fetcher.get(ctx, robotsURL)
	if err != nil || status != http.StatusOK {
		zap.L().Debug("access: no robots.txt, allowing",
			zap.String("url", robotsURL),
			zap.Int("status", status),
		)
		return &model.TaskResult{Success: true, Verdict: "allow", RecordsProcessed: 1}, nil
	}

	if rootDisallowed(string(body), a.fetcher.opts.UserAgent, u.Path) {
		zap.L().Info("access: root disallowed by robots.txt",
			zap.String("url", task.URL),
			zap.String("association", task.Association),
		)
		return &model.TaskResult{Success: true, Verdict: "block", RecordsProcessed: 1}, nil
	}
	return &model.TaskResult{Success: true, Verdict: "allow", RecordsProcessed: 1}, nil
}

// rootDisallowed parses robots.txt group by group and reports whether the
// given path is disallowed for the wildcard agent or for our agent token.
func rootDisallowed(robots, userAgent, path string) bool {
	if path == "" {
		path = "/"
	}
	agentToken := strings.ToLower(userAgent)
	if i := strings.IndexAny(agentToken, "/ "); i > 0 {
		agentToken = agentToken[:i]
	}

	applies := false
	for _, line := range strings.Split(robots, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			ua := strings.ToLower(value)
			applies = ua == "*" || strings.Contains(agentToken, ua)
		case "disallow":
			if applies && value != "" && strings.HasPrefix(path, value) {
				return true
			}
		}
	}
	return false
}
