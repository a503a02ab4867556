package agents

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/model"
)

// PageClassifier assigns a page type from URL structure alone, without
// fetching. Path keywords are a coarse signal but cheap, and extraction
// tolerates misclassification: a page with nothing to extract yields zero
// records, not an error.
type PageClassifier struct{}

func NewPageClassifier() *PageClassifier {
	return &PageClassifier{}
}

func (c *PageClassifier) Type() string { return agent.TypePageClassifier }

func (c *PageClassifier) Execute(_ context.Context, task model.Task) (*model.TaskResult, error) {
	u, err := url.Parse(task.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: parse url %s", task.URL)
	}
	return &model.TaskResult{
		Success:          true,
		RecordsProcessed: 1,
		PageType:         classifyPath(strings.ToLower(u.Path)),
	}, nil
}

func classifyPath(path string) string {
	switch {
	case containsAny(path, "member-directory", "membership-directory", "directory", "roster", "our-members", "member-list"):
		return model.PageTypeMemberDirectory
	case containsAny(path, "/member/", "/members/", "/company/", "/profile/"):
		return model.PageTypeMemberProfile
	case containsAny(path, "member", "membership"):
		return model.PageTypeMemberDirectory
	case containsAny(path, "event", "conference", "trade-show", "tradeshow", "calendar", "webinar", "expo"):
		return model.PageTypeEventPage
	default:
		return model.PageTypeOther
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
