package agents

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/model"
	"github.com/sells-group/memberscope/internal/resolve"
)

var (
	metaDescRe = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]+content=["']([^"']+)["']`)
	metaGenRe  = regexp.MustCompile(`(?is)<meta[^>]+name=["']generator["'][^>]+content=["']([^"']+)["']`)
	mailtoRe   = regexp.MustCompile(`(?i)mailto:([a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,})`)
	telHrefRe  = regexp.MustCompile(`(?i)tel:([+0-9][0-9 ().-]{6,})`)
)

// techMarkers maps page fingerprints to tech stack labels.
var techMarkers = []struct {
	marker string
	label  string
}{
	{"wp-content", "WordPress"},
	{"shopify", "Shopify"},
	{"squarespace", "Squarespace"},
	{"wix.com", "Wix"},
	{"hubspot", "HubSpot"},
	{"google-analytics.com", "Google Analytics"},
	{"googletagmanager.com", "Google Tag Manager"},
}

// FirmographicEnricher fills missing company fields from the company's own
// website: meta description, contact email and phone, and tech stack
// fingerprints. A company without a reachable website is a success with no
// fields.
type FirmographicEnricher struct {
	fetcher *fetcher
}

func NewFirmographicEnricher(f *fetcher) *FirmographicEnricher {
	return &FirmographicEnricher{fetcher: f}
}

func (e *FirmographicEnricher) Type() string { return agent.TypeEnricher }

func (e *FirmographicEnricher) Execute(ctx context.Context, task model.Task) (*model.TaskResult, error) {
	if task.Company == nil {
		return nil, eris.New("enrich: task missing company")
	}
	c := task.Company

	fields := map[string]any{}
	if c.Domain == "" && c.Website != "" {
		fields["domain"] = resolve.NormalizeDomain(c.Website)
	}

	site := c.Website
	if site == "" && c.Domain != "" {
		site = "https://" + c.Domain
	}
	if site == "" {
		return &model.TaskResult{Success: true, RecordsProcessed: 0, Fields: fields}, nil
	}

	body, status, err := e.fetcher.get(ctx, site)
	if err != nil || status != http.StatusOK {
		// Unreachable site is an enrichment miss, not a failure.
		return &model.TaskResult{Success: true, RecordsProcessed: 0, Fields: fields}, nil
	}
	page := string(body)

	if c.Description == "" {
		if m := metaDescRe.FindStringSubmatch(page); m != nil {
			fields["description"] = strings.TrimSpace(m[1])
		}
	}
	if c.Email == "" {
		if m := mailtoRe.FindStringSubmatch(page); m != nil {
			fields["email"] = strings.ToLower(m[1])
		}
	}
	if c.Phone == "" {
		if m := telHrefRe.FindStringSubmatch(page); m != nil {
			fields["phone"] = strings.TrimSpace(m[1])
		}
	}

	var stack []string
	lower := strings.ToLower(page)
	if m := metaGenRe.FindStringSubmatch(page); m != nil {
		stack = append(stack, strings.TrimSpace(m[1]))
	}
	for _, t := range techMarkers {
		if strings.Contains(lower, t.marker) {
			stack = append(stack, t.label)
		}
	}
	if len(stack) > 0 {
		fields["tech_stack"] = stack
	}

	return &model.TaskResult{
		Success:          true,
		RecordsProcessed: 1,
		Fields:           fields,
	}, nil
}

// QualityScorer grades a company record by field completeness. The score is
// the completeness fraction; grades cut at the usual letter boundaries.
type QualityScorer struct{}

func NewQualityScorer() *QualityScorer {
	return &QualityScorer{}
}

func (s *QualityScorer) Type() string { return agent.TypeQualityScorer }

func (s *QualityScorer) Execute(_ context.Context, task model.Task) (*model.TaskResult, error) {
	if task.Company == nil {
		return nil, eris.New("score: task missing company")
	}
	score := resolve.Completeness(*task.Company)
	return &model.TaskResult{
		Success:          true,
		RecordsProcessed: 1,
		Fields: map[string]any{
			"quality_score": score,
			"quality_grade": gradeFor(score),
		},
	}, nil
}

func gradeFor(score float64) string {
	switch {
	case score >= 0.9:
		return "A"
	case score >= 0.75:
		return "B"
	case score >= 0.6:
		return "C"
	case score >= 0.4:
		return "D"
	default:
		return "F"
	}
}
