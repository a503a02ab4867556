package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/memberscope/internal/model"
)

const companySite = `
<html><head>
<meta name="description" content="Precision widgets since 1952">
<meta name="generator" content="WordPress 6.4">
<script src="https://www.googletagmanager.com/gtag/js"></script>
</head><body>
<link rel="stylesheet" href="/wp-content/themes/acme/style.css">
<a href="mailto:Sales@Acme.com">Email us</a>
<a href="tel:+1 216 555 0147">Call us</a>
</body></html>`

func TestFirmographicEnricher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(companySite))
	}))
	defer srv.Close()

	e := NewFirmographicEnricher(newTestFetcher())
	res, err := e.Execute(context.Background(), model.Task{Company: &model.Company{
		Name:    "Acme Inc",
		Website: srv.URL,
	}})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "Precision widgets since 1952", res.Fields["description"])
	assert.Equal(t, "sales@acme.com", res.Fields["email"])
	assert.Equal(t, "+1 216 555 0147", res.Fields["phone"])

	stack, ok := res.Fields["tech_stack"].([]string)
	require.True(t, ok)
	assert.Contains(t, stack, "WordPress 6.4", "the generator meta tag is reported verbatim")
	assert.Contains(t, stack, "WordPress")
	assert.Contains(t, stack, "Google Tag Manager")
}

func TestEnricherPreservesExistingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(companySite))
	}))
	defer srv.Close()

	e := NewFirmographicEnricher(newTestFetcher())
	res, err := e.Execute(context.Background(), model.Task{Company: &model.Company{
		Name:        "Acme Inc",
		Website:     srv.URL,
		Description: "Already described",
		Email:       "existing@acme.com",
	}})
	require.NoError(t, err)
	assert.NotContains(t, res.Fields, "description")
	assert.NotContains(t, res.Fields, "email")
	assert.Contains(t, res.Fields, "phone")
}

func TestEnricherUnreachableSite(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	e := NewFirmographicEnricher(newTestFetcher())
	res, err := e.Execute(context.Background(), model.Task{Company: &model.Company{
		Name:    "Acme Inc",
		Website: srv.URL,
	}})
	require.NoError(t, err)
	assert.True(t, res.Success, "an unreachable site is a miss, not a failure")
	assert.NotContains(t, res.Fields, "description")
}

func TestEnricherDerivesDomain(t *testing.T) {
	e := NewFirmographicEnricher(newTestFetcher())
	res, err := e.Execute(context.Background(), model.Task{Company: &model.Company{
		Name:    "Acme Inc",
		Website: "https://www.acme.invalid-tld-for-test",
	}})
	require.NoError(t, err)
	assert.Equal(t, "acme.invalid-tld-for-test", res.Fields["domain"])
}

func TestEnricherMissingCompany(t *testing.T) {
	e := NewFirmographicEnricher(newTestFetcher())
	_, err := e.Execute(context.Background(), model.Task{})
	require.Error(t, err)
}

func TestQualityScorer(t *testing.T) {
	s := NewQualityScorer()
	res, err := s.Execute(context.Background(), model.Task{Company: &model.Company{
		Name: "Acme Inc", Domain: "acme.com", Website: "https://acme.com",
		Phone: "216-555-0147", Email: "info@acme.com", Street: "100 Main St",
		City: "Cleveland", State: "OH",
	}})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.InDelta(t, 0.8, res.Fields["quality_score"].(float64), 1e-9)
	assert.Equal(t, "B", res.Fields["quality_grade"])
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{1.0, "A"}, {0.9, "A"}, {0.8, "B"}, {0.75, "B"},
		{0.6, "C"}, {0.4, "D"}, {0.3, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gradeFor(tt.score), "score %.2f", tt.score)
	}
}

func TestTechMarkersCaseInsensitive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.ToUpper(`<script src="https://cdn.shopify.com/x.js"></script>`)))
	}))
	defer srv.Close()

	e := NewFirmographicEnricher(newTestFetcher())
	res, err := e.Execute(context.Background(), model.Task{Company: &model.Company{
		Name: "Shop", Website: srv.URL,
	}})
	require.NoError(t, err)
	stack, _ := res.Fields["tech_stack"].([]string)
	assert.Contains(t, stack, "Shopify")
}
