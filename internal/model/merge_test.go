package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFieldsFillOnly(t *testing.T) {
	c := Company{Name: "Acme Inc", Description: "Original"}
	ApplyFields(&c, map[string]any{
		"name":        "Replacement",
		"description": "New description",
		"domain":      "acme.com",
		"city":        "Cleveland",
	})

	assert.Equal(t, "Acme Inc", c.Name, "existing fields are never overwritten")
	assert.Equal(t, "Original", c.Description)
	assert.Equal(t, "acme.com", c.Domain)
	assert.Equal(t, "Cleveland", c.City)
}

func TestApplyFieldsNumericCoercion(t *testing.T) {
	c := Company{}
	// JSON round-trips numbers as float64.
	ApplyFields(&c, map[string]any{
		"employee_count_min": float64(50),
		"employee_count_max": 200,
		"revenue_estimate":   float64(5_000_000),
		"quality_score":      0.85,
	})

	assert.Equal(t, 50, c.EmployeeCountMin)
	assert.Equal(t, 200, c.EmployeeCountMax)
	assert.Equal(t, int64(5_000_000), c.RevenueEstimate)
	require.NotNil(t, c.QualityScore)
	assert.InDelta(t, 0.85, *c.QualityScore, 1e-9)
}

func TestApplyFieldsTechStackUnion(t *testing.T) {
	c := Company{TechStack: []string{"WordPress"}}
	ApplyFields(&c, map[string]any{
		"tech_stack": []any{"WordPress", "HubSpot", ""},
	})
	assert.Equal(t, []string{"WordPress", "HubSpot"}, c.TechStack)

	ApplyFields(&c, map[string]any{"tech_stack": []string{"Shopify"}})
	assert.Equal(t, []string{"WordPress", "HubSpot", "Shopify"}, c.TechStack)
}

func TestApplyFieldsIgnoresUnknownAndNil(t *testing.T) {
	c := Company{Name: "Acme Inc"}
	ApplyFields(&c, map[string]any{
		"unknown_key": "value",
		"domain":      nil,
	})
	assert.Equal(t, Company{Name: "Acme Inc"}, c)
}

func TestApplyFieldsAlternateKeys(t *testing.T) {
	c := Company{}
	ApplyFields(&c, map[string]any{
		"company_name":        "Acme Inc",
		"company_description": "Widgets",
		"address_street":      "100 Main St",
	})
	assert.Equal(t, "Acme Inc", c.Name)
	assert.Equal(t, "Widgets", c.Description)
	assert.Equal(t, "100 Main St", c.Street)
}

func TestCheckpointSummary(t *testing.T) {
	s := NewPipelineState("job-cp", []string{"nema"})
	s.AddToQueue(QueueItem{URL: "https://nema.example.org"})
	s.AddCompanies(Company{Name: "Acme Inc"})

	cp := s.Checkpoint()
	assert.Equal(t, "job-cp", cp.JobID)
	assert.Equal(t, PhaseInit, cp.Phase)
	assert.Equal(t, 1, cp.QueueDepth)
	assert.Equal(t, 1, cp.Counters.CompaniesExtracted)
	assert.False(t, cp.CreatedAt.IsZero())
}
