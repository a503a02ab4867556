package model

import "time"

// Company is one extracted company record. Records accumulate provenance as
// they move through extraction and enrichment; the resolution engine collapses
// duplicates into canonical entities.
type Company struct {
	Name             string      `json:"name"`
	LegalName        string      `json:"legal_name,omitempty"`
	Domain           string      `json:"domain,omitempty"`
	Website          string      `json:"website,omitempty"`
	Phone            string      `json:"phone,omitempty"`
	Email            string      `json:"email,omitempty"`
	Street           string      `json:"street,omitempty"`
	City             string      `json:"city,omitempty"`
	State            string      `json:"state,omitempty"`
	ZipCode          string      `json:"zip_code,omitempty"`
	Description      string      `json:"description,omitempty"`
	NAICSCode        string      `json:"naics_code,omitempty"`
	EmployeeCountMin int         `json:"employee_count_min,omitempty"`
	EmployeeCountMax int         `json:"employee_count_max,omitempty"`
	RevenueEstimate  int64       `json:"revenue_estimate,omitempty"`
	QualityScore     *float64    `json:"quality_score,omitempty"`
	QualityGrade     string      `json:"quality_grade,omitempty"`
	TechStack        []string    `json:"tech_stack,omitempty"`
	Contacts         []Contact   `json:"contacts,omitempty"`
	AssociationCodes []string    `json:"association_codes,omitempty"`
	Provenance       []SourceRef `json:"provenance,omitempty"`
}

// Contact is a person associated with a company.
type Contact struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// SourceRef records where a piece of data came from.
type SourceRef struct {
	URL         string    `json:"url"`
	Association string    `json:"association,omitempty"`
	Agent       string    `json:"agent,omitempty"`
	CollectedAt time.Time `json:"collected_at,omitempty"`
}

// Event is an association event (conference, trade show, webinar).
type Event struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Association string `json:"association,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Location    string `json:"location,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

// Participant links a company or person to an event.
type Participant struct {
	Name        string `json:"name"`
	Company     string `json:"company,omitempty"`
	Role        string `json:"role,omitempty"` // exhibitor, sponsor, speaker, attendee
	EventName   string `json:"event_name,omitempty"`
	Association string `json:"association,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

// CompetitorSignal is an observed competitive-intelligence data point.
type CompetitorSignal struct {
	Company     string `json:"company"`
	Signal      string `json:"signal"`
	Detail      string `json:"detail,omitempty"`
	Association string `json:"association,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

// CanonicalEntity is the merged representation of a group of company records
// judged to refer to the same real-world company.
type CanonicalEntity struct {
	ID            string   `json:"id"`
	Company       Company  `json:"company"`
	Aliases       []string `json:"aliases,omitempty"`
	SourceIndices []int    `json:"source_indices,omitempty"`
	MergedFrom    int      `json:"merged_from"`
}

// GraphEdge is one relationship in the association graph.
type GraphEdge struct {
	FromType string  `json:"from_type"`
	From     string  `json:"from"`
	ToType   string  `json:"to_type"`
	To       string  `json:"to"`
	Relation string  `json:"relation"` // member_of, participated_in, competes_with
	Weight   float64 `json:"weight,omitempty"`
}

// ExportArtifact records one generated export file.
type ExportArtifact struct {
	Format    string    `json:"format"`
	Path      string    `json:"path"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at"`
}
