package model

// Page types assigned by classification and consumed by extraction.
const (
	PageTypeMemberDirectory = "member_directory"
	PageTypeMemberProfile   = "member_profile"
	PageTypeEventPage       = "event_page"
	PageTypeOther           = "other"
)

// Task is the input payload handed to one task unit ("agent"). Fields beyond
// Type are task-specific; unused ones stay zero.
type Task struct {
	Type        string         `json:"type"`
	URL         string         `json:"url,omitempty"`
	Association string         `json:"association,omitempty"`
	Depth       int            `json:"depth,omitempty"`
	Company     *Company       `json:"company,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// TaskResult is the uniform output of one task unit. Success and
// RecordsProcessed are always populated; the remaining fields carry
// task-specific output that the owning phase handler folds into pipeline
// state.
type TaskResult struct {
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	ErrorType        string `json:"error_type,omitempty"`
	RecordsProcessed int    `json:"records_processed"`

	Verdict      string             `json:"verdict,omitempty"`   // gatekeeper: allow | block
	PageType     string             `json:"page_type,omitempty"` // classifier output
	Links        []QueueItem        `json:"links,omitempty"`
	Companies    []Company          `json:"companies,omitempty"`
	Events       []Event            `json:"events,omitempty"`
	Participants []Participant      `json:"participants,omitempty"`
	Signals      []CompetitorSignal `json:"signals,omitempty"`
	Edges        []GraphEdge        `json:"edges,omitempty"`
	Exports      []ExportArtifact   `json:"exports,omitempty"`
	Fields       map[string]any     `json:"fields,omitempty"` // enrichment field values
}

// FailedResult builds the uniform failure-result shape the spawner returns
// for timeouts and recovered faults.
func FailedResult(errType, msg string) *TaskResult {
	return &TaskResult{
		Success:          false,
		Error:            msg,
		ErrorType:        errType,
		RecordsProcessed: 0,
	}
}
