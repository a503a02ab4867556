package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// QueueItem is one pending URL work item in the crawl queue.
type QueueItem struct {
	URL          string    `json:"url"`
	Priority     int       `json:"priority"`
	Depth        int       `json:"depth"`
	SourceURL    string    `json:"source_url,omitempty"`
	Association  string    `json:"association,omitempty"`
	PageTypeHint string    `json:"page_type_hint,omitempty"`
	AddedAt      time.Time `json:"added_at"`
}

// ErrorRecord is one append-only pipeline error entry.
type ErrorRecord struct {
	Phase        PipelinePhase  `json:"phase"`
	Agent        string         `json:"agent"`
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	URL          string         `json:"url,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// PhaseTransition is one append-only phase history entry, recorded on every
// transition.
type PhaseTransition struct {
	Phase     PipelinePhase  `json:"phase"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Stats     map[string]any `json:"stats,omitempty"`
}

// Counters mirror bucket growth monotonically. They are bumped on insertion
// and never recomputed from bucket length, because buckets can be pruned or
// merged during resolution while counters preserve history.
type Counters struct {
	URLsDiscovered        int `json:"total_urls_discovered"`
	URLsVisited           int `json:"total_urls_visited"`
	URLsBlocked           int `json:"total_urls_blocked"`
	CompaniesExtracted    int `json:"total_companies_extracted"`
	EventsExtracted       int `json:"total_events_extracted"`
	ParticipantsExtracted int `json:"total_participants_extracted"`
	SignalsExtracted      int `json:"total_signals_extracted"`
	EntitiesResolved      int `json:"total_entities_resolved"`
	EdgesBuilt            int `json:"total_edges_built"`
	ExportsWritten        int `json:"total_exports_written"`
	Errors                int `json:"total_errors"`
}

// PipelineState is the full mutable state of one pipeline run. It is mutated
// exclusively through its methods, by one phase handler at a time.
type PipelineState struct {
	JobID            string            `json:"job_id"`
	AssociationCodes []string          `json:"association_codes"`
	CurrentPhase     PipelinePhase     `json:"current_phase"`
	PhaseStartedAt   time.Time         `json:"phase_started_at"`
	PhaseHistory     []PhaseTransition `json:"phase_history,omitempty"`

	CrawlQueue        []QueueItem        `json:"crawl_queue,omitempty"`
	VisitedURLs       []string           `json:"visited_urls,omitempty"`
	BlockedURLs       []string           `json:"blocked_urls,omitempty"`
	Companies         []Company          `json:"companies,omitempty"`
	Events            []Event            `json:"events,omitempty"`
	Participants      []Participant      `json:"participants,omitempty"`
	CompetitorSignals []CompetitorSignal `json:"competitor_signals,omitempty"`
	CanonicalEntities []CanonicalEntity  `json:"canonical_entities,omitempty"`
	GraphEdges        []GraphEdge        `json:"graph_edges,omitempty"`
	Exports           []ExportArtifact   `json:"exports,omitempty"`
	Errors            []ErrorRecord      `json:"errors,omitempty"`

	Counters Counters `json:"counters"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// urlIndex tracks which bucket each URL lives in. Rebuilt lazily after
	// deserialization; never serialized.
	urlIndex map[string]urlBucket `json:"-"`
}

type urlBucket int

const (
	bucketQueued urlBucket = iota + 1
	bucketVisited
	bucketBlocked
)

// NewPipelineState creates run state at INIT. A job id is generated when
// empty.
func NewPipelineState(jobID string, associationCodes []string) *PipelineState {
	if jobID == "" {
		jobID = uuid.New().String()
	}
	now := time.Now().UTC()
	return &PipelineState{
		JobID:            jobID,
		AssociationCodes: associationCodes,
		CurrentPhase:     PhaseInit,
		PhaseStartedAt:   now,
		CreatedAt:        now,
		UpdatedAt:        now,
		urlIndex:         make(map[string]urlBucket),
	}
}

func (s *PipelineState) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// ensureIndex rebuilds the URL bucket index from the serialized slices.
func (s *PipelineState) ensureIndex() {
	if s.urlIndex != nil {
		return
	}
	s.urlIndex = make(map[string]urlBucket, len(s.CrawlQueue)+len(s.VisitedURLs)+len(s.BlockedURLs))
	for _, item := range s.CrawlQueue {
		s.urlIndex[item.URL] = bucketQueued
	}
	for _, u := range s.VisitedURLs {
		s.urlIndex[u] = bucketVisited
	}
	for _, u := range s.BlockedURLs {
		s.urlIndex[u] = bucketBlocked
	}
}

// AddToQueue inserts a URL work item in priority order (descending, insertion
// order stable among equal priorities). A URL already queued, visited, or
// blocked is a no-op; returns whether the item was added.
func (s *PipelineState) AddToQueue(item QueueItem) bool {
	s.ensureIndex()
	if _, seen := s.urlIndex[item.URL]; seen {
		return false
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}

	// Insert before the first lower-priority item; equal priorities keep
	// insertion order.
	pos := len(s.CrawlQueue)
	for i, existing := range s.CrawlQueue {
		if existing.Priority < item.Priority {
			pos = i
			break
		}
	}
	s.CrawlQueue = append(s.CrawlQueue, QueueItem{})
	copy(s.CrawlQueue[pos+1:], s.CrawlQueue[pos:])
	s.CrawlQueue[pos] = item

	s.urlIndex[item.URL] = bucketQueued
	s.Counters.URLsDiscovered++
	s.touch()
	return true
}

// PeekQueue returns up to n items from the front of the queue without
// removing them. Items leave the queue only via MarkVisited/MarkBlocked, so
// the queue itself is the resumption cursor after a restart.
func (s *PipelineState) PeekQueue(n int) []QueueItem {
	if n <= 0 || n > len(s.CrawlQueue) {
		n = len(s.CrawlQueue)
	}
	out := make([]QueueItem, n)
	copy(out, s.CrawlQueue[:n])
	return out
}

// SetQueueHint records a page type hint on a queued URL. Unknown or
// already-dequeued URLs are ignored.
func (s *PipelineState) SetQueueHint(url, hint string) {
	s.ensureIndex()
	if s.urlIndex[url] != bucketQueued {
		return
	}
	for i := range s.CrawlQueue {
		if s.CrawlQueue[i].URL == url {
			s.CrawlQueue[i].PageTypeHint = hint
			s.touch()
			return
		}
	}
}

// EnrichCompany folds enrichment field values into the company at index i.
func (s *PipelineState) EnrichCompany(i int, fields map[string]any) {
	if i < 0 || i >= len(s.Companies) {
		return
	}
	ApplyFields(&s.Companies[i], fields)
	s.touch()
}

// MarkVisited moves a URL from the queue to the visited set. A URL already
// visited or blocked is a no-op.
func (s *PipelineState) MarkVisited(url string) {
	s.moveURL(url, bucketVisited)
}

// MarkBlocked moves a URL from the queue to the blocked set. A URL already
// visited or blocked is a no-op.
func (s *PipelineState) MarkBlocked(url string) {
	s.moveURL(url, bucketBlocked)
}

func (s *PipelineState) moveURL(url string, target urlBucket) {
	s.ensureIndex()
	switch s.urlIndex[url] {
	case bucketVisited, bucketBlocked:
		return
	case bucketQueued:
		for i, item := range s.CrawlQueue {
			if item.URL == url {
				s.CrawlQueue = append(s.CrawlQueue[:i], s.CrawlQueue[i+1:]...)
				break
			}
		}
	}
	s.urlIndex[url] = target
	if target == bucketVisited {
		s.VisitedURLs = append(s.VisitedURLs, url)
		s.Counters.URLsVisited++
	} else {
		s.BlockedURLs = append(s.BlockedURLs, url)
		s.Counters.URLsBlocked++
	}
	s.touch()
}

// AddCompanies appends extracted company records.
func (s *PipelineState) AddCompanies(companies ...Company) {
	if len(companies) == 0 {
		return
	}
	s.Companies = append(s.Companies, companies...)
	s.Counters.CompaniesExtracted += len(companies)
	s.touch()
}

// ReplaceCompanies swaps the companies bucket for its deduplicated form.
// Counters are left untouched so extraction history survives the prune.
func (s *PipelineState) ReplaceCompanies(companies []Company) {
	s.Companies = companies
	s.touch()
}

// AddEvents appends extracted events.
func (s *PipelineState) AddEvents(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.Events = append(s.Events, events...)
	s.Counters.EventsExtracted += len(events)
	s.touch()
}

// AddParticipants appends extracted participants.
func (s *PipelineState) AddParticipants(participants ...Participant) {
	if len(participants) == 0 {
		return
	}
	s.Participants = append(s.Participants, participants...)
	s.Counters.ParticipantsExtracted += len(participants)
	s.touch()
}

// AddSignals appends competitor signals.
func (s *PipelineState) AddSignals(signals ...CompetitorSignal) {
	if len(signals) == 0 {
		return
	}
	s.CompetitorSignals = append(s.CompetitorSignals, signals...)
	s.Counters.SignalsExtracted += len(signals)
	s.touch()
}

// SetCanonicalEntities replaces the canonical entity set produced by
// resolution. The source company records the entities absorbed are pruned
// from the companies bucket by the caller via ReplaceCompanies.
func (s *PipelineState) SetCanonicalEntities(entities []CanonicalEntity) {
	prev := len(s.CanonicalEntities)
	s.CanonicalEntities = entities
	if added := len(entities) - prev; added > 0 {
		s.Counters.EntitiesResolved += added
	}
	s.touch()
}

// AddEdges appends relationship graph edges.
func (s *PipelineState) AddEdges(edges ...GraphEdge) {
	if len(edges) == 0 {
		return
	}
	s.GraphEdges = append(s.GraphEdges, edges...)
	s.Counters.EdgesBuilt += len(edges)
	s.touch()
}

// AddExports appends export artifacts.
func (s *PipelineState) AddExports(exports ...ExportArtifact) {
	if len(exports) == 0 {
		return
	}
	s.Exports = append(s.Exports, exports...)
	s.Counters.ExportsWritten += len(exports)
	s.touch()
}

// AddError appends an error record.
func (s *PipelineState) AddError(rec ErrorRecord) {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	s.Errors = append(s.Errors, rec)
	s.Counters.Errors++
	s.touch()
}

// Transition moves the run to the next phase, recording the completed phase
// in the history log. Only forward transitions and the jump to FAILED are
// legal.
func (s *PipelineState) Transition(next PipelinePhase, stats map[string]any) error {
	if !s.CurrentPhase.CanTransition(next) {
		return eris.Errorf("state: illegal transition %s -> %s", s.CurrentPhase, next)
	}
	now := time.Now().UTC()
	s.PhaseHistory = append(s.PhaseHistory, PhaseTransition{
		Phase:     s.CurrentPhase,
		StartedAt: s.PhaseStartedAt,
		EndedAt:   now,
		Stats:     stats,
	})
	s.CurrentPhase = next
	s.PhaseStartedAt = now
	if next == PhaseDone {
		s.CompletedAt = &now
	}
	s.touch()
	return nil
}
