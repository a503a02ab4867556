package resolve

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/model"
)

// MergeStrategy selects how a merge group is collapsed into one record.
type MergeStrategy string

const (
	// StrategyKeepBest retains only the base record's fields plus the union
	// of association codes and provenance.
	StrategyKeepBest MergeStrategy = "keep_best"
	// StrategyMergeAll additionally unions list-valued fields and takes the
	// maximum of numeric fields across the group.
	StrategyMergeAll MergeStrategy = "merge_all"
)

// DefaultThreshold is the inclusive merge threshold for pairwise scores.
const DefaultThreshold = 0.85

// Config controls engine behavior for one operating mode.
type Config struct {
	Threshold float64       `yaml:"threshold" mapstructure:"threshold"`
	Strategy  MergeStrategy `yaml:"strategy" mapstructure:"strategy"`
	Weights   Weights       `yaml:"weights" mapstructure:"weights"`
}

// DefaultDedupeConfig returns the intra-batch dedupe defaults.
func DefaultDedupeConfig() Config {
	return Config{Threshold: DefaultThreshold, Strategy: StrategyKeepBest, Weights: DedupeWeights()}
}

// DefaultResolutionConfig returns the cross-batch resolution defaults.
func DefaultResolutionConfig() Config {
	return Config{Threshold: DefaultThreshold, Strategy: StrategyMergeAll, Weights: ResolutionWeights()}
}

// Engine is the entity resolution and deduplication engine. It is a
// synchronous, single-threaded algorithm; given the same input order and
// configuration its output is reproducible.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine, filling zero config fields with defaults.
func NewEngine(cfg Config) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyKeepBest
	}
	zero := Weights{}
	if cfg.Weights == zero {
		cfg.Weights = DedupeWeights()
	}
	return &Engine{cfg: cfg}
}

// MergeGroup is a set of input record indices judged to refer to the same
// real-world company, with the canonical record chosen from the set.
type MergeGroup struct {
	Indices   []int         `json:"indices"`
	Canonical model.Company `json:"canonical"`
	Aliases   []string      `json:"aliases,omitempty"`
}

// DedupeResult is the output of intra-batch deduplication.
type DedupeResult struct {
	Companies []model.Company `json:"companies"`
	Groups    []MergeGroup    `json:"groups,omitempty"`
	Input     int             `json:"input"`
	Merged    int             `json:"merged"`
}

// Dedupe merges duplicates within one batch of freshly extracted records.
// Output order is insertion order of non-merged records followed by merge
// groups in the order their earliest member appeared.
func (e *Engine) Dedupe(records []model.Company) *DedupeResult {
	res := &DedupeResult{Input: len(records)}
	if len(records) == 0 {
		return res
	}

	recs := make([]normRecord, len(records))
	for i, c := range records {
		recs[i] = normalizeRecord(i, c)
	}
	groups := e.group(recs)

	for _, g := range groups {
		if len(g) > 1 {
			canonical, aliases := e.canonicalize(records, g)
			res.Groups = append(res.Groups, MergeGroup{Indices: g, Canonical: canonical, Aliases: aliases})
			res.Merged += len(g) - 1
			continue
		}
		res.Companies = append(res.Companies, records[g[0]])
	}
	for _, mg := range res.Groups {
		res.Companies = append(res.Companies, mg.Canonical)
	}

	zap.L().Debug("dedupe complete",
		zap.Int("input", res.Input),
		zap.Int("output", len(res.Companies)),
		zap.Int("merged", res.Merged),
	)
	return res
}

// ResolveResult is the output of cross-batch resolution: the full canonical
// set plus an alias map keyed by entity id.
type ResolveResult struct {
	Entities []model.CanonicalEntity `json:"entities"`
	Aliases  map[string][]string     `json:"aliases,omitempty"`
	Created  int                     `json:"created"`
	Absorbed int                     `json:"absorbed"`
}

// Resolve merges new records into previously canonicalized entities or forms
// new ones. Existing entities are indexed ahead of the new batch so a new
// record sharing a blocking bucket with an entity becomes its merge
// candidate.
func (e *Engine) Resolve(newRecords []model.Company, existing []model.CanonicalEntity) *ResolveResult {
	res := &ResolveResult{Aliases: make(map[string][]string)}

	combined := make([]model.Company, 0, len(existing)+len(newRecords))
	for _, ent := range existing {
		combined = append(combined, ent.Company)
	}
	combined = append(combined, newRecords...)
	if len(combined) == 0 {
		return res
	}

	recs := make([]normRecord, len(combined))
	for i, c := range combined {
		recs[i] = normalizeRecord(i, c)
	}
	groups := e.group(recs)

	var singles, merged [][]int
	for _, g := range groups {
		if len(g) == 1 {
			singles = append(singles, g)
		} else {
			merged = append(merged, g)
		}
	}

	build := func(g []int) model.CanonicalEntity {
		canonical, aliases := e.canonicalize(combined, g)

		ent := model.CanonicalEntity{
			Company:    canonical,
			MergedFrom: len(g),
		}
		for _, i := range g {
			if i < len(existing) {
				// Earliest existing entity in the group keeps its identity.
				if ent.ID == "" {
					ent.ID = existing[i].ID
				}
				aliases = unionStrings(aliases, existing[i].Aliases)
				ent.SourceIndices = append(ent.SourceIndices, existing[i].SourceIndices...)
			} else {
				ent.SourceIndices = append(ent.SourceIndices, i-len(existing))
			}
		}
		if ent.ID == "" {
			ent.ID = uuid.New().String()
			res.Created++
		}
		// Drop any alias that equals the canonical name.
		ent.Aliases = nil
		canonNorm := NormalizeName(canonical.Name)
		for _, a := range aliases {
			if NormalizeName(a) != canonNorm {
				ent.Aliases = append(ent.Aliases, a)
			}
		}
		res.Aliases[ent.ID] = ent.Aliases
		return ent
	}

	for _, g := range singles {
		res.Entities = append(res.Entities, build(g))
	}
	for _, g := range merged {
		for _, i := range g {
			if i >= len(existing) {
				res.Absorbed++
			}
		}
		res.Entities = append(res.Entities, build(g))
	}

	zap.L().Debug("resolution complete",
		zap.Int("new_records", len(newRecords)),
		zap.Int("existing_entities", len(existing)),
		zap.Int("entities", len(res.Entities)),
		zap.Int("created", res.Created),
		zap.Int("absorbed", res.Absorbed),
	)
	return res
}

// group flood-fills merge groups over the blocking index: starting from an
// unassigned record, absorb every candidate scoring at or above the
// threshold, then repeat from the absorbed records. Transitive chains merge
// into one group even when the endpoints score below threshold; see
// DESIGN.md.
func (e *Engine) group(recs []normRecord) [][]int {
	idx := buildIndex(recs)
	assigned := make([]bool, len(recs))

	var groups [][]int
	for i := range recs {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		group := []int{i}
		frontier := []int{i}
		for len(frontier) > 0 {
			cur := frontier[0]
			frontier = frontier[1:]
			for _, cand := range idx.candidates(recs[cur], assigned) {
				if score(recs[cur], recs[cand], e.cfg.Weights) >= e.cfg.Threshold {
					assigned[cand] = true
					group = append(group, cand)
					frontier = append(frontier, cand)
				}
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// completenessChecklist is the fixed field checklist for the fallback
// completeness score.
var completenessChecklist = []func(model.Company) bool{
	func(c model.Company) bool { return c.Name != "" },
	func(c model.Company) bool { return c.Domain != "" },
	func(c model.Company) bool { return c.Website != "" },
	func(c model.Company) bool { return c.Phone != "" },
	func(c model.Company) bool { return c.Email != "" },
	func(c model.Company) bool { return c.Street != "" },
	func(c model.Company) bool { return c.City != "" },
	func(c model.Company) bool { return c.State != "" },
	func(c model.Company) bool { return c.ZipCode != "" },
	func(c model.Company) bool { return c.Description != "" },
}

// Completeness is the fraction of the field checklist that is non-empty.
func Completeness(c model.Company) float64 {
	filled := 0
	for _, has := range completenessChecklist {
		if has(c) {
			filled++
		}
	}
	return float64(filled) / float64(len(completenessChecklist))
}

func recordScore(c model.Company) float64 {
	if c.QualityScore != nil {
		return *c.QualityScore
	}
	return Completeness(c)
}

// canonicalize collapses a merge group into one canonical record plus the
// alias names of the non-canonical members. The base record is the highest
// scoring member; ties break to the earliest input index.
func (e *Engine) canonicalize(records []model.Company, indices []int) (model.Company, []string) {
	base := indices[0]
	best := recordScore(records[base])
	for _, i := range indices[1:] {
		if s := recordScore(records[i]); s > best {
			best = s
			base = i
		}
	}

	canonical := records[base]
	baseNorm := NormalizeName(canonical.Name)

	var aliases []string
	seenAlias := map[string]bool{baseNorm: true}
	for _, i := range indices {
		if i == base {
			continue
		}
		norm := NormalizeName(records[i].Name)
		if records[i].Name != "" && !seenAlias[norm] {
			seenAlias[norm] = true
			aliases = append(aliases, records[i].Name)
		}
	}

	// Union of association codes and provenance across the whole group, in
	// group order.
	canonical.AssociationCodes = nil
	canonical.Provenance = nil
	seenCode := make(map[string]bool)
	seenProv := make(map[string]bool)
	for _, i := range indices {
		for _, code := range records[i].AssociationCodes {
			if !seenCode[code] {
				seenCode[code] = true
				canonical.AssociationCodes = append(canonical.AssociationCodes, code)
			}
		}
		for _, ref := range records[i].Provenance {
			key := ref.URL + "|" + ref.Agent
			if !seenProv[key] {
				seenProv[key] = true
				canonical.Provenance = append(canonical.Provenance, ref)
			}
		}
	}

	if e.cfg.Strategy == StrategyMergeAll {
		mergeAll(&canonical, records, indices)
	}
	return canonical, aliases
}

// mergeAll unions list-valued fields and takes the maximum of numeric fields
// across the group.
func mergeAll(canonical *model.Company, records []model.Company, indices []int) {
	seenTech := make(map[string]bool)
	for _, t := range canonical.TechStack {
		seenTech[t] = true
	}
	seenContact := make(map[string]bool)
	for _, c := range canonical.Contacts {
		seenContact[contactKey(c)] = true
	}

	for _, i := range indices {
		rec := records[i]
		for _, t := range rec.TechStack {
			if !seenTech[t] {
				seenTech[t] = true
				canonical.TechStack = append(canonical.TechStack, t)
			}
		}
		for _, c := range rec.Contacts {
			key := contactKey(c)
			if !seenContact[key] {
				seenContact[key] = true
				canonical.Contacts = append(canonical.Contacts, c)
			}
		}
		if rec.EmployeeCountMin > canonical.EmployeeCountMin {
			canonical.EmployeeCountMin = rec.EmployeeCountMin
		}
		if rec.EmployeeCountMax > canonical.EmployeeCountMax {
			canonical.EmployeeCountMax = rec.EmployeeCountMax
		}
		if rec.RevenueEstimate > canonical.RevenueEstimate {
			canonical.RevenueEstimate = rec.RevenueEstimate
		}
		if rec.QualityScore != nil &&
			(canonical.QualityScore == nil || *rec.QualityScore > *canonical.QualityScore) {
			qs := *rec.QualityScore
			canonical.QualityScore = &qs
		}
	}
}

// contactKey deduplicates contacts by email when present, name otherwise.
func contactKey(c model.Contact) string {
	if c.Email != "" {
		return "email:" + strings.ToLower(c.Email)
	}
	return "name:" + strings.ToLower(c.Name)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
