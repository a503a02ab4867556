package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/model"
	"github.com/sells-group/memberscope/internal/validate"
)

// handleInit seeds the crawl queue with the base URL of every selected
// association.
func (o *Orchestrator) handleInit(_ context.Context) (bool, map[string]any) {
	if len(o.assocs) == 0 {
		o.state.AddError(model.ErrorRecord{
			Phase:        model.PhaseInit,
			Agent:        "orchestrator",
			ErrorType:    "config",
			ErrorMessage: "no associations selected",
		})
		return false, nil
	}

	seeded := 0
	for _, a := range o.assocs {
		added := o.state.AddToQueue(model.QueueItem{
			URL:         a.BaseURL,
			Priority:    a.Priority,
			Depth:       0,
			Association: a.Code,
		})
		if added {
			seeded++
		}
	}
	zap.L().Info("init: queue seeded",
		zap.Int("associations", len(o.assocs)),
		zap.Int("urls_seeded", seeded),
	)
	return true, map[string]any{"associations": len(o.assocs), "urls_seeded": seeded}
}

// handleGatekeeper checks crawl permission for every association root. A
// blocked root is moved to the blocked set so discovery never touches it.
// The phase fails only when every root is blocked or errored.
func (o *Orchestrator) handleGatekeeper(ctx context.Context) (bool, map[string]any) {
	tasks := make([]model.Task, len(o.assocs))
	for i, a := range o.assocs {
		tasks[i] = model.Task{
			Type:        agent.TypeAccessChecker,
			URL:         a.BaseURL,
			Association: a.Code,
		}
	}

	results, err := o.spawner.SpawnMany(ctx, agent.TypeAccessChecker, tasks, o.maxConcurrent(), o.taskTimeout())
	if err != nil {
		o.state.AddError(model.ErrorRecord{
			Phase:        model.PhaseGatekeeper,
			Agent:        agent.TypeAccessChecker,
			ErrorType:    "config",
			ErrorMessage: err.Error(),
		})
		return false, nil
	}

	allowed, blocked := 0, 0
	for i, res := range results {
		switch {
		case !res.Success:
			o.state.AddError(model.ErrorRecord{
				Phase:        model.PhaseGatekeeper,
				Agent:        agent.TypeAccessChecker,
				ErrorType:    res.ErrorType,
				ErrorMessage: res.Error,
				URL:          tasks[i].URL,
			})
			o.state.MarkBlocked(tasks[i].URL)
			blocked++
		case res.Verdict == "block":
			o.state.MarkBlocked(tasks[i].URL)
			blocked++
		default:
			allowed++
		}
	}

	stats := map[string]any{"allowed": allowed, "blocked": blocked}
	if allowed == 0 {
		o.state.AddError(model.ErrorRecord{
			Phase:        model.PhaseGatekeeper,
			Agent:        "orchestrator",
			ErrorType:    "blocked",
			ErrorMessage: "all association roots blocked",
		})
		return false, stats
	}
	return true, stats
}

// handleDiscovery expands the crawl frontier under the page budget. Pages
// hinted as member profiles or event pages are held in the queue untouched;
// extraction consumes them later. Directory pages are crawled for links but
// also held, since they carry extractable listings themselves. Navigation
// pages are crawled and consumed. State is checkpointed every
// CheckpointEveryURLs consumed URLs so a crash resumes mid-crawl.
func (o *Orchestrator) handleDiscovery(ctx context.Context) (bool, map[string]any) {
	maxPages := o.cfg.Crawl.MaxPages
	maxDepth := o.cfg.Crawl.MaxDepth
	cadence := o.cfg.Pipeline.CheckpointEveryURLs
	if cadence <= 0 {
		cadence = 25
	}

	// URLs already handled this phase that stay queued for extraction.
	held := make(map[string]bool)
	// The page budget is per run. A resumed run starts with a fresh budget;
	// visited pages are never re-fetched, so the cap still bounds site load.
	fetched := 0
	visited, discovered := 0, 0
	sinceCheckpoint := 0

	for {
		if err := ctx.Err(); err != nil {
			o.state.AddError(model.ErrorRecord{
				Phase:        model.PhaseDiscovery,
				Agent:        "orchestrator",
				ErrorType:    "cancelled",
				ErrorMessage: err.Error(),
			})
			return false, map[string]any{"urls_visited": visited, "urls_discovered": discovered}
		}

		budgetLeft := -1
		if maxPages > 0 {
			budgetLeft = maxPages - fetched
			if budgetLeft <= 0 {
				zap.L().Info("discovery: page budget reached", zap.Int("max_pages", maxPages))
				break
			}
		}
		batchSize := o.maxConcurrent()
		if budgetLeft >= 0 && budgetLeft < batchSize {
			batchSize = budgetLeft
		}

		// Partition the unhandled front of the queue: extractable leaves are
		// held, navigation pages past the depth cap are consumed, the rest is
		// crawled.
		var crawl []model.QueueItem
		var consume []string
		for _, item := range o.state.CrawlQueue {
			if held[item.URL] {
				continue
			}
			switch item.PageTypeHint {
			case model.PageTypeMemberProfile, model.PageTypeEventPage:
				held[item.URL] = true
			default:
				if maxDepth > 0 && item.Depth >= maxDepth {
					if item.PageTypeHint == model.PageTypeMemberDirectory {
						held[item.URL] = true
					} else {
						consume = append(consume, item.URL)
					}
					continue
				}
				crawl = append(crawl, item)
			}
			if len(crawl) >= batchSize {
				break
			}
		}

		for _, u := range consume {
			o.state.MarkVisited(u)
			visited++
			sinceCheckpoint++
		}
		if len(crawl) == 0 {
			if len(consume) == 0 {
				break
			}
			continue
		}

		tasks := make([]model.Task, len(crawl))
		for i, item := range crawl {
			tasks[i] = model.Task{
				Type:        agent.TypeLinkCrawler,
				URL:         item.URL,
				Association: item.Association,
				Depth:       item.Depth,
			}
		}
		results, err := o.spawner.SpawnMany(ctx, agent.TypeLinkCrawler, tasks, o.maxConcurrent(), o.taskTimeout())
		if err != nil {
			o.state.AddError(model.ErrorRecord{
				Phase:        model.PhaseDiscovery,
				Agent:        agent.TypeLinkCrawler,
				ErrorType:    "config",
				ErrorMessage: err.Error(),
			})
			return false, map[string]any{"urls_visited": visited, "urls_discovered": discovered}
		}

		// Fold results sequentially; the queue mutates only here.
		for i, res := range results {
			item := crawl[i]
			fetched++
			if !res.Success {
				o.state.AddError(model.ErrorRecord{
					Phase:        model.PhaseDiscovery,
					Agent:        agent.TypeLinkCrawler,
					ErrorType:    res.ErrorType,
					ErrorMessage: res.Error,
					URL:          item.URL,
				})
			} else {
				for _, link := range res.Links {
					if maxDepth > 0 && link.Depth > maxDepth {
						continue
					}
					if link.Association == "" {
						link.Association = item.Association
					}
					if link.SourceURL == "" {
						link.SourceURL = item.URL
					}
					if o.state.AddToQueue(link) {
						discovered++
					}
				}
			}
			if item.PageTypeHint == model.PageTypeMemberDirectory {
				held[item.URL] = true
			} else {
				o.state.MarkVisited(item.URL)
				visited++
				sinceCheckpoint++
			}
			if sinceCheckpoint >= cadence {
				o.checkpoint(ctx)
				sinceCheckpoint = 0
			}
		}
	}

	zap.L().Info("discovery complete",
		zap.Int("urls_visited", visited),
		zap.Int("urls_discovered", discovered),
		zap.Int("queue_depth", len(o.state.CrawlQueue)),
	)
	return true, map[string]any{
		"urls_visited":    visited,
		"urls_discovered": discovered,
		"queue_depth":     len(o.state.CrawlQueue),
	}
}

// handleClassification assigns the final page type hint to every queued URL.
// Hints set during discovery are provisional and re-examined here.
// Classification failures leave the existing hint in place; extraction treats
// an empty hint as "other".
func (o *Orchestrator) handleClassification(ctx context.Context) (bool, map[string]any) {
	var tasks []model.Task
	for _, item := range o.state.CrawlQueue {
		tasks = append(tasks, model.Task{
			Type:        agent.TypePageClassifier,
			URL:         item.URL,
			Association: item.Association,
			Depth:       item.Depth,
		})
	}
	if len(tasks) == 0 {
		return true, map[string]any{"classified": 0}
	}

	results, err := o.spawner.SpawnMany(ctx, agent.TypePageClassifier, tasks, o.maxConcurrent(), o.taskTimeout())
	if err != nil {
		o.state.AddError(model.ErrorRecord{
			Phase:        model.PhaseClassification,
			Agent:        agent.TypePageClassifier,
			ErrorType:    "config",
			ErrorMessage: err.Error(),
		})
		return false, nil
	}

	classified := 0
	byType := map[string]int{}
	for i, res := range results {
		if !res.Success {
			o.state.AddError(model.ErrorRecord{
				Phase:        model.PhaseClassification,
				Agent:        agent.TypePageClassifier,
				ErrorType:    res.ErrorType,
				ErrorMessage: res.Error,
				URL:          tasks[i].URL,
			})
			continue
		}
		if ok, violations := validate.Result(agent.TypePageClassifier, res); !ok {
			zap.L().Warn("classification: contract violation",
				zap.String("url", tasks[i].URL),
				zap.Strings("violations", violations),
			)
			continue
		}
		o.state.SetQueueHint(tasks[i].URL, res.PageType)
		byType[res.PageType]++
		classified++
	}
	return true, map[string]any{"classified": classified, "by_type": byType}
}

// failureRateMinAttempts is the warm-up before the failure-rate ceiling
// applies, so one early failure out of two tasks does not abort a phase.
const failureRateMinAttempts = 10

// failureRateExceeded records and reports an aggregate failure-rate breach.
// Each task failure is already handled individually; the ceiling catches a
// batch that is failing wholesale.
func (o *Orchestrator) failureRateExceeded(phase model.PipelinePhase, ceiling float64, attempted, failed int) bool {
	if ceiling <= 0 || attempted < failureRateMinAttempts {
		return false
	}
	rate := float64(failed) / float64(attempted)
	if rate <= ceiling {
		return false
	}
	o.state.AddError(model.ErrorRecord{
		Phase:        phase,
		Agent:        "orchestrator",
		ErrorType:    "failure_rate",
		ErrorMessage: fmt.Sprintf("failure rate %.2f exceeds ceiling %.2f after %d tasks", rate, ceiling, attempted),
	})
	return true
}

// extractorFor maps a page type hint to the extraction task type; empty means
// the page carries nothing extractable.
func extractorFor(hint string) string {
	switch hint {
	case model.PageTypeMemberDirectory, model.PageTypeMemberProfile:
		return agent.TypeMemberExtractor
	case model.PageTypeEventPage:
		return agent.TypeEventExtractor
	default:
		return ""
	}
}

// handleExtraction drains the queue, extracting records from pages with an
// extractable page type and folding companies, events, participants, and
// signals into state. The phase aborts when the aggregate failure rate
// crosses the configured ceiling, leaving the queue intact for a resume.
func (o *Orchestrator) handleExtraction(ctx context.Context) (bool, map[string]any) {
	ceiling := o.cfg.Pipeline.FailureRateCeiling
	cadence := o.cfg.Pipeline.CheckpointEveryURLs
	if cadence <= 0 {
		cadence = 25
	}

	attempted, failed := 0, 0
	companies, events := 0, 0
	sinceCheckpoint := 0

	for len(o.state.CrawlQueue) > 0 {
		if err := ctx.Err(); err != nil {
			o.state.AddError(model.ErrorRecord{
				Phase:        model.PhaseExtraction,
				Agent:        "orchestrator",
				ErrorType:    "cancelled",
				ErrorMessage: err.Error(),
			})
			return false, map[string]any{"attempted": attempted, "failed": failed}
		}

		batch := o.state.PeekQueue(o.maxConcurrent())

		// Group the batch by extractor type; pages with nothing to extract
		// are consumed without a task.
		grouped := map[string][]model.QueueItem{}
		for _, item := range batch {
			taskType := extractorFor(item.PageTypeHint)
			if taskType == "" {
				o.state.MarkVisited(item.URL)
				sinceCheckpoint++
				continue
			}
			grouped[taskType] = append(grouped[taskType], item)
		}

		// Sub-batches run in task-type order so batch execution and error
		// records keep a stable order across runs.
		taskTypes := make([]string, 0, len(grouped))
		for taskType := range grouped {
			taskTypes = append(taskTypes, taskType)
		}
		sort.Strings(taskTypes)

		for _, taskType := range taskTypes {
			items := grouped[taskType]
			tasks := make([]model.Task, len(items))
			for i, item := range items {
				tasks[i] = model.Task{
					Type:        taskType,
					URL:         item.URL,
					Association: item.Association,
					Depth:       item.Depth,
				}
			}
			results, err := o.spawner.SpawnMany(ctx, taskType, tasks, o.maxConcurrent(), o.taskTimeout())
			if err != nil {
				o.state.AddError(model.ErrorRecord{
					Phase:        model.PhaseExtraction,
					Agent:        taskType,
					ErrorType:    "config",
					ErrorMessage: err.Error(),
				})
				return false, map[string]any{"attempted": attempted, "failed": failed}
			}

			for i, res := range results {
				item := items[i]
				attempted++
				if !res.Success {
					failed++
					o.state.AddError(model.ErrorRecord{
						Phase:        model.PhaseExtraction,
						Agent:        taskType,
						ErrorType:    res.ErrorType,
						ErrorMessage: res.Error,
						URL:          item.URL,
					})
				} else {
					if ok, violations := validate.Result(taskType, res); !ok {
						zap.L().Warn("extraction: contract violation",
							zap.String("url", item.URL),
							zap.Strings("violations", violations),
						)
					}
					for ci := range res.Companies {
						if len(res.Companies[ci].AssociationCodes) == 0 && item.Association != "" {
							res.Companies[ci].AssociationCodes = []string{item.Association}
						}
					}
					o.state.AddCompanies(res.Companies...)
					o.state.AddEvents(res.Events...)
					o.state.AddParticipants(res.Participants...)
					o.state.AddSignals(res.Signals...)
					companies += len(res.Companies)
					events += len(res.Events)
				}
				o.state.MarkVisited(item.URL)
				sinceCheckpoint++
			}
		}

		if sinceCheckpoint >= cadence {
			o.checkpoint(ctx)
			sinceCheckpoint = 0
		}

		if o.failureRateExceeded(model.PhaseExtraction, ceiling, attempted, failed) {
			return false, map[string]any{"attempted": attempted, "failed": failed}
		}
	}

	zap.L().Info("extraction complete",
		zap.Int("attempted", attempted),
		zap.Int("failed", failed),
		zap.Int("companies", companies),
		zap.Int("events", events),
	)
	return true, map[string]any{
		"attempted": attempted,
		"failed":    failed,
		"companies": companies,
		"events":    events,
	}
}

// handleEnrichment runs two fan-outs over the extracted companies: the
// firmographic enricher fills missing fields, then the quality scorer grades
// each record. Per-company failures are recorded and skipped.
func (o *Orchestrator) handleEnrichment(ctx context.Context) (bool, map[string]any) {
	if len(o.state.Companies) == 0 {
		return true, map[string]any{"enriched": 0}
	}

	ceiling := o.cfg.Pipeline.FailureRateCeiling
	attempted, failed := 0, 0
	enriched, scored := 0, 0
	for _, taskType := range []string{agent.TypeEnricher, agent.TypeQualityScorer} {
		tasks := make([]model.Task, len(o.state.Companies))
		for i := range o.state.Companies {
			c := o.state.Companies[i]
			tasks[i] = model.Task{Type: taskType, Company: &c}
		}

		results, err := o.spawner.SpawnMany(ctx, taskType, tasks, o.maxConcurrent(), o.taskTimeout())
		if err != nil {
			o.state.AddError(model.ErrorRecord{
				Phase:        model.PhaseEnrichment,
				Agent:        taskType,
				ErrorType:    "config",
				ErrorMessage: err.Error(),
			})
			return false, nil
		}

		for i, res := range results {
			attempted++
			if !res.Success {
				failed++
				o.state.AddError(model.ErrorRecord{
					Phase:        model.PhaseEnrichment,
					Agent:        taskType,
					ErrorType:    res.ErrorType,
					ErrorMessage: res.Error,
				})
				continue
			}
			if len(res.Fields) == 0 {
				continue
			}
			o.state.EnrichCompany(i, res.Fields)
			if taskType == agent.TypeEnricher {
				enriched++
			} else {
				scored++
			}
		}

		if o.failureRateExceeded(model.PhaseEnrichment, ceiling, attempted, failed) {
			return false, map[string]any{"attempted": attempted, "failed": failed}
		}
	}
	return true, map[string]any{"enriched": enriched, "scored": scored}
}

// handleValidation runs the advisory record validator and then intra-run
// deduplication. Validation violations are logged, never fatal; the dedupe
// prunes the companies bucket in place.
func (o *Orchestrator) handleValidation(_ context.Context) (bool, map[string]any) {
	invalid := 0
	for i, c := range o.state.Companies {
		if ok, violations := validate.Company(c); !ok {
			invalid++
			zap.L().Warn("validation: record violations",
				zap.Int("index", i),
				zap.String("name", c.Name),
				zap.Strings("violations", violations),
			)
		}
	}

	res := o.dedupe.Dedupe(o.state.Companies)
	o.state.ReplaceCompanies(res.Companies)

	zap.L().Info("validation complete",
		zap.Int("input", res.Input),
		zap.Int("merged", res.Merged),
		zap.Int("output", len(res.Companies)),
		zap.Int("invalid", invalid),
	)
	return true, map[string]any{
		"input":   res.Input,
		"merged":  res.Merged,
		"output":  len(res.Companies),
		"invalid": invalid,
	}
}

// handleResolution links the deduplicated records against the canonical
// entity set. Canonical entities replace their source records; the companies
// bucket is emptied once its records are absorbed.
func (o *Orchestrator) handleResolution(_ context.Context) (bool, map[string]any) {
	res := o.resolution.Resolve(o.state.Companies, o.state.CanonicalEntities)
	o.state.SetCanonicalEntities(res.Entities)
	o.state.ReplaceCompanies(nil)

	zap.L().Info("resolution complete",
		zap.Int("entities", len(res.Entities)),
		zap.Int("created", res.Created),
		zap.Int("absorbed", res.Absorbed),
	)
	return true, map[string]any{
		"entities": len(res.Entities),
		"created":  res.Created,
		"absorbed": res.Absorbed,
	}
}

// handleGraph spawns the graph builder over a snapshot of the resolved data
// and folds the produced edges into state.
func (o *Orchestrator) handleGraph(ctx context.Context) (bool, map[string]any) {
	task := model.Task{
		Type: agent.TypeGraphBuilder,
		Payload: map[string]any{
			"entities":     o.state.CanonicalEntities,
			"events":       o.state.Events,
			"participants": o.state.Participants,
			"signals":      o.state.CompetitorSignals,
		},
	}
	res, err := o.spawner.Spawn(ctx, agent.TypeGraphBuilder, task, o.taskTimeout())
	if err != nil {
		o.state.AddError(model.ErrorRecord{
			Phase:        model.PhaseGraph,
			Agent:        agent.TypeGraphBuilder,
			ErrorType:    "config",
			ErrorMessage: err.Error(),
		})
		return false, nil
	}
	if !res.Success {
		o.state.AddError(model.ErrorRecord{
			Phase:        model.PhaseGraph,
			Agent:        agent.TypeGraphBuilder,
			ErrorType:    res.ErrorType,
			ErrorMessage: res.Error,
		})
		return false, nil
	}

	o.state.AddEdges(res.Edges...)
	return true, map[string]any{"edges": len(res.Edges)}
}

// handleExport writes one artifact per configured format. A failed format is
// recorded and skipped; the phase fails only when every format fails.
func (o *Orchestrator) handleExport(ctx context.Context) (bool, map[string]any) {
	formats := o.cfg.Export.Formats
	if len(formats) == 0 {
		formats = []string{"json"}
	}

	tasks := make([]model.Task, len(formats))
	for i, format := range formats {
		tasks[i] = model.Task{
			Type: agent.TypeExportGenerator,
			Payload: map[string]any{
				"format":    format,
				"dir":       o.cfg.Export.Dir,
				"job_id":    o.state.JobID,
				"entities":  o.state.CanonicalEntities,
				"edges":     o.state.GraphEdges,
				"events":    o.state.Events,
				"companies": o.state.Companies,
			},
		}
	}

	results, err := o.spawner.SpawnMany(ctx, agent.TypeExportGenerator, tasks, o.maxConcurrent(), o.taskTimeout())
	if err != nil {
		o.state.AddError(model.ErrorRecord{
			Phase:        model.PhaseExport,
			Agent:        agent.TypeExportGenerator,
			ErrorType:    "config",
			ErrorMessage: err.Error(),
		})
		return false, nil
	}

	written := 0
	for i, res := range results {
		if !res.Success {
			o.state.AddError(model.ErrorRecord{
				Phase:        model.PhaseExport,
				Agent:        agent.TypeExportGenerator,
				ErrorType:    res.ErrorType,
				ErrorMessage: res.Error,
				Context:      map[string]any{"format": formats[i]},
			})
			continue
		}
		if ok, violations := validate.Result(agent.TypeExportGenerator, res); !ok {
			zap.L().Warn("export: contract violation",
				zap.String("format", formats[i]),
				zap.Strings("violations", violations),
			)
		}
		o.state.AddExports(res.Exports...)
		written += len(res.Exports)
	}

	stats := map[string]any{"formats": len(formats), "written": written}
	if written == 0 {
		o.state.AddError(model.ErrorRecord{
			Phase:        model.PhaseExport,
			Agent:        "orchestrator",
			ErrorType:    "export",
			ErrorMessage: "no export artifact written",
		})
		return false, stats
	}
	return true, stats
}

// handleMonitor emits a run summary and records a final checkpoint. It only
// runs when monitoring is enabled; otherwise EXPORT transitions straight to
// DONE.
func (o *Orchestrator) handleMonitor(ctx context.Context) (bool, map[string]any) {
	c := o.state.Counters
	zap.L().Info("monitor: run summary",
		zap.String("job_id", o.state.JobID),
		zap.Int("urls_visited", c.URLsVisited),
		zap.Int("companies_extracted", c.CompaniesExtracted),
		zap.Int("entities_resolved", c.EntitiesResolved),
		zap.Int("edges_built", c.EdgesBuilt),
		zap.Int("exports_written", c.ExportsWritten),
		zap.Int("errors", c.Errors),
		zap.Duration("elapsed", time.Since(o.state.CreatedAt)),
	)
	o.checkpoint(ctx)
	return true, map[string]any{
		"entities": len(o.state.CanonicalEntities),
		"errors":   c.Errors,
	}
}
