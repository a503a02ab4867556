package agents

import (
	"context"
	"sort"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/model"
	"github.com/sells-group/memberscope/internal/resolve"
)

// GraphBuilder derives relationship edges from the resolved entity set:
// member_of between entities and their associations, participated_in between
// entities and events, and competes_with between entities sponsoring the
// same association's events.
type GraphBuilder struct{}

func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{}
}

func (g *GraphBuilder) Type() string { return agent.TypeGraphBuilder }

func (g *GraphBuilder) Execute(_ context.Context, task model.Task) (*model.TaskResult, error) {
	entities, _ := task.Payload["entities"].([]model.CanonicalEntity)
	events, _ := task.Payload["events"].([]model.Event)
	participants, _ := task.Payload["participants"].([]model.Participant)
	signals, _ := task.Payload["signals"].([]model.CompetitorSignal)

	// Entities are matched by normalized name; aliases count.
	byName := make(map[string]string)
	for _, e := range entities {
		if key := resolve.NormalizeName(e.Company.Name); key != "" {
			byName[key] = e.ID
		}
		for _, alias := range e.Aliases {
			if key := resolve.NormalizeName(alias); key != "" {
				if _, taken := byName[key]; !taken {
					byName[key] = e.ID
				}
			}
		}
	}

	var edges []model.GraphEdge
	seen := make(map[string]bool)
	addEdge := func(e model.GraphEdge) {
		key := e.FromType + "|" + e.From + "|" + e.Relation + "|" + e.ToType + "|" + e.To
		if !seen[key] {
			seen[key] = true
			edges = append(edges, e)
		}
	}

	for _, e := range entities {
		for _, code := range e.Company.AssociationCodes {
			addEdge(model.GraphEdge{
				FromType: "entity", From: e.ID,
				ToType: "association", To: code,
				Relation: "member_of", Weight: 1,
			})
		}
	}

	eventNames := make(map[string]bool, len(events))
	for _, ev := range events {
		eventNames[ev.Name] = true
	}
	for _, p := range participants {
		if p.EventName == "" || !eventNames[p.EventName] {
			continue
		}
		name := p.Company
		if name == "" {
			name = p.Name
		}
		entityID, matched := byName[resolve.NormalizeName(name)]
		if !matched {
			continue
		}
		addEdge(model.GraphEdge{
			FromType: "entity", From: entityID,
			ToType: "event", To: p.EventName,
			Relation: "participated_in", Weight: 1,
		})
	}

	// Sponsors of the same association's events compete for its members.
	sponsorsByAssoc := make(map[string][]string)
	for _, s := range signals {
		if s.Signal != "event_sponsorship" || s.Association == "" {
			continue
		}
		entityID, matched := byName[resolve.NormalizeName(s.Company)]
		if !matched {
			continue
		}
		sponsorsByAssoc[s.Association] = append(sponsorsByAssoc[s.Association], entityID)
	}
	assocCodes := make([]string, 0, len(sponsorsByAssoc))
	for code := range sponsorsByAssoc {
		assocCodes = append(assocCodes, code)
	}
	sort.Strings(assocCodes)
	for _, code := range assocCodes {
		ids := sponsorsByAssoc[code]
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if ids[i] == ids[j] {
					continue
				}
				addEdge(model.GraphEdge{
					FromType: "entity", From: ids[i],
					ToType: "entity", To: ids[j],
					Relation: "competes_with", Weight: 0.5,
				})
			}
		}
	}

	return &model.TaskResult{
		Success:          true,
		RecordsProcessed: len(edges),
		Edges:            edges,
	}, nil
}
