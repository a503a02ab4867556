package agents

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/model"
	"github.com/sells-group/memberscope/internal/resolve"
)

var organizationTypes = map[string]bool{
	"Organization":        true,
	"LocalBusiness":       true,
	"Corporation":         true,
	"ProfessionalService": true,
	"Store":               true,
}

// MemberExtractor pulls company records out of member directory and profile
// pages. Structured data (JSON-LD Organization objects) is the primary
// source; a page without any yields zero records, which is a success.
type MemberExtractor struct {
	fetcher *fetcher
}

func NewMemberExtractor(f *fetcher) *MemberExtractor {
	return &MemberExtractor{fetcher: f}
}

func (e *MemberExtractor) Type() string { return agent.TypeMemberExtractor }

func (e *MemberExtractor) Execute(ctx context.Context, task model.Task) (*model.TaskResult, error) {
	body, status, err := e.fetcher.get(ctx, task.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: fetch %s", task.URL)
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("extract: http %d from %s", status, task.URL)
	}

	var companies []model.Company
	for _, obj := range extractJSONLD(string(body)) {
		if !organizationTypes[jsonType(obj)] {
			continue
		}
		c := companyFromJSONLD(obj)
		if c.Name == "" && c.Website == "" {
			continue
		}
		if c.Domain == "" {
			c.Domain = resolve.NormalizeDomain(c.Website)
		}
		c.Provenance = []model.SourceRef{{
			URL:         task.URL,
			Association: task.Association,
			Agent:       agent.TypeMemberExtractor,
			CollectedAt: time.Now().UTC(),
		}}
		companies = append(companies, c)
	}

	zap.L().Debug("extract: page processed",
		zap.String("url", task.URL),
		zap.Int("companies", len(companies)),
	)
	return &model.TaskResult{
		Success:          true,
		RecordsProcessed: len(companies),
		Companies:        companies,
	}, nil
}

func companyFromJSONLD(obj map[string]any) model.Company {
	c := model.Company{
		Name:        jsonString(obj, "name"),
		LegalName:   jsonString(obj, "legalName"),
		Website:     jsonString(obj, "url"),
		Phone:       jsonString(obj, "telephone"),
		Email:       strings.TrimPrefix(jsonString(obj, "email"), "mailto:"),
		Description: jsonString(obj, "description"),
		NAICSCode:   jsonString(obj, "naics"),
	}
	for _, addr := range jsonObjects(obj, "address") {
		c.Street = jsonString(addr, "streetAddress")
		c.City = jsonString(addr, "addressLocality")
		c.State = jsonString(addr, "addressRegion")
		c.ZipCode = jsonString(addr, "postalCode")
		break
	}
	for _, person := range jsonObjects(obj, "employee") {
		name := jsonString(person, "name")
		if name == "" {
			continue
		}
		c.Contacts = append(c.Contacts, model.Contact{
			Name:  name,
			Title: jsonString(person, "jobTitle"),
			Email: strings.TrimPrefix(jsonString(person, "email"), "mailto:"),
		})
	}
	return c
}

// EventExtractor pulls events and their participants from event pages.
// JSON-LD Event objects supply the event itself; performers, organizers, and
// sponsors become participants, with sponsorships doubling as competitive
// signals.
type EventExtractor struct {
	fetcher *fetcher
}

func NewEventExtractor(f *fetcher) *EventExtractor {
	return &EventExtractor{fetcher: f}
}

func (e *EventExtractor) Type() string { return agent.TypeEventExtractor }

func (e *EventExtractor) Execute(ctx context.Context, task model.Task) (*model.TaskResult, error) {
	body, status, err := e.fetcher.get(ctx, task.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: fetch %s", task.URL)
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("extract: http %d from %s", status, task.URL)
	}

	var events []model.Event
	var participants []model.Participant
	var signals []model.CompetitorSignal

	for _, obj := range extractJSONLD(string(body)) {
		if !strings.HasSuffix(jsonType(obj), "Event") {
			continue
		}
		ev := model.Event{
			Name:        jsonString(obj, "name"),
			URL:         jsonString(obj, "url"),
			Association: task.Association,
			StartDate:   jsonString(obj, "startDate"),
			EndDate:     jsonString(obj, "endDate"),
			SourceURL:   task.URL,
		}
		if ev.Name == "" {
			continue
		}
		for _, loc := range jsonObjects(obj, "location") {
			ev.Location = jsonString(loc, "name", "address")
			break
		}
		events = append(events, ev)

		for _, rk := range []struct{ role, key string }{
			{"speaker", "performer"},
			{"organizer", "organizer"},
			{"sponsor", "sponsor"},
		} {
			role := rk.role
			for _, p := range jsonObjects(obj, rk.key) {
				name := jsonString(p, "name")
				if name == "" {
					continue
				}
				participants = append(participants, model.Participant{
					Name:        name,
					Role:        role,
					EventName:   ev.Name,
					Association: task.Association,
					SourceURL:   task.URL,
				})
				if role == "sponsor" {
					signals = append(signals, model.CompetitorSignal{
						Company:     name,
						Signal:      "event_sponsorship",
						Detail:      ev.Name,
						Association: task.Association,
						SourceURL:   task.URL,
					})
				}
			}
		}
	}

	return &model.TaskResult{
		Success:          true,
		RecordsProcessed: len(events) + len(participants),
		Events:           events,
		Participants:     participants,
		Signals:          signals,
	}, nil
}
