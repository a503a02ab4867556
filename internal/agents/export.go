package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/memberscope/internal/agent"
	"github.com/sells-group/memberscope/internal/model"
)

// ExportGenerator writes the resolved entity set and relationship graph to
// disk, one artifact per task. JSON exports carry the full documents; XLSX
// exports flatten entities and edges into worksheets.
type ExportGenerator struct {
	dir string
}

func NewExportGenerator(dir string) *ExportGenerator {
	if dir == "" {
		dir = "."
	}
	return &ExportGenerator{dir: dir}
}

func (e *ExportGenerator) Type() string { return agent.TypeExportGenerator }

func (e *ExportGenerator) Execute(_ context.Context, task model.Task) (*model.TaskResult, error) {
	format, _ := task.Payload["format"].(string)
	jobID, _ := task.Payload["job_id"].(string)
	dir := e.dir
	if d, ok := task.Payload["dir"].(string); ok && d != "" {
		dir = d
	}
	entities, _ := task.Payload["entities"].([]model.CanonicalEntity)
	edges, _ := task.Payload["edges"].([]model.GraphEdge)
	events, _ := task.Payload["events"].([]model.Event)
	companies, _ := task.Payload["companies"].([]model.Company)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create dir %s", dir)
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	name := fmt.Sprintf("memberscope-%s-%s", jobID, stamp)
	records := len(entities) + len(edges) + len(events) + len(companies)

	var path string
	var err error
	switch format {
	case "json", "":
		format = "json"
		path, err = e.writeJSON(dir, name, entities, edges, events, companies)
	case "xlsx":
		path, err = e.writeXLSX(dir, name, entities, edges, events)
	default:
		return nil, eris.Errorf("export: unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("export: artifact written",
		zap.String("format", format),
		zap.String("path", path),
		zap.Int("records", records),
	)
	return &model.TaskResult{
		Success:          true,
		RecordsProcessed: records,
		Exports: []model.ExportArtifact{{
			Format:    format,
			Path:      path,
			Records:   records,
			CreatedAt: time.Now().UTC(),
		}},
	}, nil
}

func (e *ExportGenerator) writeJSON(dir, name string, entities []model.CanonicalEntity, edges []model.GraphEdge, events []model.Event, companies []model.Company) (string, error) {
	doc := map[string]any{
		"entities":  entities,
		"edges":     edges,
		"events":    events,
		"companies": companies,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "export: marshal json")
	}
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "export: write %s", path)
	}
	return path, nil
}

func (e *ExportGenerator) writeXLSX(dir, name string, entities []model.CanonicalEntity, edges []model.GraphEdge, events []model.Event) (string, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Entities")
	if err != nil {
		return "", eris.Wrap(err, "export: add entities sheet")
	}
	addRow(sheet, "ID", "Name", "Domain", "Phone", "City", "State", "Quality Grade", "Merged From", "Associations")
	for _, ent := range entities {
		c := ent.Company
		addRow(sheet,
			ent.ID, c.Name, c.Domain, c.Phone, c.City, c.State,
			c.QualityGrade, strconv.Itoa(ent.MergedFrom), strings.Join(c.AssociationCodes, ", "),
		)
	}

	edgeSheet, err := f.AddSheet("Edges")
	if err != nil {
		return "", eris.Wrap(err, "export: add edges sheet")
	}
	addRow(edgeSheet, "From Type", "From", "Relation", "To Type", "To", "Weight")
	for _, edge := range edges {
		addRow(edgeSheet,
			edge.FromType, edge.From, edge.Relation, edge.ToType, edge.To,
			strconv.FormatFloat(edge.Weight, 'f', -1, 64),
		)
	}

	eventSheet, err := f.AddSheet("Events")
	if err != nil {
		return "", eris.Wrap(err, "export: add events sheet")
	}
	addRow(eventSheet, "Name", "Association", "Start", "End", "Location", "Source URL")
	for _, ev := range events {
		addRow(eventSheet, ev.Name, ev.Association, ev.StartDate, ev.EndDate, ev.Location, ev.SourceURL)
	}

	path := filepath.Join(dir, name+".xlsx")
	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "export: save %s", path)
	}
	return path, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
