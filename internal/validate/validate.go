// Package validate performs advisory contract validation of task results.
// Each agent type has a compiled JSON Schema; results are validated as their
// marshaled form. Violations are logged by the caller, never fatal.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/memberscope/internal/model"
)

// resultBaseSchema holds the rules every task result must meet regardless of
// agent type. Per-type schemas $ref it.
const resultBaseSchema = `{
	"type": "object",
	"required": ["success", "records_processed"],
	"properties": {
		"success": {"type": "boolean"},
		"records_processed": {"type": "integer", "minimum": 0}
	},
	"if": {"required": ["success"], "properties": {"success": {"const": false}}},
	"then": {
		"required": ["error"],
		"properties": {"error": {"type": "string", "minLength": 1}}
	}
}`

// Per-type contracts. Types absent here are held to the base schema only.
var resultSchemas = map[string]string{
	"access_checker": `{
		"$ref": "task-result.schema.json",
		"if": {"required": ["success"], "properties": {"success": {"const": true}}},
		"then": {
			"required": ["verdict"],
			"properties": {"verdict": {"enum": ["allow", "block"]}}
		}
	}`,
	"page_classifier": `{
		"$ref": "task-result.schema.json",
		"if": {"required": ["success"], "properties": {"success": {"const": true}}},
		"then": {
			"required": ["page_type"],
			"properties": {"page_type": {"type": "string", "minLength": 1}}
		}
	}`,
	"member_extractor": `{
		"$ref": "task-result.schema.json",
		"properties": {
			"companies": {
				"type": "array",
				"items": {
					"anyOf": [
						{"properties": {"name": {"type": "string", "minLength": 1}}},
						{"required": ["domain"]},
						{"required": ["website"]}
					]
				}
			}
		}
	}`,
	"export_generator": `{
		"$ref": "task-result.schema.json",
		"properties": {
			"exports": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"path": {"type": "string", "minLength": 1},
						"format": {"type": "string", "minLength": 1}
					}
				}
			}
		}
	}`,
}

const companySchema = `{
	"type": "object",
	"allOf": [
		{"properties": {"name": {"type": "string", "minLength": 1}}},
		{"anyOf": [
			{"required": ["domain"]},
			{"required": ["website"]},
			{"required": ["phone"]}
		]}
	]
}`

const schemaBase = "https://memberscope.schemas.local/"

var (
	resultBase      *jsonschema.Schema
	resultCompiled  map[string]*jsonschema.Schema
	companyCompiled *jsonschema.Schema
)

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	resultBase = mustCompile(c, "task-result", resultBaseSchema)
	resultCompiled = make(map[string]*jsonschema.Schema, len(resultSchemas))
	for agentType, src := range resultSchemas {
		resultCompiled[agentType] = mustCompile(c, agentType, src)
	}
	companyCompiled = mustCompile(c, "company", companySchema)
}

func mustCompile(c *jsonschema.Compiler, name, src string) *jsonschema.Schema {
	url := schemaBase + name + ".schema.json"
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("validate: schema %s: %v", name, err))
	}
	s, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("validate: schema %s: %v", name, err))
	}
	return s
}

// Result validates a task result against the per-type schema. Returns whether
// the payload is valid and the list of violations.
func Result(agentType string, res *model.TaskResult) (bool, []string) {
	if res == nil {
		return false, []string{"nil result"}
	}
	schema, ok := resultCompiled[agentType]
	if !ok {
		schema = resultBase
	}
	return check(schema, res)
}

// Company validates one extracted company record. A record needs a name and
// at least one of domain, website, or phone to anchor identity.
func Company(c model.Company) (bool, []string) {
	return check(companyCompiled, c)
}

func check(schema *jsonschema.Schema, v any) (bool, []string) {
	doc, err := toDocument(v)
	if err != nil {
		return false, []string{err.Error()}
	}
	if err := schema.Validate(doc); err != nil {
		violations := flatten(err)
		return len(violations) == 0, violations
	}
	return true, nil
}

// toDocument round-trips v through JSON so the schema sees the wire form.
func toDocument(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// flatten walks the validation error tree down to leaf causes. Branch
// keywords (anyOf, oneOf) collapse to a single violation instead of one per
// failed alternative.
func flatten(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		branch := strings.HasSuffix(e.KeywordLocation, "/anyOf") ||
			strings.HasSuffix(e.KeywordLocation, "/oneOf")
		if len(e.Causes) == 0 || branch {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, loc+": "+e.Message)
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return out
}
