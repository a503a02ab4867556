package agents

import (
	"encoding/json"
	"strings"
)

// extractJSONLD pulls every JSON-LD object out of a page: each
// <script type="application/ld+json"> block, with top-level arrays and
// @graph containers flattened. Malformed blocks are skipped.
func extractJSONLD(html string) []map[string]any {
	var objects []map[string]any

	idx := 0
	for {
		pos := strings.Index(html[idx:], "application/ld+json")
		if pos == -1 {
			break
		}
		idx += pos

		open := strings.Index(html[idx:], ">")
		if open == -1 {
			break
		}
		start := idx + open + 1

		end := strings.Index(html[start:], "</script>")
		if end == -1 {
			break
		}
		raw := strings.TrimSpace(html[start : start+end])
		idx = start + end

		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			continue
		}
		objects = append(objects, flattenJSONLD(decoded)...)
	}
	return objects
}

func flattenJSONLD(v any) []map[string]any {
	switch vv := v.(type) {
	case []any:
		var out []map[string]any
		for _, e := range vv {
			out = append(out, flattenJSONLD(e)...)
		}
		return out
	case map[string]any:
		if graph, ok := vv["@graph"]; ok {
			return flattenJSONLD(graph)
		}
		return []map[string]any{vv}
	default:
		return nil
	}
}

// jsonType returns the @type of a JSON-LD object; the first entry when the
// type is a list.
func jsonType(obj map[string]any) string {
	switch t := obj["@type"].(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				return s
			}
		}
	}
	return ""
}

// jsonString returns the first non-empty string value among keys.
func jsonString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// jsonObjects returns the object values under a key, whether the value is a
// single object or a list.
func jsonObjects(obj map[string]any, key string) []map[string]any {
	switch v := obj[key].(type) {
	case map[string]any:
		return []map[string]any{v}
	case []any:
		var out []map[string]any
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
