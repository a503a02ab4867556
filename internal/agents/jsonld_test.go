package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONLD(t *testing.T) {
	html := `
<html><head>
<script type="application/ld+json">
{"@type": "Organization", "name": "Acme Inc"}
</script>
<script type="application/ld+json">
[{"@type": "Event", "name": "Widget Expo"}, {"@type": "Person", "name": "Pat Lee"}]
</script>
<script type="application/ld+json">
{not valid json}
</script>
<script type="application/ld+json">
{"@graph": [{"@type": "LocalBusiness", "name": "Zenith Tooling"}]}
</script>
</head></html>`

	objects := extractJSONLD(html)
	require.Len(t, objects, 4, "arrays and @graph flatten; the malformed block is skipped")

	var names []string
	for _, obj := range objects {
		names = append(names, jsonString(obj, "name"))
	}
	assert.Equal(t, []string{"Acme Inc", "Widget Expo", "Pat Lee", "Zenith Tooling"}, names)
}

func TestJSONTypeList(t *testing.T) {
	assert.Equal(t, "Organization", jsonType(map[string]any{"@type": "Organization"}))
	assert.Equal(t, "Corporation", jsonType(map[string]any{"@type": []any{"Corporation", "Thing"}}))
	assert.Equal(t, "", jsonType(map[string]any{}))
}

func TestJSONObjectsSingleAndList(t *testing.T) {
	single := map[string]any{"address": map[string]any{"addressLocality": "Cleveland"}}
	assert.Len(t, jsonObjects(single, "address"), 1)

	list := map[string]any{"sponsor": []any{
		map[string]any{"name": "Acme"},
		map[string]any{"name": "Zenith"},
		"not an object",
	}}
	assert.Len(t, jsonObjects(list, "sponsor"), 2)

	assert.Nil(t, jsonObjects(map[string]any{}, "missing"))
}
