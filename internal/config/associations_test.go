package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAssociations(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "associations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAssociations(t *testing.T) {
	path := writeAssociations(t, `
associations:
  - code: nema
    name: National Electrical Manufacturers Association
    base_url: https://nema.example.org
    priority: 10
  - code: pma
    name: Precision Metalforming Association
    base_url: https://pma.example.org
    priority: 8
`)
	assocs, err := LoadAssociations(path)
	require.NoError(t, err)
	require.Len(t, assocs, 2)
	assert.Equal(t, "nema", assocs[0].Code)
	assert.Equal(t, "https://nema.example.org", assocs[0].BaseURL)
	assert.Equal(t, 10, assocs[0].Priority)
}

func TestLoadAssociationsMissingFields(t *testing.T) {
	path := writeAssociations(t, `
associations:
  - code: nema
  - name: No code or URL
`)
	_, err := LoadAssociations(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing code or base_url")
}

func TestLoadAssociationsMissingFile(t *testing.T) {
	_, err := LoadAssociations(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestFilterAssociations(t *testing.T) {
	all := []Association{{Code: "nema"}, {Code: "pma"}, {Code: "amt"}}

	assert.Equal(t, all, FilterAssociations(all, nil), "an empty filter keeps everything")

	got := FilterAssociations(all, []string{"amt", "nema"})
	require.Len(t, got, 2)
	assert.Equal(t, "nema", got[0].Code)
	assert.Equal(t, "amt", got[1].Code)

	assert.Empty(t, FilterAssociations(all, []string{"unknown"}))
}
