package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Association is one independently-owned data source in the seed registry.
type Association struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
	Priority int    `yaml:"priority"`
}

type associationsFile struct {
	Associations []Association `yaml:"associations"`
}

// LoadAssociations reads the YAML seed registry.
func LoadAssociations(path string) ([]Association, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read associations %s", path)
	}
	var f associationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse associations %s", path)
	}
	for i, a := range f.Associations {
		if a.Code == "" || a.BaseURL == "" {
			return nil, eris.Errorf("config: association %d missing code or base_url", i)
		}
	}
	return f.Associations, nil
}

// FilterAssociations keeps only the associations whose code appears in codes.
// An empty filter keeps everything.
func FilterAssociations(all []Association, codes []string) []Association {
	if len(codes) == 0 {
		return all
	}
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var out []Association
	for _, a := range all {
		if want[a.Code] {
			out = append(out, a)
		}
	}
	return out
}
