package resolve

import (
	"strings"

	"github.com/sells-group/memberscope/internal/model"
)

// Weights are the per-signal weights for pairwise scoring. A signal
// contributes only when both records carry a non-empty value for it; the
// final score is the weighted average over contributing signals.
type Weights struct {
	Domain  float64 `yaml:"domain" mapstructure:"domain"`
	Name    float64 `yaml:"name" mapstructure:"name"`
	Phone   float64 `yaml:"phone" mapstructure:"phone"`
	Address float64 `yaml:"address" mapstructure:"address"`
	City    float64 `yaml:"city" mapstructure:"city"`
	State   float64 `yaml:"state" mapstructure:"state"`
}

// ResolutionWeights are the defaults for cross-batch resolution.
func ResolutionWeights() Weights {
	return Weights{Domain: 0.40, Name: 0.35, Phone: 0.10, Address: 0.15}
}

// DedupeWeights are the defaults for intra-batch deduplication.
func DedupeWeights() Weights {
	return Weights{Domain: 0.30, Name: 0.50, City: 0.10, State: 0.10}
}

// normRecord caches the normalized comparison keys for one input record.
type normRecord struct {
	input      int // input index
	domain     string
	name       string
	nameFirst  string
	nameTokens map[string]bool
	phone      string
	city       string
	state      string
	addrTokens map[string]bool
}

func normalizeRecord(i int, c model.Company) normRecord {
	domain := c.Domain
	if domain == "" {
		domain = c.Website
	}
	r := normRecord{
		input:      i,
		domain:     NormalizeDomain(domain),
		name:       NormalizeName(c.Name),
		phone:      NormalizePhone(c.Phone),
		city:       strings.ToLower(strings.TrimSpace(c.City)),
		state:      strings.ToLower(strings.TrimSpace(c.State)),
		nameTokens: NameTokens(c.Name),
	}
	r.nameFirst = FirstNameToken(c.Name)
	addr := strings.TrimSpace(c.City + " " + c.State + " " + c.Street)
	if strings.TrimSpace(addr) != "" {
		r.addrTokens = wordSet(strings.ToLower(addr))
	}
	return r
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// jaccard computes set similarity over token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a)
	for w := range b {
		if !a[w] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// score computes the weighted pairwise similarity of two records in [0,1].
func score(a, b normRecord, w Weights) float64 {
	var sum, weight float64

	if w.Domain > 0 && a.domain != "" && b.domain != "" {
		weight += w.Domain
		if a.domain == b.domain {
			sum += w.Domain
		}
	}
	if w.Name > 0 && len(a.nameTokens) > 0 && len(b.nameTokens) > 0 {
		weight += w.Name
		sum += w.Name * jaccard(a.nameTokens, b.nameTokens)
	}
	if w.Phone > 0 && a.phone != "" && b.phone != "" {
		weight += w.Phone
		if a.phone == b.phone {
			sum += w.Phone
		}
	}
	if w.Address > 0 && len(a.addrTokens) > 0 && len(b.addrTokens) > 0 {
		weight += w.Address
		sum += w.Address * jaccard(a.addrTokens, b.addrTokens)
	}
	if w.City > 0 && a.city != "" && b.city != "" {
		weight += w.City
		if a.city == b.city {
			sum += w.City
		}
	}
	if w.State > 0 && a.state != "" && b.state != "" {
		weight += w.State
		if a.state == b.state {
			sum += w.State
		}
	}

	if weight == 0 {
		return 0
	}
	return sum / weight
}
