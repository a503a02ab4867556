package resolve

import "sort"

// blockIndex holds the three inverted blocking indices. Bucketing bounds
// pairwise comparison to plausibly-similar candidates instead of all pairs.
type blockIndex struct {
	byDomain    map[string][]int
	byNameToken map[string][]int
	byPhone     map[string][]int
}

// buildIndex indexes every record by normalized domain, first name token, and
// last-10-digit phone. Bucket slices are in input order.
func buildIndex(recs []normRecord) *blockIndex {
	idx := &blockIndex{
		byDomain:    make(map[string][]int),
		byNameToken: make(map[string][]int),
		byPhone:     make(map[string][]int),
	}
	for i, r := range recs {
		if r.domain != "" {
			idx.byDomain[r.domain] = append(idx.byDomain[r.domain], i)
		}
		if r.nameFirst != "" {
			idx.byNameToken[r.nameFirst] = append(idx.byNameToken[r.nameFirst], i)
		}
		if r.phone != "" {
			idx.byPhone[r.phone] = append(idx.byPhone[r.phone], i)
		}
	}
	return idx
}

// candidates returns the union of records sharing any bucket with rec,
// excluding rec itself and records already assigned to a group. The result is
// sorted ascending so grouping never depends on map iteration order.
func (idx *blockIndex) candidates(rec normRecord, assigned []bool) []int {
	seen := make(map[int]bool)
	collect := func(bucket []int) {
		for _, j := range bucket {
			if j == rec.input || assigned[j] {
				continue
			}
			seen[j] = true
		}
	}
	if rec.domain != "" {
		collect(idx.byDomain[rec.domain])
	}
	if rec.nameFirst != "" {
		collect(idx.byNameToken[rec.nameFirst])
	}
	if rec.phone != "" {
		collect(idx.byPhone[rec.phone])
	}

	out := make([]int, 0, len(seen))
	for j := range seen {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}
