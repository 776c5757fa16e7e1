package attendance

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// LookupMode says where a raw identifier came from.
type LookupMode string

const (
	LookupScan   LookupMode = "scan"
	LookupManual LookupMode = "manual"
)

// Candidate is a member matched by a manual search.
type Candidate struct {
	Member
	Score float64 `json:"score"`
}

// MatchCandidates keeps members whose name contains query, ignoring case,
// and orders them by similarity to query, then by name.
func MatchCandidates(query string, members []Member) []Candidate {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Candidate
	for _, m := range members {
		name := strings.ToLower(m.Name)
		if !strings.Contains(name, q) {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(q, ""), strings.Split(name, "")).Ratio()
		out = append(out, Candidate{Member: m, Score: ratio})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}
