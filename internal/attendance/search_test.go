package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchCandidates(t *testing.T) {
	members := []Member{
		{ID: "1", Name: "Anna Maria"},
		{ID: "2", Name: "Ann"},
		{ID: "3", Name: "Joanna"},
		{ID: "4", Name: "Bob"},
	}

	got := MatchCandidates("ANN", members)
	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Ann", "Joanna", "Anna Maria"}, names)
	assert.InDelta(t, 1.0, got[0].Score, 0.0001)

	assert.Empty(t, MatchCandidates("  ", members))
	assert.Empty(t, MatchCandidates("xyz", members))
}
