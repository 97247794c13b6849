package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadbot/internal/domain"
)

func TestApplyCacheBoundaries(t *testing.T) {
	img := domain.ContentPart{Kind: domain.PartImage, Data: []byte{1}, MediaType: "image/png"}
	turns := []domain.Turn{
		{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart("first"), img}},
		{Role: domain.RoleAssistant, Parts: []domain.ContentPart{domain.TextPart("a"), domain.TextPart("b")}},
		{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart("second"), img}},
		{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart("last")}},
	}

	sys, out := ApplyCacheBoundaries("be brief", turns)

	require.Len(t, sys, 1)
	assert.True(t, sys[0].CacheBoundary)
	assert.Equal(t, "be brief", sys[0].Text)

	var marked [][2]int
	for i, turn := range out {
		for j, p := range turn.Parts {
			if p.CacheBoundary {
				marked = append(marked, [2]int{i, j})
			}
		}
	}
	assert.Equal(t, [][2]int{{2, 1}}, marked)

	for _, turn := range turns {
		for _, p := range turn.Parts {
			assert.False(t, p.CacheBoundary, "input mutated")
		}
	}
}

func TestApplyCacheBoundaries_NothingToMark(t *testing.T) {
	turns := []domain.Turn{{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart("hi")}}}

	sys, out := ApplyCacheBoundaries("", turns)

	assert.Nil(t, sys)
	assert.Equal(t, turns, out)
}

func TestDump_ElidesData(t *testing.T) {
	long := strings.Repeat("z", 500)
	out := Dump([]domain.Turn{{Role: domain.RoleUser, Parts: []domain.ContentPart{
		domain.TextPart(long),
		{Kind: domain.PartDocument, Data: make([]byte, 42), MediaType: "application/pdf"},
	}}})

	assert.Contains(t, out, strings.Repeat("z", 200))
	assert.NotContains(t, out, strings.Repeat("z", 201))
	assert.Contains(t, out, `"bytes": 42`)
}
