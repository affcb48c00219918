package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/ranker"
)

func ids(docs []ranker.ScoredDoc) []int {
	out := make([]int, len(docs))
	for i, d := range docs {
		out[i] = d.DocID
	}
	return out
}

func TestTopK(t *testing.T) {
	a := []ranker.ScoredDoc{{DocID: 1, Score: 0.9}, {DocID: 2, Score: 0.1}, {DocID: 3, Score: 0.5}}
	b := []ranker.ScoredDoc{{DocID: 4, Score: 0.5}, {DocID: 5, Score: 0.7}}

	assert.Equal(t, []int{1, 5, 3}, ids(TopK(3, a, b)))
	assert.Equal(t, []int{1, 5, 3, 4, 2}, ids(TopK(10, a, b)))
	assert.Empty(t, TopK(3))
}

func TestTopKDefaultLimit(t *testing.T) {
	var many []ranker.ScoredDoc
	for i := range 25 {
		many = append(many, ranker.ScoredDoc{DocID: i, Score: float64(i)})
	}
	got := TopK(0, many)
	assert.Len(t, got, 10)
	assert.Equal(t, 24, got[0].DocID)
}

func TestTopKKeepsBestScoreOfDuplicates(t *testing.T) {
	a := []ranker.ScoredDoc{{DocID: 1, Score: 0.2}, {DocID: 2, Score: 0.6}}
	b := []ranker.ScoredDoc{{DocID: 1, Score: 0.8}, {DocID: 3, Score: 0.6}}

	got := TopK(5, a, b)
	assert.Equal(t, []int{1, 2, 3}, ids(got))
	assert.InDelta(t, 0.8, got[0].Score, 1e-12)
}

func TestTopKDoesNotAliasInput(t *testing.T) {
	in := []ranker.ScoredDoc{{DocID: 2, Score: 0.1}, {DocID: 1, Score: 0.9}}
	got := TopK(5, in)
	got[0].Name = "x"
	assert.Equal(t, []int{1, 2}, ids(got))
	assert.Equal(t, 2, in[0].DocID)
	assert.Empty(t, in[1].Name)
}

func TestTopKMatchesFullSort(t *testing.T) {
	var docs []ranker.ScoredDoc
	for i := range 200 {
		docs = append(docs, ranker.ScoredDoc{DocID: i, Score: float64((i * 37) % 11)})
	}
	want := append([]ranker.ScoredDoc(nil), docs...)
	ranker.Sort(want)

	assert.Equal(t, want[:15], TopK(15, docs))
}
