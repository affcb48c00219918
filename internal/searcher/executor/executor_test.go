package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/hits"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/kgram"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
)

func buildIndex(t *testing.T, docs ...string) *index.MemoryIndex {
	t.Helper()
	idx := index.NewMemoryIndex()
	for id, text := range docs {
		words := strings.Fields(text)
		for off, w := range words {
			require.NoError(t, idx.Insert(w, id, off))
		}
		idx.Docs().Set(id, "doc"+string(rune('0'+id)), len(words))
	}
	return idx
}

func expanderFor(idx *index.MemoryIndex) *kgram.Index {
	x := kgram.New(kgram.DefaultK)
	for _, term := range idx.Terms() {
		x.Insert(term)
	}
	return x
}

type linkScores map[int]float64

func (l linkScores) Score(docID int) float64 { return l[docID] }

type fakeHITS struct{ base []int }

func (f *fakeHITS) Rank(base []int) []hits.Scored {
	f.base = base
	out := make([]hits.Scored, len(base))
	for i, d := range base {
		out[i] = hits.Scored{DocID: d, Score: float64(len(base) - i)}
	}
	return out
}

type brokenSource struct{ *index.MemoryIndex }

func (b brokenSource) GetPostings(term string) (*index.PostingsList, error) {
	l, _ := b.MemoryIndex.GetPostings(term)
	if term == "cat" {
		return l, apperrors.Corruptf("bad offset")
	}
	if term == "sat" {
		return nil, errors.New("disk failure")
	}
	return l, nil
}

func TestIntersectionAndPhrase(t *testing.T) {
	e := New(buildIndex(t, "the cat sat", "the dog sat"))

	l, err := e.Intersection(query.New("the", "sat"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, l.DocIDs())
	for _, p := range l.Postings() {
		assert.Empty(t, p.Offsets)
	}

	l, err = e.Phrase(query.New("the", "cat"))
	require.NoError(t, err)
	assert.Equal(t, "~0,1", l.Encode())

	l, err = e.Phrase(query.New("cat", "the"))
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestZeroTermQueries(t *testing.T) {
	e := New(buildIndex(t, "the cat sat"))
	l, err := e.Intersection(query.Query{})
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = e.Phrase(query.Query{})
	require.NoError(t, err)
	assert.Nil(t, l)

	scored, err := e.Ranked(query.Query{}, TFIDF)
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestAbsentTermYieldsEmptyList(t *testing.T) {
	e := New(buildIndex(t, "the cat sat", "the dog sat"))
	l, err := e.Intersection(query.New("the", "bird"))
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 0, l.Len())

	l, err = e.Phrase(query.New("bird", "the"))
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 0, l.Len())
}

func TestPhraseLongerChain(t *testing.T) {
	e := New(buildIndex(t, "a b c a b c", "a b x c", "c a b c"))
	l, err := e.Phrase(query.New("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, "~0,2,5~2,3", l.Encode())
}

func TestWildcardExpansion(t *testing.T) {
	idx := buildIndex(t, "the cat sat", "the cow sat", "the dog sat")
	e := New(idx, WithExpander(expanderFor(idx)))

	l, err := e.Intersection(query.New("c*", "sat"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, l.DocIDs())

	l, err = e.Phrase(query.New("the", "c*t"))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, l.DocIDs())

	l, err = e.Union(query.New("ca*", "do*"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, l.DocIDs())
}

func TestUnion(t *testing.T) {
	e := New(buildIndex(t, "the cat sat", "the dog sat", "a bird"))
	l, err := e.Union(query.New("cat", "bird", "missing"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, l.DocIDs())
}

func TestRankedTFIDF(t *testing.T) {
	e := New(buildIndex(t, "the cat sat", "the dog sat", "dog dog bark"))
	scored, err := e.Ranked(query.New("dog"), TFIDF)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, 2, scored[0].DocID)
	assert.Equal(t, 1, scored[1].DocID)
	assert.InDelta(t, 2*scored[1].Score, scored[0].Score, 1e-12)
}

func TestRankedBM25(t *testing.T) {
	e := New(buildIndex(t, "the cat sat", "the dog sat", "dog dog bark"))
	scored, err := e.Ranked(query.New("dog"), BM25)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, 2, scored[0].DocID)
}

func TestRankedLinkSignals(t *testing.T) {
	idx := buildIndex(t, "the cat sat", "the dog sat", "dog dog bark")
	link := linkScores{1: 0.9, 2: 0.1}

	_, err := New(idx).Ranked(query.New("dog"), PageRank)
	assert.ErrorIs(t, err, apperrors.ErrUnknownRanking)

	e := New(idx, WithLinkScorer(link), WithWeights(0, 1))
	scored, err := e.Ranked(query.New("dog"), PageRank)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, 1, scored[0].DocID)
	assert.InDelta(t, 0.9, scored[0].Score, 1e-12)

	tfidf, err := e.Ranked(query.New("dog"), TFIDF)
	require.NoError(t, err)
	e = New(idx, WithLinkScorer(link), WithWeights(0.5, 0.5))
	combined, err := e.Ranked(query.New("dog"), Combination)
	require.NoError(t, err)
	want := map[int]float64{}
	for _, s := range tfidf {
		want[s.DocID] = 0.5*s.Score + 0.5*link[s.DocID]
	}
	for _, s := range combined {
		assert.InDelta(t, want[s.DocID], s.Score, 1e-12)
	}
}

func TestRankedHITSUsesUnionBaseSet(t *testing.T) {
	idx := buildIndex(t, "the cat sat", "the dog sat", "a bird")
	h := &fakeHITS{}
	e := New(idx, WithHITS(h))
	scored, err := e.Ranked(query.New("cat", "bird"), HITS)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, h.base)
	require.Len(t, scored, 2)
	assert.Equal(t, 0, scored[0].DocID)

	_, err = New(idx).Ranked(query.New("cat"), HITS)
	assert.ErrorIs(t, err, apperrors.ErrUnknownRanking)
}

func TestCorruptRecordUsesPartialPostings(t *testing.T) {
	e := New(brokenSource{buildIndex(t, "the cat sat", "the dog sat")})
	l, err := e.Intersection(query.New("the", "cat"))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, l.DocIDs())

	_, err = e.Intersection(query.New("the", "sat"))
	assert.Error(t, err)
}

func TestParseEnums(t *testing.T) {
	qt, err := ParseQueryType("")
	require.NoError(t, err)
	assert.Equal(t, Intersection, qt)
	_, err = ParseQueryType("fuzzy")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	r, err := ParseRanking("")
	require.NoError(t, err)
	assert.Equal(t, TFIDF, r)
	r, err = ParseRanking("hits")
	require.NoError(t, err)
	assert.Equal(t, HITS, r)
	_, err = ParseRanking("vector")
	assert.ErrorIs(t, err, apperrors.ErrUnknownRanking)
}

func TestSearch(t *testing.T) {
	idx := buildIndex(t, "the cat sat", "the dog sat", "dog dog bark")
	e := New(idx, WithMetrics(metrics.NewUnregistered()))
	ctx := context.Background()

	res, err := e.Search(ctx, Request{Query: "dog", Type: Ranked, Ranking: TFIDF, Limit: 1}, query.New("dog"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalHits)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "doc2", res.Results[0].Name)

	res, err = e.Search(ctx, Request{Query: "the sat", Type: Intersection, Limit: 10}, query.New("the", "sat"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalHits)
	assert.Equal(t, "doc0", res.Results[0].Name)
	assert.Empty(t, res.Ranking)

	res, err = e.Search(ctx, Request{Query: "bird", Type: Phrase}, query.New("bird"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalHits)
	assert.NotNil(t, res.Results)

	_, err = e.Search(ctx, Request{Type: "fuzzy"}, query.New("x"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFileTermsFeedsRocchio(t *testing.T) {
	dir := t.TempDir()
	texts := []string{"the cat sat", "the dog sat", "dog dog bark"}
	idx := index.NewMemoryIndex()
	for id, text := range texts {
		path := filepath.Join(dir, fmt.Sprintf("%d.txt", id))
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
		for off, w := range strings.Fields(text) {
			require.NoError(t, idx.Insert(w, id, off))
		}
		idx.Docs().Set(id, path, 3)
	}
	docTerms := FileTerms(idx.Docs(), tokenizer.New(tokenizer.Options{}))

	tf, err := docTerms(2)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"dog": 2, "bark": 1}, tf)
	_, err = docTerms(9)
	assert.Error(t, err)

	fq, err := query.Feedback(query.New("dog"), []int{2, 1}, []bool{true, false}, docTerms, 0.2, 0.8)
	require.NoError(t, err)
	assert.Equal(t, []string{"bark", "dog"}, fq.Texts())

	scored, err := New(idx).Ranked(fq, TFIDF)
	require.NoError(t, err)
	require.NotEmpty(t, scored)
	assert.Equal(t, 2, scored[0].DocID)
}
