package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
)

func testConfig(dir string, budget int) config.IndexConfig {
	return config.IndexConfig{
		Dir:         dir,
		Backend:     config.BackendScalable,
		TableSize:   1009,
		TokenBudget: budget,
		MergeQueue:  2,
	}
}

func fill(t *testing.T, idx index.Index, docs, perDoc int) {
	t.Helper()
	for doc := range docs {
		for off := range perDoc {
			term := fmt.Sprintf("w%d", (doc*31+off*7)%97)
			require.NoError(t, idx.Insert(term, doc, off))
		}
		idx.Docs().Set(doc, fmt.Sprintf("doc-%d.txt", doc), perDoc)
	}
}

func assertSameAs(t *testing.T, want *index.MemoryIndex, got index.Index) {
	t.Helper()
	for _, term := range want.Terms() {
		w, _ := want.GetPostings(term)
		g, err := got.GetPostings(term)
		require.NoError(t, err)
		require.NotNil(t, g, term)
		assert.Equal(t, w.Encode(), g.Encode(), term)
	}
}

func TestEngineScalableMatchesMemory(t *testing.T) {
	dir := t.TempDir()
	eng, err := NewEngine(testConfig(dir, 50), WithMetrics(metrics.NewUnregistered()))
	require.NoError(t, err)
	defer eng.Close()

	want := index.NewMemoryIndex()
	fill(t, eng, 60, 12)
	fill(t, want, 60, 12)

	require.NoError(t, eng.Cleanup())
	assert.Greater(t, eng.Summary().Flushes, 2)

	assertSameAs(t, want, eng)
	missing, err := eng.GetPostings("absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.True(t, segment.Exists(dir, segment.Canonical))
	gens, err := segment.Generations(dir)
	require.NoError(t, err)
	assert.Empty(t, gens)

	s := eng.Summary()
	assert.Equal(t, len(want.Terms()), s.Terms)
	assert.Equal(t, 60, s.Docs)
}

func TestEngineBudgetEqualToTokensPromotesHead(t *testing.T) {
	dir := t.TempDir()
	eng, err := NewEngine(testConfig(dir, 10))
	require.NoError(t, err)
	defer eng.Close()

	want := index.NewMemoryIndex()
	fill(t, eng, 4, 5)
	fill(t, want, 4, 5)

	require.NoError(t, eng.Cleanup())
	assertSameAs(t, want, eng)
	gens, err := segment.Generations(dir)
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestEngineServesFlushedGenerations(t *testing.T) {
	dir := t.TempDir()
	eng, err := NewEngine(testConfig(dir, 2))
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Insert("cat", 0, 0))
	require.NoError(t, eng.Insert("sat", 0, 1))
	require.NoError(t, eng.Insert("dog", 1, 0))
	assert.Equal(t, 1, eng.Summary().Flushes)

	cat, err := eng.GetPostings("cat")
	require.NoError(t, err)
	require.NotNil(t, cat)
	assert.Equal(t, "~0,0", cat.Encode())
	dog, err := eng.GetPostings("dog")
	require.NoError(t, err)
	assert.Equal(t, "~1,0", dog.Encode())
}

func TestEngineQueriesDuringMerges(t *testing.T) {
	dir := t.TempDir()
	eng, err := NewEngine(testConfig(dir, 30))
	require.NoError(t, err)
	defer eng.Close()

	want := index.NewMemoryIndex()
	fill(t, eng, 40, 9)
	fill(t, want, 40, 9)
	assert.Greater(t, eng.Summary().Flushes, 2)

	// the buffer, pending generations and merged heads together hold
	// every posting whatever the merge progress
	assertSameAs(t, want, eng)

	require.NoError(t, eng.merger.Wait())
	assertSameAs(t, want, eng)
	eng.readerMu.RLock()
	assert.Len(t, eng.readers, 1)
	eng.readerMu.RUnlock()

	require.NoError(t, eng.Cleanup())
	assertSameAs(t, want, eng)
}

func TestEngineSingleShot(t *testing.T) {
	dir := t.TempDir()
	eng, err := NewEngine(testConfig(dir, 0))
	require.NoError(t, err)
	defer eng.Close()

	want := index.NewMemoryIndex()
	fill(t, eng, 10, 8)
	fill(t, want, 10, 8)

	// before cleanup queries are served from the buffer
	assertSameAs(t, want, eng)

	require.NoError(t, eng.Cleanup())
	assert.Equal(t, 0, eng.Summary().Flushes)
	assertSameAs(t, want, eng)

	assert.Error(t, eng.Insert("late", 0, 0))
	assert.NoError(t, eng.Cleanup())
}

func TestEngineRemovesStaleGenerations(t *testing.T) {
	dir := t.TempDir()
	w, err := segment.Create(dir, 7, 101)
	require.NoError(t, err)
	_, err = w.Close()
	require.NoError(t, err)

	eng, err := NewEngine(testConfig(dir, 0))
	require.NoError(t, err)
	defer eng.Close()
	assert.False(t, segment.Exists(dir, 7))
}

func TestCompletionHook(t *testing.T) {
	dir := t.TempDir()
	var got []Summary
	hook := func(_ context.Context, s Summary) error {
		got = append(got, s)
		return nil
	}
	failing := func(context.Context, Summary) error { return fmt.Errorf("unreachable broker") }

	eng, err := NewEngine(testConfig(dir, 20), WithCompletionHook(failing), WithCompletionHook(hook))
	require.NoError(t, err)
	defer eng.Close()
	fill(t, eng, 8, 6)

	require.NoError(t, eng.Cleanup())
	require.Len(t, got, 1)
	assert.Equal(t, dir, got[0].Dir)
	assert.Equal(t, 8, got[0].Docs)
	assert.Positive(t, got[0].Terms)
}

func TestOpenAfterBuild(t *testing.T) {
	dir := t.TempDir()
	eng, err := NewEngine(testConfig(dir, 25))
	require.NoError(t, err)
	want := index.NewMemoryIndex()
	fill(t, eng, 20, 6)
	fill(t, want, 20, 6)
	require.NoError(t, eng.Cleanup())
	require.NoError(t, eng.Close())

	ro, err := Open(dir)
	require.NoError(t, err)
	defer ro.Close()

	assertSameAs(t, want, ro)
	assert.Equal(t, 20, ro.Docs().Len())
	assert.Equal(t, "doc-3.txt", ro.Docs().Name(3))
	assert.Error(t, ro.Insert("x", 0, 0))

	terms, err := ro.Terms()
	require.NoError(t, err)
	assert.ElementsMatch(t, want.Terms(), terms)
}

func TestOpenFallsBackToNewestGeneration(t *testing.T) {
	dir := t.TempDir()
	for gen, term := range map[int]string{2: "old", 5: "new"} {
		w, err := segment.Create(dir, gen, 101)
		require.NoError(t, err)
		l := index.NewPostingsList()
		l.Add(0, 0)
		require.NoError(t, w.Add(term, l))
		_, err = w.Close()
		require.NoError(t, err)
	}

	ro, err := Open(dir)
	require.NoError(t, err)
	defer ro.Close()
	l, err := ro.GetPostings("new")
	require.NoError(t, err)
	assert.NotNil(t, l)
	l, err = ro.GetPostings("old")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestOpenEmptyDir(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrIndexNotReady)
}

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	idx, err := New(config.IndexConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &index.MemoryIndex{}, idx)

	cfg := testConfig(dir, 5)
	cfg.Backend = config.BackendPersistent
	idx, err = New(cfg)
	require.NoError(t, err)
	eng := idx.(*Engine)
	defer eng.Close()
	fill(t, eng, 5, 5)
	require.NoError(t, eng.Cleanup())
	assert.Equal(t, 0, eng.Summary().Flushes)

	_, err = New(config.IndexConfig{Backend: "distributed"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestBuilderCatDog(t *testing.T) {
	dir := t.TempDir()
	eng, err := NewEngine(testConfig(dir, 0))
	require.NoError(t, err)
	defer eng.Close()

	b := NewBuilder(eng, tokenizer.New(tokenizer.Options{}), nil, nil)
	ctx := context.Background()
	id, err := b.AddDocument(ctx, "cat.txt", "the cat sat")
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	id, err = b.AddDocument(ctx, "dog.txt", "the dog sat")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	assert.Error(t, b.AddDocumentWithID(ctx, 1, "dup", "again"))
	require.NoError(t, eng.Cleanup())

	the, err := eng.GetPostings("the")
	require.NoError(t, err)
	assert.Equal(t, "~0,0~1,0", the.Encode())
	cat, err := eng.GetPostings("cat")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, cat.DocIDs())
	assert.Equal(t, 3, eng.Docs().Length(1))
}

type recordingSink struct{ names map[int]string }

func (s *recordingSink) PutDoc(_ context.Context, docID int, name string, _ int) error {
	s.names[docID] = name
	return nil
}

func TestBuilderIndexDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("beta words"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "a.html"),
		[]byte("<html><script>skip</script><p>alpha page</p></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.bin"), []byte("ignored"), 0o644))

	idx := index.NewMemoryIndex()
	sink := &recordingSink{names: map[int]string{}}
	b := NewBuilder(idx, tokenizer.New(tokenizer.Options{}), sink, nil)
	n, err := b.IndexDir(context.Background(), root, []string{"*.txt", "*.html"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// lexical order: b.txt sorts before sub/a.html
	assert.Equal(t, filepath.Join(root, "b.txt"), sink.names[0])
	assert.Equal(t, filepath.Join(root, "sub", "a.html"), sink.names[1])

	alpha, _ := idx.GetPostings("alpha")
	assert.Equal(t, []int{1}, alpha.DocIDs())
	skip, _ := idx.GetPostings("skip")
	assert.Nil(t, skip)
}

func TestReadText(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(plain, []byte("plain <b>text</b>\n"), 0o644))
	got, err := ReadText(plain)
	require.NoError(t, err)
	assert.Equal(t, "plain <b>text</b>\n", got)

	_, err = ReadText(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
