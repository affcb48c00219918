package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/redis"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func result() *executor.SearchResult {
	return &executor.SearchResult{
		Query:     "cat",
		Type:      executor.Ranked,
		Ranking:   executor.TFIDF,
		TotalHits: 1,
		Results:   []ranker.ScoredDoc{{DocID: 3, Name: "c.txt", Score: 0.5}},
	}
}

func TestGetOrComputeCaches(t *testing.T) {
	c := New(newMemStore(), time.Minute, metrics.NewUnregistered())
	ctx := context.Background()
	req := executor.Request{Query: "cat", Type: executor.Ranked, Ranking: executor.TFIDF, Limit: 10}
	q := query.New("cat")

	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result(), nil
	}
	got, cached, err := c.GetOrCompute(ctx, req, q, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, result(), got)

	got, cached, err = c.GetOrCompute(ctx, req, q, compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, result(), got)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestKeyDistinguishesTypeRankingOrderAndLimit(t *testing.T) {
	base := executor.Request{Type: executor.Phrase, Limit: 10}
	q := query.New("the", "cat")
	keys := []string{
		buildKey(base, q),
		buildKey(executor.Request{Type: executor.Intersection, Limit: 10}, q),
		buildKey(executor.Request{Type: executor.Ranked, Ranking: executor.BM25, Limit: 10}, q),
		buildKey(base, query.New("cat", "the")),
		buildKey(executor.Request{Type: executor.Phrase, Limit: 5}, q),
		buildKey(executor.Request{Type: executor.Ranked, Ranking: executor.TFIDF, Limit: 10}, q),
	}
	seen := map[string]struct{}{}
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, buildKey(base, q), buildKey(executor.Request{Query: "The  Cat", Type: executor.Phrase, Limit: 10}, q))
}

func TestStoreFailureFallsThrough(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("connection refused")
	c := New(store, time.Minute, nil)
	req := executor.Request{Type: executor.Intersection, Limit: 10}

	var calls atomic.Int32
	for range 8 {
		got, cached, err := c.GetOrCompute(context.Background(), req, query.New("cat"), func() (*executor.SearchResult, error) {
			calls.Add(1)
			return result(), nil
		})
		require.NoError(t, err)
		assert.False(t, cached)
		assert.NotNil(t, got)
	}
	assert.Equal(t, int32(8), calls.Load())
}

func TestComputeErrorNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	req := executor.Request{Type: executor.Intersection}
	_, _, err := c.GetOrCompute(context.Background(), req, query.New("x"), func() (*executor.SearchResult, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
	assert.Empty(t, store.data)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["other"] = []byte("keep")
	c := New(store, time.Minute, nil)
	req := executor.Request{Type: executor.Intersection}
	c.Set(context.Background(), req, query.New("cat"), result())
	require.Len(t, store.data, 2)

	require.NoError(t, c.Invalidate(context.Background()))
	assert.Equal(t, map[string][]byte{"other": []byte("keep")}, store.data)
}
