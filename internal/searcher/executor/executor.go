// Package executor evaluates queries against an index: boolean
// intersection, phrase matching, union, and ranked retrieval with TF-IDF,
// BM25 and link-based signals.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/hits"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
)

type QueryType string

const (
	Intersection QueryType = "intersection"
	Phrase       QueryType = "phrase"
	Ranked       QueryType = "ranked"
)

type Ranking string

const (
	TFIDF       Ranking = "tfidf"
	BM25        Ranking = "bm25"
	PageRank    Ranking = "pagerank"
	Combination Ranking = "combination"
	HITS        Ranking = "hits"
)

// ParseQueryType maps a request parameter to a QueryType. The empty
// string selects Intersection.
func ParseQueryType(s string) (QueryType, error) {
	switch t := QueryType(s); t {
	case "":
		return Intersection, nil
	case Intersection, Phrase, Ranked:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown query type %q", apperrors.ErrInvalidInput, s)
}

// ParseRanking maps a request parameter to a Ranking. The empty string
// selects TFIDF.
func ParseRanking(s string) (Ranking, error) {
	switch r := Ranking(s); r {
	case "":
		return TFIDF, nil
	case TFIDF, BM25, PageRank, Combination, HITS:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownRanking, s)
}

// Source is the read side of an index.
type Source interface {
	GetPostings(term string) (*index.PostingsList, error)
	Docs() *index.DocMeta
}

// TermExpander resolves a wildcard pattern to dictionary terms.
type TermExpander interface {
	Expand(pattern string) []string
}

// BaseSetRanker ranks a query's base set by link structure.
type BaseSetRanker interface {
	Rank(baseDocs []int) []hits.Scored
}

type Option func(*Evaluator)

func WithExpander(x TermExpander) Option {
	return func(e *Evaluator) { e.expander = x }
}

// WithLinkScorer sets the signal of the pagerank and combination rankings.
func WithLinkScorer(s ranker.LinkScorer) Option {
	return func(e *Evaluator) { e.link = s }
}

func WithHITS(r BaseSetRanker) Option {
	return func(e *Evaluator) { e.hits = r }
}

// WithWeights sets the combination blend alpha*tfidf + beta*link.
func WithWeights(alpha, beta float64) Option {
	return func(e *Evaluator) { e.alpha, e.beta = alpha, beta }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// Evaluator is safe for concurrent use once constructed.
type Evaluator struct {
	src      Source
	expander TermExpander
	link     ranker.LinkScorer
	hits     BaseSetRanker
	alpha    float64
	beta     float64
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(src Source, opts ...Option) *Evaluator {
	e := &Evaluator{
		src:    src,
		alpha:  0.4,
		beta:   0.6,
		logger: slog.Default().With("component", "query-evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// postings fetches the list of one term. A partially corrupt record still
// yields its readable postings.
func (e *Evaluator) postings(term string) (*index.PostingsList, error) {
	l, err := e.src.GetPostings(term)
	if err != nil {
		if l != nil && errors.Is(err, apperrors.ErrCorruptRecord) {
			e.logger.Warn("using partial postings", "term", term, "error", err)
			return l, nil
		}
		return nil, fmt.Errorf("reading postings of %q: %w", term, err)
	}
	return l, nil
}

// expand returns the dictionary terms a query term stands for.
func (e *Evaluator) expand(term string) []string {
	if e.expander == nil || !isWildcard(term) {
		return []string{term}
	}
	return e.expander.Expand(term)
}

// termPostings returns the postings of a query term, merging the lists of
// every expansion of a wildcard term.
func (e *Evaluator) termPostings(term string) (*index.PostingsList, error) {
	terms := e.expand(term)
	if len(terms) == 1 && terms[0] == term {
		return e.postings(term)
	}
	merged := index.NewPostingsList()
	for _, t := range terms {
		l, err := e.postings(t)
		if err != nil {
			return nil, err
		}
		merged.Merge(l)
	}
	return merged, nil
}

// Intersection returns the documents containing every query term, without
// offsets. It returns nil for a query without terms and an empty list when
// a term is absent.
func (e *Evaluator) Intersection(q query.Query) (*index.PostingsList, error) {
	return e.chain(q, intersect, false)
}

// Phrase returns the documents containing the query terms at consecutive
// positions. Each posting carries the positions of the last phrase term.
func (e *Evaluator) Phrase(q query.Query) (*index.PostingsList, error) {
	return e.chain(q, followedBy, true)
}

func (e *Evaluator) chain(q query.Query, join func(a, b *index.PostingsList) *index.PostingsList, offsets bool) (*index.PostingsList, error) {
	if q.Len() == 0 {
		return nil, nil
	}
	result, err := e.termPostings(q.Terms[0].Text)
	if err != nil {
		return nil, err
	}
	if result.Len() == 0 {
		return index.NewPostingsList(), nil
	}
	if q.Len() == 1 && !offsets {
		return withoutOffsets(result), nil
	}
	for _, t := range q.Terms[1:] {
		next, err := e.termPostings(t.Text)
		if err != nil {
			return nil, err
		}
		result = join(result, next)
		if result.Len() == 0 {
			return result, nil
		}
	}
	return result, nil
}

// Union returns every document containing at least one query term.
func (e *Evaluator) Union(q query.Query) (*index.PostingsList, error) {
	if q.Len() == 0 {
		return nil, nil
	}
	set := roaring.New()
	for _, t := range q.Terms {
		l, err := e.termPostings(t.Text)
		if err != nil {
			return nil, err
		}
		set.Or(l.DocSet())
	}
	return index.FromDocSet(set), nil
}

// weighted resolves every query term, and every wildcard expansion, to its
// postings. An expanded term keeps the weight of its pattern; a term
// reached twice keeps the first weight.
func (e *Evaluator) weighted(q query.Query) ([]ranker.TermPostings, error) {
	seen := make(map[string]struct{})
	var out []ranker.TermPostings
	for _, t := range q.Terms {
		for _, term := range e.expand(t.Text) {
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			l, err := e.postings(term)
			if err != nil {
				return nil, err
			}
			out = append(out, ranker.TermPostings{Term: term, Weight: t.Weight, Postings: l})
		}
	}
	return out, nil
}

// Ranked scores the documents matching any query term.
func (e *Evaluator) Ranked(q query.Query, ranking Ranking) ([]ranker.ScoredDoc, error) {
	if q.Len() == 0 {
		return nil, nil
	}
	switch ranking {
	case HITS:
		if e.hits == nil {
			return nil, unavailable(ranking)
		}
		base, err := e.Union(q)
		if err != nil {
			return nil, err
		}
		scored := e.hits.Rank(base.DocIDs())
		out := make([]ranker.ScoredDoc, len(scored))
		for i, s := range scored {
			out[i] = ranker.ScoredDoc{DocID: s.DocID, Score: s.Score}
		}
		return out, nil
	case PageRank, Combination:
		if e.link == nil {
			return nil, unavailable(ranking)
		}
	}

	terms, err := e.weighted(q)
	if err != nil {
		return nil, err
	}
	docs := e.src.Docs()
	switch ranking {
	case TFIDF:
		return ranker.TFIDF(terms, docs), nil
	case BM25:
		return ranker.BM25(terms, docs), nil
	case PageRank:
		return ranker.Replace(ranker.TFIDF(terms, docs), e.link), nil
	case Combination:
		return ranker.Combine(ranker.TFIDF(terms, docs), e.link, e.alpha, e.beta), nil
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownRanking, ranking)
}

func unavailable(r Ranking) error {
	return fmt.Errorf("%w: %q needs a link graph, none loaded", apperrors.ErrUnknownRanking, r)
}

// Request is one search call.
type Request struct {
	Query   string    `json:"query"`
	Type    QueryType `json:"type"`
	Ranking Ranking   `json:"ranking,omitempty"`
	Limit   int       `json:"limit"`
}

// SearchResult is the response of Search. Unranked query types report a
// score of 0 and list documents in id order.
type SearchResult struct {
	Query     string             `json:"query"`
	Type      QueryType          `json:"type"`
	Ranking   Ranking            `json:"ranking,omitempty"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TookMs    int64              `json:"took_ms"`
}

// Search evaluates an already parsed query and returns the best req.Limit
// documents with their names.
func (e *Evaluator) Search(ctx context.Context, req Request, q query.Query) (*SearchResult, error) {
	start := time.Now()
	res := &SearchResult{Query: req.Query, Type: req.Type, Results: []ranker.ScoredDoc{}}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docs []ranker.ScoredDoc
	switch req.Type {
	case Intersection, Phrase:
		var (
			l   *index.PostingsList
			err error
		)
		if req.Type == Intersection {
			l, err = e.Intersection(q)
		} else {
			l, err = e.Phrase(q)
		}
		if err != nil {
			return nil, err
		}
		for _, p := range l.Postings() {
			docs = append(docs, ranker.ScoredDoc{DocID: p.DocID})
		}
	case Ranked:
		if req.Ranking == "" {
			req.Ranking = TFIDF
		}
		res.Ranking = req.Ranking
		var err error
		if docs, err = e.Ranked(q, req.Ranking); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown query type %q", apperrors.ErrInvalidInput, req.Type)
	}

	res.TotalHits = len(docs)
	if req.Type == Ranked {
		docs = merger.TopK(req.Limit, docs)
	} else if req.Limit > 0 && len(docs) > req.Limit {
		docs = docs[:req.Limit]
	}
	names := e.src.Docs()
	for i := range docs {
		docs[i].Name = names.Name(docs[i].DocID)
	}
	if docs != nil {
		res.Results = docs
	}
	res.TookMs = time.Since(start).Milliseconds()

	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(string(req.Type), string(res.Ranking)).Inc()
		e.metrics.SearchLatency.WithLabelValues(string(req.Type)).Observe(time.Since(start).Seconds())
		e.metrics.SearchResultsCount.Observe(float64(res.TotalHits))
	}
	e.logger.Info("query executed",
		"query", req.Query,
		"type", req.Type,
		"ranking", res.Ranking,
		"terms", q.Texts(),
		"hits", res.TotalHits,
		"returned", len(res.Results),
	)
	return res, nil
}
