package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/resilience"
)

type Searcher interface {
	Search(ctx context.Context, req executor.Request, q query.Query) (*executor.SearchResult, error)
}

type Handler struct {
	searcher  Searcher
	cache     *cache.QueryCache
	normalize query.NormalizeFunc
	docTerms  query.DocTermsFunc
	cfg       config.SearchConfig
	logger    *slog.Logger
}

// New builds the HTTP handler. queryCache and docTerms may be nil, which
// disables caching and relevance feedback respectively.
func New(s Searcher, queryCache *cache.QueryCache, normalize query.NormalizeFunc, docTerms query.DocTermsFunc, cfg config.SearchConfig) *Handler {
	return &Handler{
		searcher:  s,
		cache:     queryCache,
		normalize: normalize,
		docTerms:  docTerms,
		cfg:       cfg,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search/feedback", h.Feedback)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search serves GET /api/v1/search?q=&type=&ranking=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	raw := params.Get("q")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	req, err := h.request(raw, params.Get("type"), params.Get("ranking"), params.Get("limit"))
	if err != nil {
		h.writeErr(w, err)
		return
	}

	q := query.Parse(raw, h.normalize)
	if q.Len() == 0 {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:   raw,
			Type:    req.Type,
			Ranking: req.Ranking,
			Results: []ranker.ScoredDoc{},
		})
		return
	}

	var (
		result   *executor.SearchResult
		cacheHit bool
	)
	compute := func() (*executor.SearchResult, error) {
		return h.evaluate(ctx, req, q)
	}
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, req, q, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("search execution failed", "query", raw, "error", err)
		h.writeErr(w, err)
		return
	}

	log.Info("search completed",
		"query", raw,
		"type", req.Type,
		"ranking", req.Ranking,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) evaluate(ctx context.Context, req executor.Request, q query.Query) (*executor.SearchResult, error) {
	return resilience.Bounded(ctx, h.cfg.Timeout, "search", func(ctx context.Context) (*executor.SearchResult, error) {
		return h.searcher.Search(ctx, req, q)
	})
}

func (h *Handler) request(raw, typ, ranking, limit string) (executor.Request, error) {
	req := executor.Request{Query: raw, Limit: h.cfg.DefaultLimit}
	var err error
	if req.Type, err = executor.ParseQueryType(typ); err != nil {
		return req, err
	}
	if req.Type == executor.Ranked {
		if req.Ranking, err = executor.ParseRanking(ranking); err != nil {
			return req, err
		}
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
		}
		req.Limit = n
	}
	if h.cfg.MaxResults > 0 && req.Limit > h.cfg.MaxResults {
		req.Limit = h.cfg.MaxResults
	}
	return req, nil
}

// FeedbackRequest carries relevance judgements on a previous result list.
// Results and Relevant are parallel.
type FeedbackRequest struct {
	Query    string `json:"query"`
	Ranking  string `json:"ranking"`
	Limit    int    `json:"limit"`
	Results  []int  `json:"results"`
	Relevant []bool `json:"relevant"`
}

type FeedbackResponse struct {
	Expanded query.Query            `json:"expanded_query"`
	Result   *executor.SearchResult `json:"result"`
}

// Feedback serves POST /api/v1/search/feedback: the query is reweighted
// with Rocchio feedback and evaluated as a ranked query. Feedback results
// are not cached.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.docTerms == nil {
		h.writeError(w, http.StatusServiceUnavailable, "relevance feedback is disabled")
		return
	}
	var body FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Query == "" {
		h.writeError(w, http.StatusBadRequest, "field 'query' is required")
		return
	}
	if len(body.Results) != len(body.Relevant) {
		h.writeError(w, http.StatusBadRequest, "results and relevant must have the same length")
		return
	}
	limit := ""
	if body.Limit > 0 {
		limit = strconv.Itoa(body.Limit)
	}
	req, err := h.request(body.Query, string(executor.Ranked), body.Ranking, limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	q := query.Parse(body.Query, h.normalize)
	fq, err := query.Feedback(q, body.Results, body.Relevant, h.docTerms, h.cfg.FeedbackAlpha, h.cfg.FeedbackBeta)
	if err != nil {
		logger.FromContext(ctx).Error("relevance feedback failed", "query", body.Query, "error", err)
		h.writeErr(w, err)
		return
	}
	req.Query = fq.String()
	result, err := h.evaluate(ctx, req, fq)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, FeedbackResponse{Expanded: fq, Result: result})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps err to a status code. Server-side failures are reported
// without detail.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		msg = "search failed"
	}
	h.writeError(w, status, msg)
}
