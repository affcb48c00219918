package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/archive"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/graph"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/hits"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/pagerank"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/kgram"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting search service", "port", cfg.Server.Port, "index_dir", cfg.Index.Dir)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	checker := health.NewChecker()

	idx, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer idx.Close()
	docs := idx.Docs()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", docs.Len())}
	})

	terms, err := idx.Terms()
	if err != nil {
		slog.Warn("dictionary scan reported corrupt records", "error", err)
	}
	grams := kgram.New(kgram.DefaultK)
	for _, t := range terms {
		grams.Insert(t)
	}
	slog.Info("wildcard index built", "terms", len(terms), "grams", grams.Len())

	opts := []executor.Option{
		executor.WithExpander(grams),
		executor.WithWeights(cfg.Search.TFIDFWeight, cfg.Search.LinkWeight),
		executor.WithMetrics(m),
	}
	linkOpts, err := linkSignals(cfg, docs, m)
	if err != nil {
		return err
	}
	opts = append(opts, linkOpts...)
	eval := executor.New(idx, opts...)

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.RegisterOptional("redis", health.ErrorCheck(redisClient.Ping))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	tok := tokenizer.New(tokenizer.Options{StopWords: cfg.Index.StopWords, Stem: cfg.Index.Stem})
	h := handler.New(eval, queryCache, tok.Normalize, executor.FileTerms(docs, tok), cfg.Search)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openIndex opens the index directory, restoring it from the archive first
// when it holds no segment and archival is enabled.
func openIndex(ctx context.Context, cfg *config.Config) (*indexer.ReadOnly, error) {
	idx, err := indexer.Open(cfg.Index.Dir)
	if err == nil || !errors.Is(err, apperrors.ErrIndexNotReady) || !cfg.Archive.Enabled {
		return idx, err
	}
	slog.Info("index directory empty, restoring from archive", "bucket", cfg.Archive.Bucket)
	store, err := archive.NewMinioStore(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}
	if err := archive.New(store).Restore(ctx, cfg.Index.Dir); err != nil {
		return nil, fmt.Errorf("restoring index: %w", err)
	}
	return indexer.Open(cfg.Index.Dir)
}

// linkSignals wires the pagerank, combination and hits rankings when a
// link graph is configured. A precomputed scores file replaces computing
// PageRank at startup.
func linkSignals(cfg *config.Config, docs *index.DocMeta, m *metrics.Metrics) ([]executor.Option, error) {
	lr := cfg.LinkRank
	if lr.LinksFile == "" {
		if lr.ScoresFile == "" {
			slog.Info("no link graph configured, link rankings disabled")
			return nil, nil
		}
		scores, err := pagerank.ReadTitledFile(lr.ScoresFile)
		if err != nil {
			return nil, err
		}
		slog.Info("link scores loaded", "file", lr.ScoresFile, "titles", len(scores))
		return []executor.Option{executor.WithLinkScorer(scores.Scorer(docs))}, nil
	}

	g, titles, err := linkrank.LoadGraph(lr)
	if err != nil {
		return nil, err
	}
	tr := graph.NewTranslator(g, titles, docs)
	slog.Info("documents matched to graph nodes", "matched", tr.Len(), "docs", docs.Len())
	opts := []executor.Option{executor.WithHITS(hits.NewRanker(g, tr, linkrank.HITSConfig(lr)))}

	if lr.ScoresFile != "" {
		scores, err := pagerank.ReadTitledFile(lr.ScoresFile)
		if err != nil {
			return nil, err
		}
		return append(opts, executor.WithLinkScorer(scores.Scorer(docs))), nil
	}
	scores, err := linkrank.Compute(g, lr, cfg.Search.LinkSignal, m)
	if err != nil {
		return nil, err
	}
	return append(opts, executor.WithLinkScorer(scores.Scorer(tr))), nil
}
